package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/export"
	"slotbook/internal/models"
	"slotbook/internal/service"
)

const (
	defaultExportDays = 7
	xlsxContentType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type addAppointmentBody struct {
	Date     string `json:"date"`
	Time     string `json:"time"`
	Duration int    `json:"duration"`
}

type bookExistingBody struct {
	UserID int64 `json:"user_id"`
}

type createBlockBody struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Reason    string `json:"reason"`
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, http.StatusOK, "ok", nil)
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeOK(w, http.StatusOK, "ready", nil)
}

func (s *HTTPServer) handleServerDate(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, http.StatusOK, "server date", map[string]string{
		"date": models.FormatDate(s.services.Schedule.ServerDate()),
	})
}

func (s *HTTPServer) handleDayStatusRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	window := s.services.Schedule.Window()

	var anchor time.Time
	if raw := q.Get("date"); raw != "" {
		d, err := parseDate("date", raw)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		anchor = d
	}
	before, err := intParam(q.Get("before"), "before", window.DaysBefore)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	after, err := intParam(q.Get("after"), "after", window.DaysAfter)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	statuses, err := s.services.Schedule.DayStatusRange(r.Context(), anchor, before, after)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, fmt.Sprintf("%d days", len(statuses)), statuses)
}

func (s *HTTPServer) handleDayStatus(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate("date", r.PathValue("date"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	status, err := s.services.Schedule.DayStatus(r.Context(), date)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, string(status.Status), status)
}

func (s *HTTPServer) handleGetAppointments(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate("date", r.PathValue("date"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	appts, err := s.services.Schedule.GetAppointments(r.Context(), date)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, fmt.Sprintf("%d appointments", len(appts)), appts)
}

func (s *HTTPServer) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate("date", r.PathValue("date"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	removed, err := s.services.Schedule.DeleteAll(r.Context(), AuthFromContext(r.Context()), date)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, fmt.Sprintf("%d appointments deleted", removed), map[string]int64{"deleted": removed})
}

func (s *HTTPServer) handleTimeline(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate("date", r.PathValue("date"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	entries, err := s.services.Schedule.Timeline(r.Context(), date)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, fmt.Sprintf("%d entries", len(entries)), entries)
}

func (s *HTTPServer) handleGenerateSlots(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate("date", r.PathValue("date"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	res, err := s.services.Schedule.GenerateSlots(r.Context(), AuthFromContext(r.Context()), date)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, fmt.Sprintf("%d slots created", res.Created), res)
}

func (s *HTTPServer) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	start, days, err := s.rangeParams(r, s.services.Schedule.Window().DaysAfter)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	appts, err := s.services.Schedule.ListAppointments(r.Context(), start, days)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, fmt.Sprintf("%d appointments", len(appts)), appts)
}

func (s *HTTPServer) handleAddAppointment(w http.ResponseWriter, r *http.Request) {
	var body addAppointmentBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	date, err := parseDate("date", body.Date)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	at, err := parseTime("time", body.Time)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	appt, err := s.services.Schedule.AddAppointment(r.Context(), AuthFromContext(r.Context()),
		service.AddAppointmentRequest{Date: date, Time: at, Duration: body.Duration})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, "appointment created", appt)
}

func (s *HTTPServer) handleDeleteAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if err := s.services.Schedule.DeleteAppointment(r.Context(), AuthFromContext(r.Context()), id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "appointment deleted", nil)
}

func (s *HTTPServer) handleBookExisting(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var body bookExistingBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if body.UserID <= 0 {
		s.writeDomainError(w, r, domain.NewValidationError("user_id", "is required"))
		return
	}

	res, err := s.services.Booking.BookExisting(r.Context(), AuthFromContext(r.Context()), id, body.UserID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "appointment booked", res)
}

func (s *HTTPServer) handleBookNew(w http.ResponseWriter, r *http.Request) {
	s.bookNew(w, r, s.services.Booking.BookNew)
}

func (s *HTTPServer) handleForceBookNew(w http.ResponseWriter, r *http.Request) {
	s.bookNew(w, r, s.services.Booking.ForceBookNew)
}

type bookNewFunc func(ctx context.Context, auth domain.AuthContext, apptID int64, req service.NewUserRequest) (*service.BookingResult, error)

func (s *HTTPServer) bookNew(w http.ResponseWriter, r *http.Request, book bookNewFunc) {
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var req service.NewUserRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	res, err := book(r.Context(), AuthFromContext(r.Context()), id, req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "appointment booked", res)
}

type transitionFunc func(ctx context.Context, auth domain.AuthContext, apptID int64) (*models.Appointment, error)

func (s *HTTPServer) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc, message string) {
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	appt, err := fn(r.Context(), AuthFromContext(r.Context()), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, message, appt)
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.services.Booking.Cancel, "appointment cancelled")
}

func (s *HTTPServer) handleRemoveUser(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.services.Booking.RemoveUser, "slot made available")
}

func (s *HTTPServer) handleBlock(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.services.Booking.Block, "appointment blocked")
}

func (s *HTTPServer) handleUnblock(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.services.Booking.Unblock, "appointment unblocked")
}

func (s *HTTPServer) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate("date", r.URL.Query().Get("date"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	blocks, err := s.services.Schedule.ListBlocks(r.Context(), date)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, fmt.Sprintf("%d blocked ranges", len(blocks)), blocks)
}

func (s *HTTPServer) handleCreateBlock(w http.ResponseWriter, r *http.Request) {
	var body createBlockBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	date, err := parseDate("date", body.Date)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	start, err := parseTime("start_time", body.StartTime)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	end, err := parseTime("end_time", body.EndTime)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	block, err := s.services.Schedule.CreateBlock(r.Context(), AuthFromContext(r.Context()), service.CreateBlockRequest{
		Date: date, Start: start, End: end, Reason: body.Reason,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, "time range blocked", block)
}

func (s *HTTPServer) handleDeleteBlock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if err := s.services.Schedule.DeleteBlock(r.Context(), AuthFromContext(r.Context()), id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "blocked range removed", nil)
}

func (s *HTTPServer) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	users, err := s.services.Users.SearchUsers(r.Context(), q.Get("phone_number"), q.Get("email"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, fmt.Sprintf("%d users", len(users)), users)
}

func (s *HTTPServer) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	user, err := s.services.Users.GetUserByID(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "user", user)
}

func (s *HTTPServer) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.services.Settings.GetSettings(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "settings", settings)
}

func (s *HTTPServer) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	value, err := s.services.Settings.GetSetting(r.Context(), key)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, key, map[string]string{key: value})
}

func (s *HTTPServer) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]string
	if err := decodeJSON(r, &updates); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	hours, err := s.services.Settings.UpdateSettings(r.Context(), AuthFromContext(r.Context()), updates)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "settings updated", hours)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	start, days, err := s.rangeParams(r, defaultExportDays)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	details, err := s.services.Schedule.ListAppointments(r.Context(), start, days)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := s.services.Exporter.Write(&buf, start, days, details); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(start, days)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// rangeParams reads ?start=YYYY-MM-DD&days=N. start defaults to the server date.
func (s *HTTPServer) rangeParams(r *http.Request, defaultDays int) (time.Time, int, error) {
	q := r.URL.Query()
	start := s.services.Schedule.ServerDate()
	if raw := q.Get("start"); raw != "" {
		d, err := parseDate("start", raw)
		if err != nil {
			return time.Time{}, 0, err
		}
		start = d
	}
	days, err := intParam(q.Get("days"), "days", defaultDays)
	if err != nil {
		return time.Time{}, 0, err
	}
	return start, days, nil
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return domain.NewValidationError("body", "invalid JSON body")
	}
	return nil
}

func parseDate(field, raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, domain.NewValidationError(field, "is required")
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return time.Time{}, domain.NewValidationError(field, "%v", err)
	}
	return d, nil
}

func parseTime(field, raw string) (models.TimeOfDay, error) {
	t, err := models.ParseTimeOfDay(raw)
	if err != nil {
		return 0, domain.NewValidationError(field, "expected HH:MM, got %q", raw)
	}
	return t, nil
}

func intParam(raw, field string, fallback int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, domain.NewValidationError(field, "expected an integer, got %q", raw)
	}
	return n, nil
}

func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError("id", "invalid id %q", raw)
	}
	return id, nil
}
