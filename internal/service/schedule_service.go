package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/events"
	"slotbook/internal/metrics"
	"slotbook/internal/models"
	"slotbook/internal/schedule"

	"github.com/rs/zerolog"
)

type ScheduleService struct {
	base
	window   schedule.Window
	location *time.Location
	now      func() time.Time
}

func NewScheduleService(
	repo domain.Repository,
	cache domain.StatusCache,
	eventBus domain.EventPublisher,
	window schedule.Window,
	location *time.Location,
	logger *zerolog.Logger,
) *ScheduleService {
	if location == nil {
		location = time.UTC
	}
	return &ScheduleService{
		base:     base{repo: repo, cache: cache, eventBus: eventBus, logger: logger},
		window:   window,
		location: location,
		now:      time.Now,
	}
}

// GenerateResult reports one GenerateSlots run.
type GenerateResult struct {
	Date    time.Time            `json:"date"`
	Created int                  `json:"created"`
	IDs     []int64              `json:"appointment_ids"`
	Hours   models.BusinessHours `json:"settings"`
}

// GenerateSlots inserts every canonical slot of date that is not present yet.
// Rows inserted concurrently by another run count as present.
func (s *ScheduleService) GenerateSlots(ctx context.Context, auth domain.AuthContext, date time.Time) (*GenerateResult, error) {
	if err := auth.RequireWrite(); err != nil {
		return nil, err
	}
	if date.IsZero() {
		return nil, domain.NewValidationError("date", "is required")
	}
	date = models.DateOf(date)

	result := &GenerateResult{Date: date}
	err := s.repo.WithTx(ctx, func(tx domain.Store) error {
		hours, err := businessHours(ctx, tx)
		if err != nil {
			return err
		}
		result.Hours = hours

		existing, err := tx.ListAppointmentsByDate(ctx, date)
		if err != nil {
			return err
		}
		for _, t := range schedule.GenerateSlots(hours, schedule.Times(existing)) {
			appt := &models.Appointment{
				Date:     date,
				Time:     t,
				Duration: hours.SlotDuration,
				Status:   models.StatusAvailable,
				Notes:    models.SlotNotes(hours.SlotDuration),
			}
			if err := tx.CreateAppointment(ctx, appt); err != nil {
				if errors.Is(err, domain.ErrSlotConflict) {
					continue
				}
				return err
			}
			result.IDs = append(result.IDs, appt.ID)
		}
		result.Created = len(result.IDs)
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.AddSlotsGenerated(result.Created)
	if result.Created > 0 {
		s.invalidate(ctx, date)
		s.publish(events.EventSlotsGenerated, events.AppointmentEventPayload{
			Date:           models.FormatDate(date),
			Count:          result.Created,
			AppointmentIDs: result.IDs,
			ChangedBy:      auth.Subject,
		})
	}
	s.logger.Info().Str("date", models.FormatDate(date)).Int("created", result.Created).Msg("Slots generated")
	return result, nil
}

// GetAppointments lists the rows of date ordered by time, with their users.
func (s *ScheduleService) GetAppointments(ctx context.Context, date time.Time) ([]*models.AppointmentDetail, error) {
	date = models.DateOf(date)
	return s.repo.ListAppointmentDetails(ctx, date, date.AddDate(0, 0, 1))
}

// ListAppointments returns appointments with users over [start, start+days).
func (s *ScheduleService) ListAppointments(ctx context.Context, start time.Time, days int) ([]*models.AppointmentDetail, error) {
	if err := checkDays(days); err != nil {
		return nil, err
	}
	start = models.DateOf(start)
	return s.repo.ListAppointmentDetails(ctx, start, start.AddDate(0, 0, days))
}

// AddAppointment creates a single available slot at an arbitrary time.
func (s *ScheduleService) AddAppointment(ctx context.Context, auth domain.AuthContext, req AddAppointmentRequest) (*models.Appointment, error) {
	if err := auth.RequireWrite(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	date := models.DateOf(req.Date)

	var appt *models.Appointment
	err := s.repo.WithTx(ctx, func(tx domain.Store) error {
		duration := req.Duration
		if duration == 0 {
			hours, err := businessHours(ctx, tx)
			if err != nil {
				return err
			}
			duration = hours.SlotDuration
		}
		if req.Time.Add(duration) > models.EndOfDay {
			return domain.NewValidationError("time", "slot must end by midnight")
		}

		existing, err := tx.ListAppointmentsByDate(ctx, date)
		if err != nil {
			return err
		}
		blocks, err := tx.ListBlockedRanges(ctx, date)
		if err != nil {
			return err
		}
		if err := schedule.CheckOverlap(date, req.Time, existing, blocks); err != nil {
			return err
		}

		appt = &models.Appointment{
			Date:     date,
			Time:     req.Time,
			Duration: duration,
			Status:   models.StatusAvailable,
			Notes:    models.SlotNotes(duration),
		}
		return tx.CreateAppointment(ctx, appt)
	})
	record("add_appointment", err)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, date)
	s.publish(events.EventSlotsGenerated, events.AppointmentEventPayload{
		Date:           models.FormatDate(date),
		Count:          1,
		AppointmentIDs: []int64{appt.ID},
		ChangedBy:      auth.Subject,
	})
	return appt, nil
}

func (s *ScheduleService) DeleteAppointment(ctx context.Context, auth domain.AuthContext, id int64) error {
	if err := auth.RequireWrite(); err != nil {
		return err
	}

	var appt *models.Appointment
	err := s.repo.WithTx(ctx, func(tx domain.Store) error {
		var err error
		if appt, err = tx.GetAppointment(ctx, id); err != nil {
			return err
		}
		return tx.DeleteAppointment(ctx, id)
	})
	record("delete_appointment", err)
	if err != nil {
		return err
	}

	s.invalidate(ctx, appt.Date)
	s.publish(events.EventSlotsDeleted, events.AppointmentEventPayload{
		Date:           models.FormatDate(appt.Date),
		Count:          1,
		AppointmentIDs: []int64{id},
		ChangedBy:      auth.Subject,
	})
	return nil
}

// DeleteAll removes every row of date and returns how many were removed.
func (s *ScheduleService) DeleteAll(ctx context.Context, auth domain.AuthContext, date time.Time) (int64, error) {
	if err := auth.RequireWrite(); err != nil {
		return 0, err
	}
	if date.IsZero() {
		return 0, domain.NewValidationError("date", "is required")
	}
	date = models.DateOf(date)

	var (
		removed int64
		ids     []int64
	)
	err := s.repo.WithTx(ctx, func(tx domain.Store) error {
		existing, err := tx.ListAppointmentsByDate(ctx, date)
		if err != nil {
			return err
		}
		for _, a := range existing {
			ids = append(ids, a.ID)
		}
		removed, err = tx.DeleteAppointmentsByDate(ctx, date)
		return err
	})
	record("delete_all", err)
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		s.invalidate(ctx, date)
		s.publish(events.EventSlotsDeleted, events.AppointmentEventPayload{
			Date:           models.FormatDate(date),
			Count:          int(removed),
			AppointmentIDs: ids,
			ChangedBy:      auth.Subject,
		})
	}
	s.logger.Info().Str("date", models.FormatDate(date)).Int64("removed", removed).Msg("Appointments deleted")
	return removed, nil
}

// DayStatus aggregates one date, serving from the status cache when possible.
func (s *ScheduleService) DayStatus(ctx context.Context, date time.Time) (*models.DayStatus, error) {
	date = models.DateOf(date)

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, date)
		if err != nil {
			s.logger.Warn().Err(err).Str("date", models.FormatDate(date)).Msg("status cache read error")
		}
		if cached != nil {
			metrics.IncCache(true)
			return cached, nil
		}
		metrics.IncCache(false)
	}

	appts, err := s.repo.ListAppointmentsByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	status := schedule.AggregateDay(date, appts)

	if s.cache != nil {
		if err := s.cache.Set(ctx, &status); err != nil {
			s.logger.Warn().Err(err).Str("date", models.FormatDate(date)).Msg("status cache write error")
		}
		s.dropIfStale(ctx, &status)
	}
	return &status, nil
}

// dropIfStale re-reads the date after a cache write. A mutation that
// committed between the first read and the write may have invalidated the
// date before the stale status landed; its invalidate cannot be replayed,
// so the entry is removed here instead. Mutations committing after this
// re-read invalidate on their own.
func (s *ScheduleService) dropIfStale(ctx context.Context, cached *models.DayStatus) {
	appts, err := s.repo.ListAppointmentsByDate(ctx, cached.Date)
	if err == nil {
		fresh := schedule.AggregateDay(cached.Date, appts)
		if sameDayStatus(cached, &fresh) {
			return
		}
	}
	s.invalidate(ctx, cached.Date)
}

func sameDayStatus(a, b *models.DayStatus) bool {
	if a.Status != b.Status || len(a.Slots) != len(b.Slots) {
		return false
	}
	for i := range a.Slots {
		if a.Slots[i] != b.Slots[i] {
			return false
		}
	}
	return true
}

// RangeStatus aggregates [start, start+days) from a single range query.
func (s *ScheduleService) RangeStatus(ctx context.Context, start time.Time, days int) ([]models.DayStatus, error) {
	if err := checkDays(days); err != nil {
		return nil, err
	}
	start = models.DateOf(start)

	appts, err := s.repo.ListAppointmentsInRange(ctx, start, start.AddDate(0, 0, days))
	if err != nil {
		return nil, err
	}
	return schedule.AggregateRange(start, days, appts), nil
}

// DayStatusRange covers [anchor-before, anchor+after). A zero anchor means today.
func (s *ScheduleService) DayStatusRange(ctx context.Context, anchor time.Time, before, after int) ([]models.DayStatus, error) {
	if before < 0 || after < 0 {
		return nil, domain.NewValidationError("window", "days before and after must not be negative")
	}
	if anchor.IsZero() {
		anchor = s.ServerDate()
	}
	start, days := schedule.Window{DaysBefore: before, DaysAfter: after}.Bounds(anchor)
	return s.RangeStatus(ctx, start, days)
}

// Window is the configured default span for DayStatusRange.
func (s *ScheduleService) Window() schedule.Window {
	return s.window
}

// ServerDate is today in the configured time zone.
func (s *ScheduleService) ServerDate() time.Time {
	return models.DateOf(s.now().In(s.location))
}

// Timeline merges the confirmed appointments and blocked ranges of date by time.
func (s *ScheduleService) Timeline(ctx context.Context, date time.Time) ([]models.TimelineEntry, error) {
	date = models.DateOf(date)
	details, err := s.repo.ListAppointmentDetails(ctx, date, date.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	blocks, err := s.repo.ListBlockedRanges(ctx, date)
	if err != nil {
		return nil, err
	}

	entries := make([]models.TimelineEntry, 0, len(details)+len(blocks))
	for _, d := range details {
		if d.Status != models.StatusConfirmed {
			continue
		}
		entry := models.TimelineEntry{Time: d.Time, Kind: models.TimelineBooked, AppointmentID: d.ID}
		if d.User != nil {
			entry.Label = d.User.FullName()
			entry.Email = d.User.Email
		}
		entries = append(entries, entry)
	}
	for _, b := range blocks {
		entries = append(entries, models.TimelineEntry{Time: b.Start, Kind: models.TimelineBlocked, Label: b.Reason, BlockID: b.ID})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Time < entries[j].Time })
	return entries, nil
}

func (s *ScheduleService) ListBlocks(ctx context.Context, date time.Time) ([]*models.BlockedRange, error) {
	return s.repo.ListBlockedRanges(ctx, models.DateOf(date))
}

// CreateBlock reserves [Start, End) on a date. It may not overlap another
// block or cover a confirmed appointment.
func (s *ScheduleService) CreateBlock(ctx context.Context, auth domain.AuthContext, req CreateBlockRequest) (*models.BlockedRange, error) {
	if err := auth.RequireWrite(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	date := models.DateOf(req.Date)

	block := &models.BlockedRange{Date: date, Start: req.Start, End: req.End, Reason: req.reason()}
	err := s.repo.WithTx(ctx, func(tx domain.Store) error {
		existing, err := tx.ListAppointmentsByDate(ctx, date)
		if err != nil {
			return err
		}
		blocks, err := tx.ListBlockedRanges(ctx, date)
		if err != nil {
			return err
		}
		if err := schedule.CheckBlockRange(date, req.Start, req.End, existing, blocks); err != nil {
			return err
		}
		return tx.CreateBlockedRange(ctx, block)
	})
	record("create_block", err)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, date)
	s.publish(events.EventSlotBlocked, blockPayload(block, auth.Subject))
	return block, nil
}

func (s *ScheduleService) DeleteBlock(ctx context.Context, auth domain.AuthContext, id int64) error {
	if err := auth.RequireWrite(); err != nil {
		return err
	}

	var block *models.BlockedRange
	err := s.repo.WithTx(ctx, func(tx domain.Store) error {
		var err error
		if block, err = tx.GetBlockedRange(ctx, id); err != nil {
			return err
		}
		return tx.DeleteBlockedRange(ctx, id)
	})
	record("delete_block", err)
	if err != nil {
		return err
	}

	s.invalidate(ctx, block.Date)
	s.publish(events.EventSlotUnblocked, blockPayload(block, auth.Subject))
	return nil
}

func blockPayload(b *models.BlockedRange, changedBy string) events.AppointmentEventPayload {
	return events.AppointmentEventPayload{
		Date:      models.FormatDate(b.Date),
		Time:      b.Start.String() + "-" + b.End.String(),
		Status:    models.StatusBlocked,
		Notes:     b.Reason,
		ChangedBy: changedBy,
	}
}

func checkDays(days int) error {
	if days < 1 || days > models.MaxRangeDays {
		return domain.NewValidationError("days", "must be between 1 and %d", models.MaxRangeDays)
	}
	return nil
}
