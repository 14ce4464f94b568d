package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"slotbook/internal/config"
	"slotbook/internal/database"
	"slotbook/internal/domain"
	"slotbook/internal/events"
	"slotbook/internal/export"
	"slotbook/internal/models"
	"slotbook/internal/repository"
	"slotbook/internal/schedule"
	"slotbook/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const testDate = "2025-06-02"

type apiResponse struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	Field      string          `json:"field"`
	Candidates []models.User   `json:"candidates"`
	Proposed   *models.User    `json:"proposed"`
}

type testClient struct {
	t       *testing.T
	baseURL string
	headers map[string]string
}

func newTestServer(t *testing.T, cfg config.APIConfig) (*testClient, *database.DB) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cache := repository.NewMemoryStatusCache(time.Minute)
	bus := events.NewEventBus()
	services := Services{
		Schedule: service.NewScheduleService(db, cache, bus, schedule.DefaultWindow(), time.UTC, &logger),
		Booking:  service.NewBookingService(db, cache, bus, &logger),
		Settings: service.NewSettingsService(db, &logger),
		Users:    service.NewUserService(db, &logger),
		Exporter: export.NewExporter(t.TempDir(), &logger),
	}

	server := NewHTTPServer(cfg, services, db, &logger)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &testClient{t: t, baseURL: ts.URL, headers: map[string]string{}}, db
}

func (c *testClient) raw(method, path string, body any) *http.Response {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(c.t, err)
			reader = bytes.NewReader(raw)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	return resp
}

func (c *testClient) do(method, path string, body any) (int, apiResponse) {
	c.t.Helper()
	resp := c.raw(method, path, body)
	defer resp.Body.Close()

	var out apiResponse
	require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func decodeData[T any](t *testing.T, r apiResponse) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(r.Data, &v))
	return v
}

func (c *testClient) generate(date string) []*models.AppointmentDetail {
	c.t.Helper()
	code, resp := c.do(http.MethodPost, "/api/v1/days/"+date+"/generate", nil)
	require.Equal(c.t, http.StatusCreated, code, resp.Message)
	_, resp = c.do(http.MethodGet, "/api/v1/days/"+date+"/appointments", nil)
	return decodeData[[]*models.AppointmentDetail](c.t, resp)
}

func TestHealthz(t *testing.T) {
	c, _ := newTestServer(t, config.APIConfig{})
	code, resp := c.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
}

func TestReadyz(t *testing.T) {
	c, db := newTestServer(t, config.APIConfig{})
	code, _ := c.do(http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, code)

	require.NoError(t, db.Close())
	code, resp := c.do(http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, resp.Success)
}

func TestRequestIDHeader(t *testing.T) {
	c, _ := newTestServer(t, config.APIConfig{})

	resp := c.raw(http.MethodGet, "/healthz", nil)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	c.headers[requestIDHeader] = "req-123"
	resp = c.raw(http.MethodGet, "/healthz", nil)
	resp.Body.Close()
	assert.Equal(t, "req-123", resp.Header.Get(requestIDHeader))
}

func TestGenerateAndDayStatus(t *testing.T) {
	c, _ := newTestServer(t, config.APIConfig{})

	code, resp := c.do(http.MethodPost, "/api/v1/days/"+testDate+"/generate", nil)
	require.Equal(t, http.StatusCreated, code)
	assert.True(t, resp.Success)
	assert.Equal(t, "14 slots created", resp.Message)
	res := decodeData[service.GenerateResult](t, resp)
	assert.Len(t, res.IDs, 14)

	code, resp = c.do(http.MethodPost, "/api/v1/days/"+testDate+"/generate", nil)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "0 slots created", resp.Message)

	code, resp = c.do(http.MethodGet, "/api/v1/days/"+testDate, nil)
	require.Equal(t, http.StatusOK, code)
	status := decodeData[models.DayStatus](t, resp)
	assert.Equal(t, models.DayAllAvailable, status.Status)
	assert.Len(t, status.Slots, 14)

	code, resp = c.do(http.MethodGet, "/api/v1/days?date="+testDate+"&before=1&after=2", nil)
	require.Equal(t, http.StatusOK, code)
	days := decodeData[[]models.DayStatus](t, resp)
	require.Len(t, days, 3)
	assert.Equal(t, models.DayNone, days[0].Status)
	assert.Equal(t, models.DayAllAvailable, days[1].Status)

	code, resp = c.do(http.MethodGet, "/api/v1/days/"+testDate+"/appointments", nil)
	require.Equal(t, http.StatusOK, code)
	appts := decodeData[[]*models.AppointmentDetail](t, resp)
	require.Len(t, appts, 14)
	assert.Equal(t, "09:00", appts[0].Time.String())
}

func TestBookingFlow(t *testing.T) {
	c, _ := newTestServer(t, config.APIConfig{})
	slots := c.generate(testDate)
	bookPath := func(i int, action string) string {
		return fmt.Sprintf("/api/v1/appointments/%d/%s", slots[i].ID, action)
	}
	jane := map[string]string{"first_name": "Jane", "last_name": "Doe", "phone_number": "555-1111"}

	code, resp := c.do(http.MethodPost, bookPath(0, "book-new"), jane)
	require.Equal(t, http.StatusOK, code, resp.Message)
	booked := decodeData[service.BookingResult](t, resp)
	assert.True(t, booked.UserCreated)
	assert.Equal(t, models.StatusConfirmed, booked.Appointment.Status)

	t.Run("IdentityConflict", func(t *testing.T) {
		code, resp := c.do(http.MethodPost, bookPath(1, "book-new"), jane)
		assert.Equal(t, http.StatusConflict, code)
		assert.False(t, resp.Success)
		assert.Equal(t, "identity_conflict", resp.Error)
		require.Len(t, resp.Candidates, 1)
		assert.Equal(t, booked.User.ID, resp.Candidates[0].ID)
	})

	t.Run("NameMismatchThenForce", func(t *testing.T) {
		john := map[string]string{"first_name": "John", "phone_number": "555-1111"}
		code, resp := c.do(http.MethodPost, bookPath(1, "book-new"), john)
		assert.Equal(t, http.StatusConflict, code)
		assert.Equal(t, "name_mismatch", resp.Error)
		require.NotNil(t, resp.Proposed)
		assert.Equal(t, "John", resp.Proposed.FirstName)

		code, resp = c.do(http.MethodPost, bookPath(1, "force-book-new"), john)
		require.Equal(t, http.StatusOK, code, resp.Message)
	})

	t.Run("BookExisting", func(t *testing.T) {
		code, resp := c.do(http.MethodPost, bookPath(2, "book"), map[string]int64{"user_id": booked.User.ID})
		require.Equal(t, http.StatusOK, code, resp.Message)

		code, resp = c.do(http.MethodPost, bookPath(2, "book"), map[string]int64{"user_id": booked.User.ID})
		assert.Equal(t, http.StatusConflict, code)
		assert.Equal(t, "slot_conflict", resp.Error)

		code, _ = c.do(http.MethodPost, bookPath(3, "book"), map[string]int64{"user_id": 9999})
		assert.Equal(t, http.StatusNotFound, code)

		code, resp = c.do(http.MethodPost, bookPath(3, "book"), map[string]int64{})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "user_id", resp.Field)
	})

	t.Run("CancelBlockUnblock", func(t *testing.T) {
		code, resp := c.do(http.MethodPost, bookPath(0, "cancel"), nil)
		require.Equal(t, http.StatusOK, code, resp.Message)
		appt := decodeData[models.Appointment](t, resp)
		assert.Equal(t, models.StatusAvailable, appt.Status)

		code, _ = c.do(http.MethodPost, bookPath(0, "block"), nil)
		require.Equal(t, http.StatusOK, code)
		code, resp = c.do(http.MethodPost, bookPath(0, "cancel"), nil)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "validation", resp.Error)

		code, _ = c.do(http.MethodPost, bookPath(0, "unblock"), nil)
		require.Equal(t, http.StatusOK, code)

		code, resp = c.do(http.MethodPost, bookPath(2, "remove-user"), nil)
		require.Equal(t, http.StatusOK, code)
		appt = decodeData[models.Appointment](t, resp)
		assert.Equal(t, models.NotesSlotFreed, appt.Notes)
	})

	code, resp = c.do(http.MethodGet, "/api/v1/days/"+testDate, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(models.DaySomeBooked), resp.Message)
}

func TestAppointmentsEndpoints(t *testing.T) {
	c, _ := newTestServer(t, config.APIConfig{})

	code, resp := c.do(http.MethodPost, "/api/v1/appointments", map[string]any{"date": testDate, "time": "18:00", "duration": 45})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	appt := decodeData[models.Appointment](t, resp)
	assert.Equal(t, 45, appt.Duration)

	code, resp = c.do(http.MethodPost, "/api/v1/appointments", map[string]any{"date": testDate, "time": "18:00"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "slot_conflict", resp.Error)

	code, resp = c.do(http.MethodPost, "/api/v1/appointments", map[string]any{"date": testDate, "time": "6pm"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "time", resp.Field)

	code, resp = c.do(http.MethodGet, "/api/v1/appointments?start="+testDate+"&days=1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decodeData[[]*models.AppointmentDetail](t, resp), 1)

	code, _ = c.do(http.MethodDelete, fmt.Sprintf("/api/v1/appointments/%d", appt.ID), nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = c.do(http.MethodDelete, fmt.Sprintf("/api/v1/appointments/%d", appt.ID), nil)
	assert.Equal(t, http.StatusNotFound, code)

	c.generate(testDate)
	code, resp = c.do(http.MethodDelete, "/api/v1/days/"+testDate+"/appointments", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "14 appointments deleted", resp.Message)
}

func TestBlocksAndTimeline(t *testing.T) {
	c, _ := newTestServer(t, config.APIConfig{})
	c.generate(testDate)

	code, resp := c.do(http.MethodPost, "/api/v1/blocks", map[string]string{
		"date": testDate, "start_time": "14:00", "end_time": "15:00", "reason": "Inventory",
	})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	block := decodeData[models.BlockedRange](t, resp)

	code, resp = c.do(http.MethodPost, "/api/v1/blocks", map[string]string{
		"date": testDate, "start_time": "14:30", "end_time": "16:00",
	})
	assert.Equal(t, http.StatusConflict, code)

	code, resp = c.do(http.MethodGet, "/api/v1/blocks?date="+testDate, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decodeData[[]models.BlockedRange](t, resp), 1)

	code, resp = c.do(http.MethodGet, "/api/v1/days/"+testDate+"/timeline", nil)
	require.Equal(t, http.StatusOK, code)
	timeline := decodeData[[]models.TimelineEntry](t, resp)
	require.Len(t, timeline, 1)
	assert.Equal(t, "Inventory", timeline[0].Label)

	code, _ = c.do(http.MethodDelete, fmt.Sprintf("/api/v1/blocks/%d", block.ID), nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = c.do(http.MethodDelete, fmt.Sprintf("/api/v1/blocks/%d", block.ID), nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, resp = c.do(http.MethodGet, "/api/v1/blocks", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "date", resp.Field)
}

func TestSettingsEndpoints(t *testing.T) {
	c, _ := newTestServer(t, config.APIConfig{})

	code, resp := c.do(http.MethodGet, "/api/v1/settings", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "30", decodeData[map[string]string](t, resp)[models.SettingDuration])

	code, resp = c.do(http.MethodPut, "/api/v1/settings", map[string]string{models.SettingDuration: "20"})
	require.Equal(t, http.StatusOK, code, resp.Message)
	assert.Equal(t, 20, decodeData[models.BusinessHours](t, resp).SlotDuration)

	code, resp = c.do(http.MethodGet, "/api/v1/settings/"+models.SettingDuration, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "20", decodeData[map[string]string](t, resp)[models.SettingDuration])

	code, resp = c.do(http.MethodPut, "/api/v1/settings", map[string]string{models.SettingDailyEnd: "08:00"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, resp.Success)

	code, _ = c.do(http.MethodGet, "/api/v1/settings/colour", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = c.do(http.MethodPut, "/api/v1/settings", `{"appointment_duration": 20`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestUsersEndpoints(t *testing.T) {
	c, _ := newTestServer(t, config.APIConfig{})
	slots := c.generate(testDate)
	code, resp := c.do(http.MethodPost, fmt.Sprintf("/api/v1/appointments/%d/book-new", slots[0].ID),
		map[string]string{"first_name": "Ann", "email": "ann@example.com"})
	require.Equal(t, http.StatusOK, code, resp.Message)
	booked := decodeData[service.BookingResult](t, resp)

	code, resp = c.do(http.MethodGet, "/api/v1/users/search?email=ann@example.com", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decodeData[[]models.User](t, resp), 1)

	code, resp = c.do(http.MethodGet, "/api/v1/users/search", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = c.do(http.MethodGet, fmt.Sprintf("/api/v1/users/%d", booked.User.ID), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Ann", decodeData[models.User](t, resp).FirstName)

	code, _ = c.do(http.MethodGet, "/api/v1/users/abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServerDate(t *testing.T) {
	c, _ := newTestServer(t, config.APIConfig{})
	code, resp := c.do(http.MethodGet, "/api/v1/server-date", nil)
	require.Equal(t, http.StatusOK, code)

	_, err := models.ParseDate(decodeData[map[string]string](t, resp)["date"])
	assert.NoError(t, err)
}

func TestExport(t *testing.T) {
	c, _ := newTestServer(t, config.APIConfig{})
	c.generate(testDate)

	resp := c.raw(http.MethodGet, "/api/v1/export?start="+testDate+"&days=2", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "appointments_2025-06-02_to_2025-06-03.xlsx")

	f, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(export.SheetAppointments)
	require.NoError(t, err)
	assert.Len(t, rows, 15)

	code, _ := c.do(http.MethodGet, "/api/v1/export?start="+testDate+"&days=0", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAuthEnabledMapping(t *testing.T) {
	c, _ := newTestServer(t, authConfig())

	code, resp := c.do(http.MethodGet, "/api/v1/days/"+testDate, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, resp.Success)

	c.headers["X-Api-Key"] = "read-key"
	c.headers["X-Api-Extra"] = "read-extra"
	code, _ = c.do(http.MethodGet, "/api/v1/days/"+testDate, nil)
	assert.Equal(t, http.StatusOK, code)

	code, resp = c.do(http.MethodPost, "/api/v1/days/"+testDate+"/generate", nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "unauthorized", resp.Error)

	c.headers["X-Api-Key"] = "admin-key"
	c.headers["X-Api-Extra"] = "admin-extra"
	code, _ = c.do(http.MethodPost, "/api/v1/days/"+testDate+"/generate", nil)
	assert.Equal(t, http.StatusCreated, code)
}

func TestStatusFor(t *testing.T) {
	authed := domain.Admin("x")
	tests := []struct {
		err  error
		auth domain.AuthContext
		want int
	}{
		{domain.AuthContext{}.RequireWrite(), domain.AuthContext{}, http.StatusUnauthorized},
		{domain.ErrUnauthorized, authed, http.StatusForbidden},
		{domain.NewValidationError("f", "bad"), authed, http.StatusBadRequest},
		{&domain.ConfigurationError{Message: "bad"}, authed, http.StatusUnprocessableEntity},
		{&domain.SlotConflict{}, authed, http.StatusConflict},
		{&domain.IdentityConflict{}, authed, http.StatusConflict},
		{&domain.NameMismatchConflict{}, authed, http.StatusConflict},
		{&domain.NotFound{Entity: "user"}, authed, http.StatusNotFound},
		{domain.NewStorageError("read", errors.New("disk")), authed, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err, tt.auth), "%v", tt.err)
	}
}
