package schedule

import (
	"testing"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tod(s string) models.TimeOfDay { return models.MustParseTimeOfDay(s) }

func times(ss ...string) []models.TimeOfDay {
	out := make([]models.TimeOfDay, 0, len(ss))
	for _, s := range ss {
		out = append(out, tod(s))
	}
	return out
}

func TestBusinessHoursFromSettings(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		h, err := BusinessHoursFromSettings(nil)
		require.NoError(t, err)
		assert.Equal(t, models.DefaultBusinessHours(), h)
	})

	t.Run("PartialOverride", func(t *testing.T) {
		h, err := BusinessHoursFromSettings(map[string]string{
			models.SettingDailyStart: "08:00",
			models.SettingDuration:   "45",
		})
		require.NoError(t, err)
		assert.Equal(t, tod("08:00"), h.DailyStart)
		assert.Equal(t, tod("17:00"), h.DailyEnd)
		assert.Equal(t, tod("13:00"), h.LunchEnd)
		assert.Equal(t, 45, h.SlotDuration)
	})

	t.Run("MalformedTimeIsConfigurationError", func(t *testing.T) {
		_, err := BusinessHoursFromSettings(map[string]string{models.SettingLunchStart: "12.00"})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrConfiguration)

		var cfgErr *domain.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, models.SettingLunchStart, cfgErr.Key)
	})

	t.Run("BlankValueIsConfigurationError", func(t *testing.T) {
		for _, key := range []string{models.SettingLunchEnd, models.SettingDuration} {
			_, err := BusinessHoursFromSettings(map[string]string{key: " "})
			var cfgErr *domain.ConfigurationError
			require.ErrorAs(t, err, &cfgErr, key)
			assert.Equal(t, key, cfgErr.Key)
		}
	})

	t.Run("MalformedDuration", func(t *testing.T) {
		for _, raw := range []string{"abc", "0", "121", "-5"} {
			_, err := BusinessHoursFromSettings(map[string]string{models.SettingDuration: raw})
			assert.ErrorIs(t, err, domain.ErrConfiguration, raw)
		}
	})

	t.Run("StartAfterEnd", func(t *testing.T) {
		_, err := BusinessHoursFromSettings(map[string]string{
			models.SettingDailyStart: "18:00",
			models.SettingDailyEnd:   "09:00",
		})
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})

	t.Run("RoundTrip", func(t *testing.T) {
		h := models.BusinessHours{DailyStart: tod("07:30"), DailyEnd: tod("15:00"), LunchStart: tod("11:00"), LunchEnd: tod("11:30"), SlotDuration: 15}
		got, err := BusinessHoursFromSettings(SettingsFromHours(h))
		require.NoError(t, err)
		assert.Equal(t, h, got)
	})
}

func TestCanonicalSlots(t *testing.T) {
	t.Run("LunchAndClosingBoundaries", func(t *testing.T) {
		h := models.BusinessHours{DailyStart: tod("09:00"), DailyEnd: tod("11:00"), LunchStart: tod("10:00"), LunchEnd: tod("10:30"), SlotDuration: 30}
		assert.Equal(t, times("09:00", "09:30", "10:30"), CanonicalSlots(h))
	})

	t.Run("DefaultDay", func(t *testing.T) {
		slots := CanonicalSlots(models.DefaultBusinessHours())
		assert.Len(t, slots, 14)
		assert.Equal(t, tod("09:00"), slots[0])
		assert.Equal(t, tod("11:30"), slots[5])
		assert.Equal(t, tod("13:00"), slots[6])
		assert.Equal(t, tod("16:30"), slots[len(slots)-1])
	})

	t.Run("NoSlotPastClosing", func(t *testing.T) {
		h := models.BusinessHours{DailyStart: tod("09:00"), DailyEnd: tod("10:00"), LunchStart: tod("12:00"), LunchEnd: tod("12:00"), SlotDuration: 45}
		assert.Equal(t, times("09:00"), CanonicalSlots(h))
	})

	t.Run("EmptyLunch", func(t *testing.T) {
		h := models.BusinessHours{DailyStart: tod("09:00"), DailyEnd: tod("10:00"), LunchStart: tod("09:30"), LunchEnd: tod("09:30"), SlotDuration: 30}
		assert.Equal(t, times("09:00", "09:30"), CanonicalSlots(h))
	})
}

func TestGenerateSlotsIsIdempotent(t *testing.T) {
	h := models.BusinessHours{DailyStart: tod("09:00"), DailyEnd: tod("11:00"), LunchStart: tod("10:00"), LunchEnd: tod("10:30"), SlotDuration: 30}

	first := GenerateSlots(h, times("09:30"))
	assert.Equal(t, times("09:00", "10:30"), first)

	second := GenerateSlots(h, append(times("09:30"), first...))
	assert.Empty(t, second)
}

func TestCheckOverlap(t *testing.T) {
	date := time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC)
	existing := []*models.Appointment{
		{ID: 1, Date: date, Time: tod("09:00"), Status: models.StatusCancelled},
	}
	blocks := []*models.BlockedRange{
		{ID: 10, Date: date, Start: tod("09:00"), End: tod("10:00")},
	}

	t.Run("ExactCollisionReportedFirst", func(t *testing.T) {
		err := CheckOverlap(date, tod("09:00"), existing, blocks)
		var conflict *domain.SlotConflict
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, domain.ReasonSlotExists, conflict.Reason)
	})

	t.Run("InsideBlockedRange", func(t *testing.T) {
		err := CheckOverlap(date, tod("09:30"), existing, blocks)
		var conflict *domain.SlotConflict
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, domain.ReasonSlotBlocked, conflict.Reason)
	})

	t.Run("RangeEndIsExclusive", func(t *testing.T) {
		assert.NoError(t, CheckOverlap(date, tod("10:00"), existing, blocks))
	})
}

func TestCheckBookable(t *testing.T) {
	date := time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC)
	blocks := []*models.BlockedRange{{Start: tod("14:00"), End: tod("15:00")}}

	assert.NoError(t, CheckBookable(&models.Appointment{Date: date, Time: tod("09:00"), Status: models.StatusAvailable}, blocks))
	assert.ErrorIs(t, CheckBookable(&models.Appointment{Date: date, Time: tod("09:00"), Status: models.StatusConfirmed}, blocks), domain.ErrSlotConflict)
	assert.ErrorIs(t, CheckBookable(&models.Appointment{Date: date, Time: tod("09:00"), Status: models.StatusBlocked}, blocks), domain.ErrSlotConflict)
	assert.ErrorIs(t, CheckBookable(&models.Appointment{Date: date, Time: tod("14:30"), Status: models.StatusAvailable}, blocks), domain.ErrSlotConflict)
	assert.ErrorIs(t, CheckBookable(&models.Appointment{Date: date, Time: tod("09:00"), Status: models.StatusCancelled}, blocks), domain.ErrValidation)
}

func TestCheckBlockRange(t *testing.T) {
	date := time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC)
	existing := []*models.Appointment{
		{Time: tod("09:00"), Status: models.StatusConfirmed},
		{Time: tod("11:00"), Status: models.StatusAvailable},
	}
	blocks := []*models.BlockedRange{{Start: tod("14:00"), End: tod("15:00")}}

	assert.ErrorIs(t, CheckBlockRange(date, tod("10:00"), tod("10:00"), existing, blocks), domain.ErrValidation)
	assert.ErrorIs(t, CheckBlockRange(date, tod("08:30"), tod("09:30"), existing, blocks), domain.ErrSlotConflict)
	assert.ErrorIs(t, CheckBlockRange(date, tod("14:30"), tod("16:00"), existing, blocks), domain.ErrSlotConflict)
	assert.NoError(t, CheckBlockRange(date, tod("10:30"), tod("12:00"), existing, blocks))
	assert.NoError(t, CheckBlockRange(date, tod("15:00"), tod("16:00"), existing, blocks))
}

func TestAggregateDay(t *testing.T) {
	date := time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC)
	row := func(at string, st models.AppointmentStatus) *models.Appointment {
		return &models.Appointment{Date: date, Time: tod(at), Status: st}
	}

	tests := []struct {
		name  string
		appts []*models.Appointment
		want  models.DayAvailability
	}{
		{"NoRows", nil, models.DayNone},
		{"OnlyBlocked", []*models.Appointment{row("09:00", models.StatusBlocked), row("09:30", models.StatusCancelled)}, models.DayNone},
		{"AllAvailable", []*models.Appointment{row("09:00", models.StatusAvailable), row("09:30", models.StatusAvailable)}, models.DayAllAvailable},
		{"AllConfirmed", []*models.Appointment{row("09:00", models.StatusConfirmed), row("09:30", models.StatusConfirmed)}, models.DayAllBooked},
		{"ConfirmedPlusBlocked", []*models.Appointment{row("09:00", models.StatusConfirmed), row("09:30", models.StatusBlocked)}, models.DayAllBooked},
		{"Mixed", []*models.Appointment{row("09:00", models.StatusAvailable), row("09:30", models.StatusConfirmed), row("10:00", models.StatusBlocked)}, models.DaySomeBooked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AggregateDay(date, tt.appts)
			assert.Equal(t, tt.want, got.Status)
			assert.Len(t, got.Slots, len(tt.appts))
		})
	}

	t.Run("SlotsOrderedByTime", func(t *testing.T) {
		got := AggregateDay(date, []*models.Appointment{row("10:00", models.StatusBlocked), row("09:00", models.StatusAvailable)})
		require.Len(t, got.Slots, 2)
		assert.Equal(t, tod("09:00"), got.Slots[0].Time)
		assert.Equal(t, models.StatusBlocked, got.Slots[1].Status)
	})
}

func TestAggregateRange(t *testing.T) {
	start := time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC)
	appts := []*models.Appointment{
		{Date: start.AddDate(0, 0, 2), Time: tod("09:00"), Status: models.StatusConfirmed},
		{Date: start, Time: tod("09:00"), Status: models.StatusAvailable},
	}

	got := AggregateRange(start, 3, appts)
	require.Len(t, got, 3)
	assert.Equal(t, models.DayAllAvailable, got[0].Status)
	assert.Equal(t, models.DayNone, got[1].Status)
	assert.Equal(t, models.DayAllBooked, got[2].Status)
	assert.Equal(t, start.AddDate(0, 0, 1), got[1].Date)
}

func TestWindowBounds(t *testing.T) {
	anchor := time.Date(2025, 5, 5, 15, 4, 0, 0, time.UTC)

	start, days := DefaultWindow().Bounds(anchor)
	assert.Equal(t, time.Date(2025, 4, 5, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, 150, days)

	start, days = Window{DaysBefore: 0, DaysAfter: 7}.Bounds(anchor)
	assert.Equal(t, time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, 7, days)
}
