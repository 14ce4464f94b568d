// Package schedule holds the pure slot arithmetic: business-hours parsing,
// slot generation, overlap checks and day-status aggregation. Nothing here
// touches storage.
package schedule

import (
	"strconv"
	"strings"

	"slotbook/internal/domain"
	"slotbook/internal/models"
)

// BusinessHoursFromSettings builds hours from a key-value settings map.
// Missing keys take their defaults. A present key that is blank or
// malformed is a ConfigurationError.
func BusinessHoursFromSettings(settings map[string]string) (models.BusinessHours, error) {
	hours := models.DefaultBusinessHours()

	timeFields := []struct {
		key string
		dst *models.TimeOfDay
	}{
		{models.SettingDailyStart, &hours.DailyStart},
		{models.SettingDailyEnd, &hours.DailyEnd},
		{models.SettingLunchStart, &hours.LunchStart},
		{models.SettingLunchEnd, &hours.LunchEnd},
	}
	for _, f := range timeFields {
		raw, ok := lookup(settings, f.key)
		if !ok {
			continue
		}
		t, err := models.ParseTimeOfDay(raw)
		if err != nil {
			return models.BusinessHours{}, &domain.ConfigurationError{Key: f.key, Value: raw, Message: "expected HH:MM in 24-hour form"}
		}
		*f.dst = t
	}

	if raw, ok := lookup(settings, models.SettingDuration); ok {
		d, err := ParseDuration(raw)
		if err != nil {
			return models.BusinessHours{}, &domain.ConfigurationError{Key: models.SettingDuration, Value: raw, Message: "expected whole minutes between 1 and 120"}
		}
		hours.SlotDuration = d
	}

	if err := ValidateHours(hours); err != nil {
		return models.BusinessHours{}, err
	}
	return hours, nil
}

// ValidateHours checks the ordering constraints between the fields.
func ValidateHours(h models.BusinessHours) error {
	if h.DailyStart >= h.DailyEnd {
		return &domain.ConfigurationError{Message: "daily start must be before daily end"}
	}
	if h.LunchStart > h.LunchEnd {
		return &domain.ConfigurationError{Message: "lunch start must not be after lunch end"}
	}
	if !validDuration(h.SlotDuration) {
		return &domain.ConfigurationError{Key: models.SettingDuration, Value: strconv.Itoa(h.SlotDuration), Message: durationRangeMessage}
	}
	return nil
}

// SettingsFromHours is the inverse of BusinessHoursFromSettings.
func SettingsFromHours(h models.BusinessHours) map[string]string {
	return map[string]string{
		models.SettingDailyStart: h.DailyStart.String(),
		models.SettingDailyEnd:   h.DailyEnd.String(),
		models.SettingLunchStart: h.LunchStart.String(),
		models.SettingLunchEnd:   h.LunchEnd.String(),
		models.SettingDuration:   strconv.Itoa(h.SlotDuration),
	}
}

const durationRangeMessage = "duration must be between 1 and 120 minutes"

// ParseDuration parses a slot length in whole minutes.
func ParseDuration(raw string) (int, error) {
	d, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, domain.NewValidationError("duration", "expected whole minutes, got %q", raw)
	}
	if !validDuration(d) {
		return 0, domain.NewValidationError("duration", durationRangeMessage)
	}
	return d, nil
}

func validDuration(d int) bool {
	return d >= models.MinSlotDuration && d <= models.MaxSlotDuration
}

func lookup(settings map[string]string, key string) (string, bool) {
	raw, ok := settings[key]
	return raw, ok
}
