package models

// Settings keys of the business-hours configuration.
const (
	SettingDailyStart = "daily_start_time"
	SettingDailyEnd   = "daily_end_time"
	SettingLunchStart = "lunch_start_time"
	SettingLunchEnd   = "lunch_end_time"
	SettingDuration   = "appointment_duration"
)

// BusinessHoursKeys lists every recognized settings key.
var BusinessHoursKeys = []string{
	SettingDailyStart,
	SettingDailyEnd,
	SettingLunchStart,
	SettingLunchEnd,
	SettingDuration,
}

type BusinessHours struct {
	DailyStart   TimeOfDay `json:"daily_start_time"`
	DailyEnd     TimeOfDay `json:"daily_end_time"`
	LunchStart   TimeOfDay `json:"lunch_start_time"`
	LunchEnd     TimeOfDay `json:"lunch_end_time"`
	SlotDuration int       `json:"appointment_duration"`
}

// DefaultBusinessHours is 09:00-17:00 with lunch 12:00-13:00 and 30 minute slots.
func DefaultBusinessHours() BusinessHours {
	return BusinessHours{
		DailyStart:   9 * 60,
		DailyEnd:     17 * 60,
		LunchStart:   12 * 60,
		LunchEnd:     13 * 60,
		SlotDuration: DefaultSlotDuration,
	}
}
