package models

import "strconv"

const (
	// DefaultSlotDuration длительность слота в минутах
	DefaultSlotDuration = 30

	// MinSlotDuration и MaxSlotDuration допустимые границы длительности
	MinSlotDuration = 1
	MaxSlotDuration = 120

	// DefaultWindowDaysBefore и DefaultWindowDaysAfter окно календаря вокруг сегодняшней даты
	DefaultWindowDaysBefore = 30
	DefaultWindowDaysAfter  = 120

	// MaxRangeDays верхняя граница окна для одного запроса статусов
	MaxRangeDays = 366

	// DefaultStatusCacheTTL время жизни кэша статусов дня в секундах
	DefaultStatusCacheTTL = 10 * 60

	// DefaultBlockReason причина блокировки по умолчанию
	DefaultBlockReason = "Admin blocked"

	// NotesSlotFreed заметка при освобождении слота администратором
	NotesSlotFreed = "Slot made available"
)

// SlotNotes is the note attached to generated and manually added slots.
func SlotNotes(duration int) string {
	return "Duration: " + strconv.Itoa(duration) + " minutes"
}
