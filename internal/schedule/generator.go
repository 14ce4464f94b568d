package schedule

import (
	"slotbook/internal/models"
)

// CanonicalSlots returns every slot start of a working day, in order.
// A slot starting inside [LunchStart, LunchEnd) is skipped, and no slot may
// end after DailyEnd.
func CanonicalSlots(h models.BusinessHours) []models.TimeOfDay {
	if h.SlotDuration <= 0 {
		return nil
	}

	var slots []models.TimeOfDay
	for t := h.DailyStart; t < h.DailyEnd; t = t.Add(h.SlotDuration) {
		if t.Add(h.SlotDuration) > h.DailyEnd {
			break
		}
		if h.LunchStart <= t && t < h.LunchEnd {
			continue
		}
		slots = append(slots, t)
	}
	return slots
}

// GenerateSlots returns the canonical slots not already present in existing.
// Feeding the result back as existing yields nothing, which keeps generation
// idempotent.
func GenerateSlots(h models.BusinessHours, existing []models.TimeOfDay) []models.TimeOfDay {
	taken := make(map[models.TimeOfDay]struct{}, len(existing))
	for _, t := range existing {
		taken[t] = struct{}{}
	}

	var missing []models.TimeOfDay
	for _, t := range CanonicalSlots(h) {
		if _, ok := taken[t]; ok {
			continue
		}
		missing = append(missing, t)
	}
	return missing
}

// Times extracts the slot times of the given appointments.
func Times(appts []*models.Appointment) []models.TimeOfDay {
	out := make([]models.TimeOfDay, 0, len(appts))
	for _, a := range appts {
		out = append(out, a.Time)
	}
	return out
}
