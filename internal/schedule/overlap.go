package schedule

import (
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/models"
)

// CheckOverlap validates a proposed slot at t on date. An existing row at the
// exact time, whatever its status, wins over a blocked-range hit.
func CheckOverlap(date time.Time, t models.TimeOfDay, existing []*models.Appointment, blocks []*models.BlockedRange) error {
	for _, a := range existing {
		if a.Time == t {
			return &domain.SlotConflict{Date: date, Time: t, Reason: domain.ReasonSlotExists}
		}
	}
	return checkBlocked(date, t, blocks)
}

// CheckBookable validates that appt can move to confirmed.
func CheckBookable(appt *models.Appointment, blocks []*models.BlockedRange) error {
	switch appt.Status {
	case models.StatusAvailable:
	case models.StatusConfirmed:
		return &domain.SlotConflict{Date: appt.Date, Time: appt.Time, Reason: domain.ReasonSlotBooked}
	case models.StatusBlocked:
		return &domain.SlotConflict{Date: appt.Date, Time: appt.Time, Reason: domain.ReasonSlotBlocked}
	case models.StatusCancelled:
		return domain.NewValidationError("status", "appointment %d is cancelled", appt.ID)
	default:
		return domain.NewValidationError("status", "unknown status %q", appt.Status)
	}
	return checkBlocked(appt.Date, appt.Time, blocks)
}

// CheckBlockRange validates a new blocked range [start, end) against the
// existing blocks and the confirmed appointments of the same date.
func CheckBlockRange(date time.Time, start, end models.TimeOfDay, existing []*models.Appointment, blocks []*models.BlockedRange) error {
	if start >= end {
		return domain.NewValidationError("end_time", "must be after start_time")
	}
	for _, b := range blocks {
		if b.Overlaps(start, end) {
			return &domain.SlotConflict{Date: date, Time: start, Reason: domain.ReasonBlockOverlap}
		}
	}
	for _, a := range existing {
		if a.Status == models.StatusConfirmed && start <= a.Time && a.Time < end {
			return &domain.SlotConflict{Date: date, Time: a.Time, Reason: domain.ReasonBlockBooked}
		}
	}
	return nil
}

func checkBlocked(date time.Time, t models.TimeOfDay, blocks []*models.BlockedRange) error {
	for _, b := range blocks {
		if b.Contains(t) {
			return &domain.SlotConflict{Date: date, Time: t, Reason: domain.ReasonSlotBlocked}
		}
	}
	return nil
}
