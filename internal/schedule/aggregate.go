package schedule

import (
	"sort"
	"time"

	"slotbook/internal/models"
)

// AggregateDay derives the availability of one date from its appointment rows.
// Blocked and cancelled rows are not bookable capacity, so a day holding only
// those is reported as none.
func AggregateDay(date time.Time, appts []*models.Appointment) models.DayStatus {
	sorted := make([]*models.Appointment, len(appts))
	copy(sorted, appts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })

	status := models.DayStatus{Date: date, Slots: make([]models.SlotStatus, 0, len(sorted))}

	var bookable, confirmed int
	for _, a := range sorted {
		status.Slots = append(status.Slots, models.SlotStatus{AppointmentID: a.ID, Time: a.Time, Status: a.Status})
		if !a.Status.Bookable() {
			continue
		}
		bookable++
		if a.Status == models.StatusConfirmed {
			confirmed++
		}
	}

	switch {
	case bookable == 0:
		status.Status = models.DayNone
	case confirmed == 0:
		status.Status = models.DayAllAvailable
	case confirmed == bookable:
		status.Status = models.DayAllBooked
	default:
		status.Status = models.DaySomeBooked
	}
	return status
}

// AggregateRange computes one DayStatus per date in [start, start+days).
// appts may span the whole range in any order.
func AggregateRange(start time.Time, days int, appts []*models.Appointment) []models.DayStatus {
	byDate := make(map[string][]*models.Appointment)
	for _, a := range appts {
		key := models.FormatDate(a.Date)
		byDate[key] = append(byDate[key], a)
	}

	out := make([]models.DayStatus, 0, max(days, 0))
	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i)
		out = append(out, AggregateDay(date, byDate[models.FormatDate(date)]))
	}
	return out
}

// Window is the calendar span shown around an anchor date.
type Window struct {
	DaysBefore int
	DaysAfter  int
}

// DefaultWindow spans 30 days back and 120 days ahead.
func DefaultWindow() Window {
	return Window{DaysBefore: models.DefaultWindowDaysBefore, DaysAfter: models.DefaultWindowDaysAfter}
}

// Bounds returns the first date and the number of days covered for anchor.
// The range is [anchor-DaysBefore, anchor+DaysAfter).
func (w Window) Bounds(anchor time.Time) (time.Time, int) {
	start := models.DateOf(anchor).AddDate(0, 0, -w.DaysBefore)
	return start, w.DaysBefore + w.DaysAfter
}
