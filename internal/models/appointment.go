package models

import (
	"fmt"
	"time"
)

// AppointmentStatus is the closed set of slot states.
type AppointmentStatus string

const (
	StatusAvailable AppointmentStatus = "available"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusBlocked   AppointmentStatus = "blocked"
	StatusCancelled AppointmentStatus = "cancelled"
)

// ParseAppointmentStatus rejects anything outside the closed set.
func ParseAppointmentStatus(s string) (AppointmentStatus, error) {
	switch st := AppointmentStatus(s); st {
	case StatusAvailable, StatusConfirmed, StatusBlocked, StatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("unknown appointment status %q", s)
	}
}

// Bookable reports whether the slot counts as bookable capacity.
func (s AppointmentStatus) Bookable() bool {
	switch s {
	case StatusAvailable, StatusConfirmed:
		return true
	case StatusBlocked, StatusCancelled:
		return false
	default:
		return false
	}
}

type Appointment struct {
	ID        int64             `json:"id"`
	Date      time.Time         `json:"date"`
	Time      TimeOfDay         `json:"time"`
	Duration  int               `json:"duration"`
	Status    AppointmentStatus `json:"status"`
	UserID    *int64            `json:"user_id,omitempty"`
	Notes     string            `json:"notes"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// End is the nominal end of the slot.
func (a *Appointment) End() TimeOfDay {
	return a.Time.Add(a.Duration)
}

// AppointmentDetail is an appointment joined with its booked user, if any.
type AppointmentDetail struct {
	Appointment
	User *User `json:"user,omitempty"`
}

// BlockedRange marks [Start, End) on a date as unavailable for booking.
type BlockedRange struct {
	ID        int64     `json:"id"`
	Date      time.Time `json:"date"`
	Start     TimeOfDay `json:"start_time"`
	End       TimeOfDay `json:"end_time"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Contains reports whether t falls inside the half-open range.
func (b *BlockedRange) Contains(t TimeOfDay) bool {
	return b.Start <= t && t < b.End
}

// Overlaps reports whether the half-open ranges intersect.
func (b *BlockedRange) Overlaps(start, end TimeOfDay) bool {
	return start < b.End && b.Start < end
}

// TimelineEntry is one row of the merged day view of bookings and blocks.
type TimelineEntry struct {
	Time          TimeOfDay `json:"time"`
	Kind          string    `json:"status"`
	Label         string    `json:"label"`
	Email         string    `json:"email,omitempty"`
	AppointmentID int64     `json:"appointment_id,omitempty"`
	BlockID       int64     `json:"block_id,omitempty"`
}

const (
	TimelineBooked  = "booked"
	TimelineBlocked = "blocked"
)
