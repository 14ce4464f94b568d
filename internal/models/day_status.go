package models

import "time"

// DayAvailability is the aggregate availability of a calendar date.
type DayAvailability string

const (
	DayNone         DayAvailability = "none"
	DayAllAvailable DayAvailability = "all_available"
	DayAllBooked    DayAvailability = "all_booked"
	DaySomeBooked   DayAvailability = "some_booked"
)

type SlotStatus struct {
	AppointmentID int64             `json:"appointment_id"`
	Time          TimeOfDay         `json:"time"`
	Status        AppointmentStatus `json:"status"`
}

type DayStatus struct {
	Date   time.Time       `json:"date"`
	Status DayAvailability `json:"status"`
	Slots  []SlotStatus    `json:"slots"`
}
