package service

import (
	"net/mail"
	"strings"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/models"
)

// NewUserRequest carries the customer fields of BookNew and ForceBookNew.
type NewUserRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone_number"`
	Email     string `json:"email"`
}

func (r NewUserRequest) Validate() error {
	if strings.TrimSpace(r.FirstName) == "" {
		return domain.NewValidationError("first_name", "is required")
	}
	phone, email := strings.TrimSpace(r.Phone), strings.TrimSpace(r.Email)
	if phone == "" && email == "" {
		return domain.NewValidationError("phone_number", "phone number or email is required")
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return domain.NewValidationError("email", "invalid address %q", email)
		}
	}
	return nil
}

func (r NewUserRequest) User() *models.User {
	return &models.User{
		FirstName: strings.TrimSpace(r.FirstName),
		LastName:  strings.TrimSpace(r.LastName),
		Phone:     strings.TrimSpace(r.Phone),
		Email:     strings.TrimSpace(r.Email),
	}
}

// AddAppointmentRequest creates one slot. A zero Duration takes the
// configured slot length.
type AddAppointmentRequest struct {
	Date     time.Time
	Time     models.TimeOfDay
	Duration int
}

func (r AddAppointmentRequest) Validate() error {
	if r.Date.IsZero() {
		return domain.NewValidationError("date", "is required")
	}
	if r.Duration != 0 && (r.Duration < models.MinSlotDuration || r.Duration > models.MaxSlotDuration) {
		return domain.NewValidationError("duration", "duration must be between %d and %d minutes", models.MinSlotDuration, models.MaxSlotDuration)
	}
	return nil
}

type CreateBlockRequest struct {
	Date   time.Time
	Start  models.TimeOfDay
	End    models.TimeOfDay
	Reason string
}

func (r CreateBlockRequest) Validate() error {
	if r.Date.IsZero() {
		return domain.NewValidationError("date", "is required")
	}
	if r.Start >= r.End {
		return domain.NewValidationError("end_time", "must be after start_time")
	}
	return nil
}

func (r CreateBlockRequest) reason() string {
	if s := strings.TrimSpace(r.Reason); s != "" {
		return s
	}
	return models.DefaultBlockReason
}
