package domain

import (
	"errors"
	"fmt"
	"time"

	"slotbook/internal/models"
)

// Error kinds. Every concrete error below unwraps to exactly one of them, so
// callers can branch with errors.Is and extract details with errors.As.
var (
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrSlotConflict  = errors.New("slot conflict")
	ErrIdentity      = errors.New("identity conflict")
	ErrNameMismatch  = errors.New("name mismatch conflict")
	ErrNotFound      = errors.New("not found")
	ErrStorage       = errors.New("storage error")
	ErrUnauthorized  = errors.New("unauthorized")
)

// ValidationError reports malformed caller input.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConfigurationError reports a malformed business-hours setting.
type ConfigurationError struct {
	Key     string
	Value   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Key == "" {
		return "invalid business hours: " + e.Message
	}
	return fmt.Sprintf("invalid setting %s=%q: %s", e.Key, e.Value, e.Message)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// SlotConflict reports an exact-time collision or a blocked-range overlap.
type SlotConflict struct {
	Date   time.Time
	Time   models.TimeOfDay
	Reason string
}

func (e *SlotConflict) Error() string {
	return fmt.Sprintf("slot %s %s: %s", models.FormatDate(e.Date), e.Time, e.Reason)
}

func (e *SlotConflict) Unwrap() error { return ErrSlotConflict }

const (
	ReasonSlotExists   = "time slot already exists"
	ReasonSlotBooked   = "time slot already booked"
	ReasonSlotBlocked  = "time slot is blocked"
	ReasonBlockOverlap = "overlaps an existing blocked range"
	ReasonBlockBooked  = "range covers a confirmed appointment"
)

// IdentityConflict means a user with the same name and contact already exists.
type IdentityConflict struct {
	Candidates []*models.User
}

func (e *IdentityConflict) Error() string {
	return fmt.Sprintf("user already exists (%d matching)", len(e.Candidates))
}

func (e *IdentityConflict) Unwrap() error { return ErrIdentity }

// NameMismatchConflict means the contact details belong to differently named users.
type NameMismatchConflict struct {
	Candidates []*models.User
	Proposed   models.User
}

func (e *NameMismatchConflict) Error() string {
	return fmt.Sprintf("contact details match %d user(s) with a different name", len(e.Candidates))
}

func (e *NameMismatchConflict) Unwrap() error { return ErrNameMismatch }

// NotFound reports a reference to a missing entity.
type NotFound struct {
	Entity string
	ID     int64
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFound) Unwrap() error { return ErrNotFound }

// StorageError wraps a persistence failure. It matches both ErrStorage and the cause.
type StorageError struct {
	Op  string
	Err error
}

func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }
