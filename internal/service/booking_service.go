package service

import (
	"context"

	"slotbook/internal/domain"
	"slotbook/internal/events"
	"slotbook/internal/models"
	"slotbook/internal/schedule"

	"github.com/rs/zerolog"
)

// BookingService moves appointments through their states:
// available -> confirmed -> available, and any -> blocked -> available.
type BookingService struct {
	base
}

func NewBookingService(repo domain.Repository, cache domain.StatusCache, eventBus domain.EventPublisher, logger *zerolog.Logger) *BookingService {
	return &BookingService{
		base: base{repo: repo, cache: cache, eventBus: eventBus, logger: logger},
	}
}

// BookingResult is the confirmed appointment and the user it belongs to.
type BookingResult struct {
	Appointment *models.Appointment `json:"appointment"`
	User        *models.User        `json:"user"`
	UserCreated bool                `json:"user_created"`
}

// BookExisting confirms appointment apptID for an existing user.
func (s *BookingService) BookExisting(ctx context.Context, auth domain.AuthContext, apptID, userID int64) (*BookingResult, error) {
	if err := auth.RequireWrite(); err != nil {
		return nil, err
	}

	result := &BookingResult{}
	err := s.repo.WithTx(ctx, func(tx domain.Store) error {
		appt, err := loadBookable(ctx, tx, apptID)
		if err != nil {
			return err
		}
		user, err := tx.GetUserByID(ctx, userID)
		if err != nil {
			return err
		}
		result.User = user
		result.Appointment = appt
		return confirm(ctx, tx, appt, user)
	})
	return s.finishBooking(ctx, "book_existing", auth, result, err)
}

// BookNew books apptID for a customer given by name and contact details.
// Existing users sharing the phone or email stop the booking: the same
// name is an IdentityConflict, a different name a NameMismatchConflict.
// Both carry the candidates; nothing is written in either case.
func (s *BookingService) BookNew(ctx context.Context, auth domain.AuthContext, apptID int64, req NewUserRequest) (*BookingResult, error) {
	return s.bookNew(ctx, auth, apptID, req, false)
}

// ForceBookNew always creates a new user. It is the operator's explicit
// answer to a conflict returned by BookNew.
func (s *BookingService) ForceBookNew(ctx context.Context, auth domain.AuthContext, apptID int64, req NewUserRequest) (*BookingResult, error) {
	return s.bookNew(ctx, auth, apptID, req, true)
}

func (s *BookingService) bookNew(ctx context.Context, auth domain.AuthContext, apptID int64, req NewUserRequest, force bool) (*BookingResult, error) {
	op := "book_new"
	if force {
		op = "force_book_new"
	}
	if err := auth.RequireWrite(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		record(op, err)
		return nil, err
	}
	proposed := req.User()

	result := &BookingResult{}
	err := s.repo.WithTx(ctx, func(tx domain.Store) error {
		// Fail on the slot before asking the operator about identities.
		appt, err := loadBookable(ctx, tx, apptID)
		if err != nil {
			return err
		}

		if !force {
			candidates, err := tx.FindUsersByContact(ctx, proposed.Phone, proposed.Email)
			if err != nil {
				return err
			}
			if err := identityConflict(proposed, candidates); err != nil {
				return err
			}
		}

		if err := tx.CreateUser(ctx, proposed); err != nil {
			return err
		}
		result.User = proposed
		result.UserCreated = true
		result.Appointment = appt
		return confirm(ctx, tx, appt, proposed)
	})
	return s.finishBooking(ctx, op, auth, result, err)
}

// identityConflict classifies contact matches against the proposed user.
func identityConflict(proposed *models.User, candidates []*models.User) error {
	if len(candidates) == 0 {
		return nil
	}
	name := proposed.NormalizedName()
	for _, c := range candidates {
		if c.NormalizedName() == name {
			return &domain.IdentityConflict{Candidates: candidates}
		}
	}
	return &domain.NameMismatchConflict{Candidates: candidates, Proposed: *proposed}
}

// loadBookable reads the appointment inside tx and checks it can be booked.
func loadBookable(ctx context.Context, tx domain.Store, apptID int64) (*models.Appointment, error) {
	appt, err := tx.GetAppointment(ctx, apptID)
	if err != nil {
		return nil, err
	}
	blocks, err := tx.ListBlockedRanges(ctx, appt.Date)
	if err != nil {
		return nil, err
	}
	if err := schedule.CheckBookable(appt, blocks); err != nil {
		return nil, err
	}
	return appt, nil
}

func confirm(ctx context.Context, tx domain.Store, appt *models.Appointment, user *models.User) error {
	appt.Status = models.StatusConfirmed
	appt.UserID = &user.ID
	return tx.UpdateAppointment(ctx, appt)
}

func (s *BookingService) finishBooking(ctx context.Context, op string, auth domain.AuthContext, result *BookingResult, err error) (*BookingResult, error) {
	record(op, err)
	if err != nil {
		return nil, err
	}

	appt := result.Appointment
	s.invalidate(ctx, appt.Date)
	s.publish(events.EventSlotBooked, events.NewAppointmentPayload(appt, result.User, auth.Subject))
	s.logger.Info().
		Str("op", op).
		Int64("appointment_id", appt.ID).
		Int64("user_id", result.User.ID).
		Str("date", models.FormatDate(appt.Date)).
		Str("time", appt.Time.String()).
		Msg("Appointment booked")
	return result, nil
}

// Cancel frees a booked slot. Blocked slots must be unblocked instead.
func (s *BookingService) Cancel(ctx context.Context, auth domain.AuthContext, apptID int64) (*models.Appointment, error) {
	return s.release(ctx, auth, "cancel", apptID, "")
}

// RemoveUser frees a slot like Cancel and marks it as made available.
func (s *BookingService) RemoveUser(ctx context.Context, auth domain.AuthContext, apptID int64) (*models.Appointment, error) {
	return s.release(ctx, auth, "remove_user", apptID, models.NotesSlotFreed)
}

func (s *BookingService) release(ctx context.Context, auth domain.AuthContext, op string, apptID int64, notes string) (*models.Appointment, error) {
	if err := auth.RequireWrite(); err != nil {
		return nil, err
	}

	var appt *models.Appointment
	var previousUser *int64
	err := s.repo.WithTx(ctx, func(tx domain.Store) error {
		var err error
		if appt, err = tx.GetAppointment(ctx, apptID); err != nil {
			return err
		}
		if appt.Status == models.StatusBlocked {
			return domain.NewValidationError("status", "appointment %d is blocked; unblock it instead", apptID)
		}
		previousUser = appt.UserID
		appt.Status = models.StatusAvailable
		appt.UserID = nil
		if notes != "" {
			appt.Notes = notes
		}
		return tx.UpdateAppointment(ctx, appt)
	})
	record(op, err)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, appt.Date)
	payload := events.NewAppointmentPayload(appt, nil, auth.Subject)
	payload.UserID = previousUser
	s.publish(events.EventSlotCancelled, payload)
	return appt, nil
}

// Block takes a slot out of service from any state, dropping its user.
func (s *BookingService) Block(ctx context.Context, auth domain.AuthContext, apptID int64) (*models.Appointment, error) {
	if err := auth.RequireWrite(); err != nil {
		return nil, err
	}

	var appt *models.Appointment
	err := s.repo.WithTx(ctx, func(tx domain.Store) error {
		var err error
		if appt, err = tx.GetAppointment(ctx, apptID); err != nil {
			return err
		}
		appt.Status = models.StatusBlocked
		appt.UserID = nil
		return tx.UpdateAppointment(ctx, appt)
	})
	record("block", err)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, appt.Date)
	s.publish(events.EventSlotBlocked, events.NewAppointmentPayload(appt, nil, auth.Subject))
	return appt, nil
}

// Unblock returns a blocked slot to available.
func (s *BookingService) Unblock(ctx context.Context, auth domain.AuthContext, apptID int64) (*models.Appointment, error) {
	if err := auth.RequireWrite(); err != nil {
		return nil, err
	}

	var appt *models.Appointment
	err := s.repo.WithTx(ctx, func(tx domain.Store) error {
		var err error
		if appt, err = tx.GetAppointment(ctx, apptID); err != nil {
			return err
		}
		if appt.Status != models.StatusBlocked {
			return domain.NewValidationError("status", "appointment %d is not blocked", apptID)
		}
		appt.Status = models.StatusAvailable
		appt.UserID = nil
		return tx.UpdateAppointment(ctx, appt)
	})
	record("unblock", err)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, appt.Date)
	s.publish(events.EventSlotUnblocked, events.NewAppointmentPayload(appt, nil, auth.Subject))
	return appt, nil
}
