package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/models"
)

const appointmentColumns = `id, appointment_date, appointment_time, duration, status, user_id, notes, created_at, updated_at`

func (q *Queries) GetAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, id)
	appt, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFound{Entity: "appointment", ID: id}
	}
	if err != nil {
		return nil, domain.NewStorageError("get appointment", err)
	}
	return appt, nil
}

// ListAppointmentsByDate returns the rows of one date ordered by time.
func (q *Queries) ListAppointmentsByDate(ctx context.Context, date time.Time) ([]*models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments
              WHERE appointment_date = ?
              ORDER BY appointment_time`
	return q.listAppointments(ctx, query, models.FormatDate(date))
}

// ListAppointmentsInRange returns rows with start <= date < end ordered by date and time.
func (q *Queries) ListAppointmentsInRange(ctx context.Context, start, end time.Time) ([]*models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments
              WHERE appointment_date >= ? AND appointment_date < ?
              ORDER BY appointment_date, appointment_time`
	return q.listAppointments(ctx, query, models.FormatDate(start), models.FormatDate(end))
}

func (q *Queries) listAppointments(ctx context.Context, query string, args ...any) ([]*models.Appointment, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.NewStorageError("list appointments", err)
	}
	defer rows.Close()

	var appts []*models.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, domain.NewStorageError("scan appointment", err)
		}
		appts = append(appts, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("iterate appointments", err)
	}
	return appts, nil
}

// ListAppointmentDetails returns appointments in [start, end) joined with their users.
func (q *Queries) ListAppointmentDetails(ctx context.Context, start, end time.Time) ([]*models.AppointmentDetail, error) {
	query := `SELECT a.id, a.appointment_date, a.appointment_time, a.duration, a.status, a.user_id, a.notes, a.created_at, a.updated_at,
                     u.first_name, u.last_name, u.phone_number, u.email, u.created_at
              FROM appointments a
              LEFT JOIN users u ON u.id = a.user_id
              WHERE a.appointment_date >= ? AND a.appointment_date < ?
              ORDER BY a.appointment_date, a.appointment_time`
	rows, err := q.q.QueryContext(ctx, query, models.FormatDate(start), models.FormatDate(end))
	if err != nil {
		return nil, domain.NewStorageError("list appointment details", err)
	}
	defer rows.Close()

	var out []*models.AppointmentDetail
	for rows.Next() {
		var (
			d                         models.AppointmentDetail
			date, status              string
			userID                    sql.NullInt64
			first, last, phone, email sql.NullString
			userCreated               sql.NullTime
		)
		if err := rows.Scan(&d.ID, &date, &d.Time, &d.Duration, &status, &userID, &d.Notes, &d.CreatedAt, &d.UpdatedAt,
			&first, &last, &phone, &email, &userCreated); err != nil {
			return nil, domain.NewStorageError("scan appointment detail", err)
		}
		if err := fillAppointment(&d.Appointment, date, status, userID); err != nil {
			return nil, domain.NewStorageError("decode appointment detail", err)
		}
		if userID.Valid && first.Valid {
			d.User = &models.User{
				ID:        userID.Int64,
				FirstName: first.String,
				LastName:  last.String,
				Phone:     phone.String,
				Email:     email.String,
				CreatedAt: userCreated.Time,
			}
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("iterate appointment details", err)
	}
	return out, nil
}

// CreateAppointment inserts a row. A second row at the same date and time is
// rejected by the unique index and reported as a SlotConflict.
func (q *Queries) CreateAppointment(ctx context.Context, appt *models.Appointment) error {
	query := `INSERT INTO appointments (appointment_date, appointment_time, duration, status, user_id, notes, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := q.q.ExecContext(ctx, query,
		models.FormatDate(appt.Date),
		appt.Time,
		appt.Duration,
		string(appt.Status),
		nullableID(appt.UserID),
		appt.Notes,
		now,
		now,
	)
	if isUniqueViolation(err) {
		return &domain.SlotConflict{Date: appt.Date, Time: appt.Time, Reason: domain.ReasonSlotExists}
	}
	if err != nil {
		return domain.NewStorageError("create appointment", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return domain.NewStorageError("get last insert id", err)
	}
	appt.ID = id
	appt.CreatedAt = now
	appt.UpdatedAt = now
	return nil
}

// UpdateAppointment persists status, user and notes.
func (q *Queries) UpdateAppointment(ctx context.Context, appt *models.Appointment) error {
	query := `UPDATE appointments SET status = ?, user_id = ?, notes = ?, updated_at = ? WHERE id = ?`
	now := time.Now()
	result, err := q.q.ExecContext(ctx, query, string(appt.Status), nullableID(appt.UserID), appt.Notes, now, appt.ID)
	if err != nil {
		return domain.NewStorageError("update appointment", err)
	}
	if err := expectAffected(result, "appointment", appt.ID); err != nil {
		return err
	}
	appt.UpdatedAt = now
	return nil
}

func (q *Queries) DeleteAppointment(ctx context.Context, id int64) error {
	result, err := q.q.ExecContext(ctx, `DELETE FROM appointments WHERE id = ?`, id)
	if err != nil {
		return domain.NewStorageError("delete appointment", err)
	}
	return expectAffected(result, "appointment", id)
}

// DeleteAppointmentsByDate removes every row of a date and returns how many went.
func (q *Queries) DeleteAppointmentsByDate(ctx context.Context, date time.Time) (int64, error) {
	result, err := q.q.ExecContext(ctx, `DELETE FROM appointments WHERE appointment_date = ?`, models.FormatDate(date))
	if err != nil {
		return 0, domain.NewStorageError("delete appointments by date", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, domain.NewStorageError("count deleted appointments", err)
	}
	return n, nil
}

func scanAppointment(r rowScanner) (*models.Appointment, error) {
	var (
		a            models.Appointment
		date, status string
		userID       sql.NullInt64
	)
	if err := r.Scan(&a.ID, &date, &a.Time, &a.Duration, &status, &userID, &a.Notes, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if err := fillAppointment(&a, date, status, userID); err != nil {
		return nil, err
	}
	return &a, nil
}

func fillAppointment(a *models.Appointment, date, status string, userID sql.NullInt64) error {
	d, err := models.ParseDate(date)
	if err != nil {
		return err
	}
	st, err := models.ParseAppointmentStatus(status)
	if err != nil {
		return err
	}
	a.Date = d
	a.Status = st
	if userID.Valid {
		id := userID.Int64
		a.UserID = &id
	}
	return nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func expectAffected(result sql.Result, entity string, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return domain.NewStorageError("count affected rows", err)
	}
	if n == 0 {
		return &domain.NotFound{Entity: entity, ID: id}
	}
	return nil
}
