package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/models"
)

const userColumns = `id, first_name, last_name, phone_number, email, created_at`

func (q *Queries) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFound{Entity: "user", ID: id}
	}
	if err != nil {
		return nil, domain.NewStorageError("get user", err)
	}
	return user, nil
}

// FindUsersByContact returns users whose phone equals phone OR whose email
// equals email (case-insensitive). Empty arguments never match. Each user
// appears once, ordered by id.
func (q *Queries) FindUsersByContact(ctx context.Context, phone, email string) ([]*models.User, error) {
	phone = strings.TrimSpace(phone)
	email = strings.TrimSpace(email)
	if phone == "" && email == "" {
		return nil, nil
	}

	query := `SELECT ` + userColumns + ` FROM users
              WHERE (? <> '' AND phone_number = ?)
                 OR (? <> '' AND lower(email) = lower(?))
              ORDER BY id`
	rows, err := q.q.QueryContext(ctx, query, phone, phone, email, email)
	if err != nil {
		return nil, domain.NewStorageError("find users by contact", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, domain.NewStorageError("scan user", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("iterate users", err)
	}
	return users, nil
}

func (q *Queries) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (first_name, last_name, phone_number, email, created_at) VALUES (?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := q.q.ExecContext(ctx, query,
		strings.TrimSpace(user.FirstName),
		strings.TrimSpace(user.LastName),
		strings.TrimSpace(user.Phone),
		strings.TrimSpace(user.Email),
		now,
	)
	if err != nil {
		return domain.NewStorageError("create user", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return domain.NewStorageError("get last insert id", err)
	}
	user.ID = id
	user.CreatedAt = now
	return nil
}

func scanUser(r rowScanner) (*models.User, error) {
	var u models.User
	if err := r.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Phone, &u.Email, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
