package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"slotbook/internal/domain"
)

func (q *Queries) GetSettings(ctx context.Context) (map[string]string, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT key_name, value FROM settings`)
	if err != nil {
		return nil, domain.NewStorageError("get settings", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, domain.NewStorageError("scan setting", err)
		}
		settings[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("iterate settings", err)
	}
	return settings, nil
}

func (q *Queries) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := q.q.QueryRowContext(ctx, `SELECT value FROM settings WHERE key_name = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, domain.NewStorageError("get setting", err)
	}
	return value, true, nil
}

func (q *Queries) SetSetting(ctx context.Context, key, value string) error {
	query := `INSERT INTO settings (key_name, value, updated_at) VALUES (?, ?, ?)
              ON CONFLICT(key_name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := q.q.ExecContext(ctx, query, key, value, time.Now()); err != nil {
		return domain.NewStorageError("set setting", err)
	}
	return nil
}

// SetSettingIfAbsent writes value only when key has no row yet and reports whether it did.
func (q *Queries) SetSettingIfAbsent(ctx context.Context, key, value string) (bool, error) {
	result, err := q.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key_name, value, updated_at) VALUES (?, ?, ?)`, key, value, time.Now())
	if err != nil {
		return false, domain.NewStorageError("seed setting", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, domain.NewStorageError("count seeded settings", err)
	}
	return n > 0, nil
}
