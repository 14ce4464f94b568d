package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/models"
)

const blockColumns = `id, block_date, start_time, end_time, reason, created_at`

func (q *Queries) GetBlockedRange(ctx context.Context, id int64) (*models.BlockedRange, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+blockColumns+` FROM blocked_times WHERE id = ?`, id)
	block, err := scanBlock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFound{Entity: "blocked range", ID: id}
	}
	if err != nil {
		return nil, domain.NewStorageError("get blocked range", err)
	}
	return block, nil
}

func (q *Queries) ListBlockedRanges(ctx context.Context, date time.Time) ([]*models.BlockedRange, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+blockColumns+` FROM blocked_times WHERE block_date = ? ORDER BY start_time`, models.FormatDate(date))
	if err != nil {
		return nil, domain.NewStorageError("list blocked ranges", err)
	}
	defer rows.Close()

	var blocks []*models.BlockedRange
	for rows.Next() {
		block, err := scanBlock(rows)
		if err != nil {
			return nil, domain.NewStorageError("scan blocked range", err)
		}
		blocks = append(blocks, block)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("iterate blocked ranges", err)
	}
	return blocks, nil
}

func (q *Queries) CreateBlockedRange(ctx context.Context, block *models.BlockedRange) error {
	query := `INSERT INTO blocked_times (block_date, start_time, end_time, reason, created_at) VALUES (?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := q.q.ExecContext(ctx, query, models.FormatDate(block.Date), block.Start, block.End, block.Reason, now)
	if err != nil {
		return domain.NewStorageError("create blocked range", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return domain.NewStorageError("get last insert id", err)
	}
	block.ID = id
	block.CreatedAt = now
	return nil
}

func (q *Queries) DeleteBlockedRange(ctx context.Context, id int64) error {
	result, err := q.q.ExecContext(ctx, `DELETE FROM blocked_times WHERE id = ?`, id)
	if err != nil {
		return domain.NewStorageError("delete blocked range", err)
	}
	return expectAffected(result, "blocked range", id)
}

func scanBlock(r rowScanner) (*models.BlockedRange, error) {
	var (
		b    models.BlockedRange
		date string
	)
	if err := r.Scan(&b.ID, &date, &b.Start, &b.End, &b.Reason, &b.CreatedAt); err != nil {
		return nil, err
	}
	d, err := models.ParseDate(date)
	if err != nil {
		return nil, err
	}
	b.Date = d
	return &b, nil
}
