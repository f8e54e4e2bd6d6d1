package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/renewhq/renewd/internal/models"
)

// SQLiteStore is the "table" backend: one row per retry in a dedicated
// retries table, with the rule snapshot serialized into a TEXT column.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS retries (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			scheduled_at DATETIME NOT NULL,
			rule TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_retries_order ON retries(order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_retries_status_scheduled ON retries(status, scheduled_at)`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, r *models.Retry) (string, error) {
	now := time.Now().UTC()
	if r.ID == "" {
		r.ID = models.NewID("ret")
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
	}
	r.UpdatedAt = now

	rule, err := json.Marshal(r.Rule)
	if err != nil {
		return "", fmt.Errorf("marshal rule snapshot: %w", err)
	}

	// Immutable fields stay as inserted; a repeat save only moves status.
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO retries (id, order_id, status, scheduled_at, rule, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		r.ID, r.OrderID, r.Status, r.ScheduledAt.UTC(), string(rule), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

func (s *SQLiteStore) scanRetry(row interface{ Scan(...interface{}) error }) (*models.Retry, error) {
	var r models.Retry
	var rule string
	err := row.Scan(&r.ID, &r.OrderID, &r.Status, &r.ScheduledAt, &rule, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(rule), &r.Rule); err != nil {
		return nil, fmt.Errorf("unmarshal rule snapshot: %w", err)
	}
	return &r, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Retry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, order_id, status, scheduled_at, rule, created_at, updated_at FROM retries WHERE id = ?`, id)
	r, err := s.scanRetry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM retries WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]models.Retry, error) {
	query := `SELECT id, order_id, status, scheduled_at, rule, created_at, updated_at FROM retries WHERE 1=1`
	var args []interface{}

	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.OrderID != "" {
		query += ` AND order_id = ?`
		args = append(args, f.OrderID)
	}
	if !f.From.IsZero() {
		query += ` AND scheduled_at >= ?`
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		query += ` AND scheduled_at <= ?`
		args = append(args, f.To.UTC())
	}

	orderBy := "scheduled_at"
	if f.OrderBy == "created_at" {
		orderBy = "created_at"
	}
	dir := "DESC"
	if f.Ascending {
		dir = "ASC"
	}
	query += fmt.Sprintf(` ORDER BY %s %s, id %s`, orderBy, dir, dir)

	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var retries []models.Retry
	for rows.Next() {
		r, err := s.scanRetry(rows)
		if err != nil {
			return nil, err
		}
		retries = append(retries, *r)
	}
	return retries, rows.Err()
}

func (s *SQLiteStore) CountForOrder(ctx context.Context, orderID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM retries WHERE order_id = ?`, orderID).Scan(&n)
	return n, err
}

func (s *SQLiteStore) LastForOrder(ctx context.Context, orderID string) (*models.Retry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, order_id, status, scheduled_at, rule, created_at, updated_at
		 FROM retries WHERE order_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`, orderID)
	r, err := s.scanRetry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func (s *SQLiteStore) IDsForOrder(ctx context.Context, orderID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM retries WHERE order_id = ? ORDER BY created_at ASC, id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) Transition(ctx context.Context, id string, from, to models.RetryStatus) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("illegal retry transition %s -> %s", from, to)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE retries SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, time.Now().UTC(), id, from,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM retries`).Scan(&stats.Total); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM retries GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var status models.RetryStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		switch status {
		case models.RetryPending:
			stats.Pending = n
		case models.RetryProcessing:
			stats.Processing = n
		case models.RetryComplete:
			stats.Complete = n
		case models.RetryFailed:
			stats.Failed = n
		case models.RetryCancelled:
			stats.Cancelled = n
		}
	}
	return stats, rows.Err()
}
