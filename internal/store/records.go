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

const retryKind = "retry"

// RecordStore is the "records" backend: retries live as tagged rows in a
// generic records table, with the whole record serialized into a JSON body.
// The status and scheduled_at columns are lifted out of the body purely so
// the same filter queries work; on read the column values win, since
// Transition updates only the columns.
type RecordStore struct {
	db *sql.DB
}

func NewRecords(path string) (*RecordStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &RecordStore{db: db}, nil
}

func (s *RecordStore) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			ref_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT '',
			scheduled_at DATETIME,
			body TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_kind_ref ON records(kind, ref_id)`,
		`CREATE INDEX IF NOT EXISTS idx_records_kind_status ON records(kind, status, scheduled_at)`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *RecordStore) Close() error {
	return s.db.Close()
}

func (s *RecordStore) Save(ctx context.Context, r *models.Retry) (string, error) {
	now := time.Now().UTC()
	if r.ID == "" {
		r.ID = models.NewID("ret")
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
	}
	r.UpdatedAt = now

	body, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal retry record: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (id, kind, ref_id, status, scheduled_at, body, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status, body = excluded.body, updated_at = excluded.updated_at`,
		r.ID, retryKind, r.OrderID, r.Status, r.ScheduledAt.UTC(), string(body), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

func (s *RecordStore) scanRetry(row interface{ Scan(...interface{}) error }) (*models.Retry, error) {
	var body string
	var status models.RetryStatus
	var updatedAt time.Time
	if err := row.Scan(&body, &status, &updatedAt); err != nil {
		return nil, err
	}
	var r models.Retry
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("unmarshal retry record: %w", err)
	}
	r.Status = status
	r.UpdatedAt = updatedAt
	return &r, nil
}

func (s *RecordStore) Get(ctx context.Context, id string) (*models.Retry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT body, status, updated_at FROM records WHERE id = ? AND kind = ?`, id, retryKind)
	r, err := s.scanRetry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func (s *RecordStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ? AND kind = ?`, id, retryKind)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *RecordStore) List(ctx context.Context, f Filter) ([]models.Retry, error) {
	query := `SELECT body, status, updated_at FROM records WHERE kind = ?`
	args := []interface{}{retryKind}

	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.OrderID != "" {
		query += ` AND ref_id = ?`
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

func (s *RecordStore) CountForOrder(ctx context.Context, orderID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE kind = ? AND ref_id = ?`, retryKind, orderID).Scan(&n)
	return n, err
}

func (s *RecordStore) LastForOrder(ctx context.Context, orderID string) (*models.Retry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT body, status, updated_at FROM records
		 WHERE kind = ? AND ref_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`, retryKind, orderID)
	r, err := s.scanRetry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func (s *RecordStore) IDsForOrder(ctx context.Context, orderID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM records WHERE kind = ? AND ref_id = ? ORDER BY created_at ASC, id ASC`, retryKind, orderID)
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

func (s *RecordStore) Transition(ctx context.Context, id string, from, to models.RetryStatus) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("illegal retry transition %s -> %s", from, to)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET status = ?, updated_at = ? WHERE id = ? AND kind = ? AND status = ?`,
		to, time.Now().UTC(), id, retryKind, from,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *RecordStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE kind = ?`, retryKind).Scan(&stats.Total); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM records WHERE kind = ? GROUP BY status`, retryKind)
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
