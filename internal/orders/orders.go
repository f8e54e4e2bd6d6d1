// Package orders is the boundary to the order/subscription entities. The
// retry manager only reads an order's status to re-check eligibility and
// writes the statuses a rule dictates; it never treats order state as the
// source of truth for retry state. The SQLite implementation exists so the
// service runs standalone; a deployment embedded in a billing platform
// swaps in its own Service.
package orders

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/renewhq/renewd/internal/models"
)

type Service interface {
	// Get returns (nil, nil) when the order does not exist.
	Get(ctx context.Context, id string) (*models.Order, error)
	Create(ctx context.Context, o *models.Order) error
	SetStatus(ctx context.Context, id string, status models.OrderStatus) error
	SetSubscriptionStatus(ctx context.Context, id string, status models.SubscriptionStatus) error
}

type SQLiteService struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteService, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &SQLiteService{db: db}, nil
}

func (s *SQLiteService) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			subscription_id TEXT NOT NULL DEFAULT '',
			customer_email TEXT NOT NULL DEFAULT '',
			amount_cents INTEGER NOT NULL DEFAULT 0,
			currency TEXT NOT NULL DEFAULT 'USD',
			status TEXT NOT NULL DEFAULT 'pending',
			subscription_status TEXT NOT NULL DEFAULT 'active',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	return err
}

func (s *SQLiteService) Close() error {
	return s.db.Close()
}

func (s *SQLiteService) Create(ctx context.Context, o *models.Order) error {
	if o.ID == "" {
		o.ID = models.NewID("ord")
	}
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (id, subscription_id, customer_email, amount_cents, currency, status, subscription_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.SubscriptionID, o.CustomerEmail, o.AmountCents, o.Currency, o.Status, o.SubscriptionStatus, o.CreatedAt, o.UpdatedAt,
	)
	return err
}

func (s *SQLiteService) Get(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	err := s.db.QueryRowContext(ctx,
		`SELECT id, subscription_id, customer_email, amount_cents, currency, status, subscription_status, created_at, updated_at
		 FROM orders WHERE id = ?`, id,
	).Scan(&o.ID, &o.SubscriptionID, &o.CustomerEmail, &o.AmountCents, &o.Currency, &o.Status, &o.SubscriptionStatus, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &o, err
}

func (s *SQLiteService) SetStatus(ctx context.Context, id string, status models.OrderStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id,
	)
	return err
}

func (s *SQLiteService) SetSubscriptionStatus(ctx context.Context, id string, status models.SubscriptionStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE orders SET subscription_status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id,
	)
	return err
}
