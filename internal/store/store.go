// Package store persists retry records. Two backends implement the same
// contract: a dedicated retries table and a generic tagged-record table.
// Which one runs is decided once at startup; callers never branch on it.
package store

import (
	"context"
	"time"

	"github.com/renewhq/renewd/internal/models"
)

// Filter narrows and orders List results. Zero values mean "no constraint".
type Filter struct {
	Status    models.RetryStatus
	OrderID   string
	From      time.Time
	To        time.Time
	OrderBy   string // "scheduled_at" (default) or "created_at"
	Ascending bool   // default ordering is descending
	Limit     int
}

type Store interface {
	// Save inserts the record when its ID is empty (assigning one) and
	// otherwise updates the row with that ID. Saving the same ID twice
	// yields one row reflecting the latest state, never a duplicate.
	// OrderID, ScheduledAt and Rule are written only on insert.
	Save(ctx context.Context, r *models.Retry) (string, error)

	// Get returns (nil, nil) when no record with that ID exists.
	Get(ctx context.Context, id string) (*models.Retry, error)

	// Delete reports whether a row was actually removed.
	Delete(ctx context.Context, id string) (bool, error)

	List(ctx context.Context, f Filter) ([]models.Retry, error)

	// CountForOrder is the derived retry count: how many retries have ever
	// been recorded for the order, regardless of their status.
	CountForOrder(ctx context.Context, orderID string) (int, error)

	// LastForOrder returns the most recently created retry for the order,
	// or (nil, nil) when there is none.
	LastForOrder(ctx context.Context, orderID string) (*models.Retry, error)

	// IDsForOrder returns retry IDs in ascending creation order.
	IDsForOrder(ctx context.Context, orderID string) ([]string, error)

	// Transition moves the record from one status to another in a single
	// conditional write and reports whether it took effect. A false return
	// means another process got there first (or the record is gone); the
	// caller must treat that as "already handled". This is the only way
	// status changes race-safely across concurrent task executions.
	Transition(ctx context.Context, id string, from, to models.RetryStatus) (bool, error)

	Stats(ctx context.Context) (*Stats, error)

	Migrate(ctx context.Context) error
	Close() error
}

type Stats struct {
	Total      int64 `json:"total"`
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Complete   int64 `json:"complete"`
	Failed     int64 `json:"failed"`
	Cancelled  int64 `json:"cancelled"`
}
