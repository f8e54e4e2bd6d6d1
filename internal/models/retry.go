package models

import "time"

type RetryStatus string

const (
	RetryPending    RetryStatus = "pending"
	RetryProcessing RetryStatus = "processing"
	RetryFailed     RetryStatus = "failed"
	RetryComplete   RetryStatus = "complete"
	RetryCancelled  RetryStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed out of s.
func (s RetryStatus) Terminal() bool {
	switch s {
	case RetryFailed, RetryComplete, RetryCancelled:
		return true
	}
	return false
}

// CanTransitionTo encodes the forward-only retry lifecycle:
//
//	pending    -> processing | cancelled
//	processing -> complete | failed | cancelled
//
// Terminal statuses never change again, so a duplicate task firing for an
// already-finished retry is a no-op rather than a reprocess.
func (s RetryStatus) CanTransitionTo(next RetryStatus) bool {
	switch s {
	case RetryPending:
		return next == RetryProcessing || next == RetryCancelled
	case RetryProcessing:
		return next == RetryComplete || next == RetryFailed || next == RetryCancelled
	}
	return false
}

// Retry is one scheduled payment retry for a renewal order. OrderID,
// ScheduledAt and Rule are frozen at creation; only Status moves, and only
// forward. The Rule field is a snapshot of the rule that produced the retry,
// not a reference to the live table, so history stays accurate when the
// table is reconfigured.
type Retry struct {
	ID          string      `json:"id"`
	OrderID     string      `json:"order_id"`
	Status      RetryStatus `json:"status"`
	ScheduledAt time.Time   `json:"scheduled_at"`
	Rule        RetryRule   `json:"rule"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// NewRetry builds a pending retry for orderID from rule. The ID is left
// empty; the store assigns one on first save.
func NewRetry(orderID string, rule RetryRule, now time.Time) *Retry {
	now = now.UTC()
	return &Retry{
		OrderID:     orderID,
		Status:      RetryPending,
		ScheduledAt: now.Add(rule.RetryAfter),
		Rule:        rule,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
