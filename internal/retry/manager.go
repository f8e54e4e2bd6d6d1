// Package retry implements the payment retry state machine. The manager is
// the only orchestrator: it decides when retry records are created and how
// they move through their lifecycle, with the store doing all the writing.
package retry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/renewhq/renewd/internal/metrics"
	"github.com/renewhq/renewd/internal/models"
	"github.com/renewhq/renewd/internal/notify"
	"github.com/renewhq/renewd/internal/orders"
	"github.com/renewhq/renewd/internal/payments"
	"github.com/renewhq/renewd/internal/rules"
	"github.com/renewhq/renewd/internal/scheduler"
	"github.com/renewhq/renewd/internal/store"
)

// TaskProcessRetry is the scheduler task the manager registers for step two
// of the retry cycle. The payload carries only the retry ID; everything else
// is reloaded from storage when the task fires.
const TaskProcessRetry = "retry.process"

type taskPayload struct {
	RetryID string `json:"retry_id"`
}

// Notifier is the slice of the notification dispatcher the manager needs.
type Notifier interface {
	Dispatch(ctx context.Context, rule models.RetryRule, order *models.Order, retry *models.Retry) (*notify.Result, error)
}

type Manager struct {
	resolver *rules.Resolver
	store    store.Store
	sched    scheduler.Scheduler
	gateway  payments.Gateway
	orders   orders.Service
	notifier Notifier
	log      zerolog.Logger
}

func NewManager(
	resolver *rules.Resolver,
	st store.Store,
	sched scheduler.Scheduler,
	gateway payments.Gateway,
	ord orders.Service,
	notifier Notifier,
	log zerolog.Logger,
) *Manager {
	return &Manager{
		resolver: resolver,
		store:    st,
		sched:    sched,
		gateway:  gateway,
		orders:   ord,
		notifier: notifier,
		log:      log,
	}
}

// RegisterTasks wires the manager's task handler into the scheduler. Must
// run before the scheduler starts polling.
func (m *Manager) RegisterTasks() {
	m.sched.Register(TaskProcessRetry, m.handleProcessTask)
}

// FailureOutcome describes what a reported payment failure led to.
type FailureOutcome struct {
	Retry            *models.Retry `json:"retry,omitempty"`
	Exhausted        bool          `json:"exhausted"`
	EmailsSuppressed bool          `json:"emails_suppressed"`
}

// OnRenewalPaymentFailed is the entry point the platform calls after a
// renewal payment attempt fails. The write order is deliberate: record
// first, then order/subscription statuses, then the scheduled task, then
// notifications. A crash mid-sequence can leave an unscheduled pending
// record (harmless, visible) but never a scheduled task without a record.
func (m *Manager) OnRenewalPaymentFailed(ctx context.Context, orderID string) (*FailureOutcome, error) {
	order, err := m.orders.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	if order == nil {
		return nil, fmt.Errorf("order %s not found", orderID)
	}

	count, err := m.store.CountForOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("count retries for order %s: %w", orderID, err)
	}

	rule, ok := m.resolver.Resolve(count)
	if !ok {
		return m.exhaust(ctx, order, count)
	}

	rec := models.NewRetry(orderID, rule, time.Now().UTC())
	if _, err := m.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save retry for order %s (retry %d): %w", orderID, count, err)
	}

	if err := m.orders.SetStatus(ctx, orderID, rule.OrderStatus); err != nil {
		return nil, fmt.Errorf("set order %s status: %w", orderID, err)
	}
	if err := m.orders.SetSubscriptionStatus(ctx, orderID, rule.SubscriptionStatus); err != nil {
		return nil, fmt.Errorf("set subscription status for order %s: %w", orderID, err)
	}

	payload, _ := json.Marshal(taskPayload{RetryID: rec.ID})
	if err := m.sched.Schedule(ctx, rec.ScheduledAt, TaskProcessRetry, payload); err != nil {
		return nil, fmt.Errorf("schedule retry %s: %w", rec.ID, err)
	}

	outcome := &FailureOutcome{Retry: rec}
	res, err := m.notifier.Dispatch(ctx, rule, order, rec)
	if err != nil {
		// The retry is recorded and scheduled; a lost email is not worth
		// failing the operation over.
		m.log.Warn().Err(err).Str("order_id", orderID).Str("retry_id", rec.ID).Msg("notification dispatch failed")
	}
	if res != nil {
		outcome.EmailsSuppressed = res.Suppressed
	}

	metrics.RetriesScheduled.Inc()
	m.log.Info().
		Str("order_id", orderID).
		Str("retry_id", rec.ID).
		Int("retry_count", count).
		Time("scheduled_at", rec.ScheduledAt).
		Msg("payment retry scheduled")

	return outcome, nil
}

// exhaust handles the no-rule-left case: standard failed-order handling
// takes over and default notifications are allowed through.
func (m *Manager) exhaust(ctx context.Context, order *models.Order, count int) (*FailureOutcome, error) {
	if err := m.orders.SetStatus(ctx, order.ID, models.OrderFailed); err != nil {
		return nil, fmt.Errorf("set order %s failed: %w", order.ID, err)
	}

	metrics.RetriesExhausted.Inc()
	m.log.Info().
		Str("order_id", order.ID).
		Int("retry_count", count).
		Msg("retries exhausted, standard failure handling applies")

	return &FailureOutcome{Exhausted: true}, nil
}

func (m *Manager) handleProcessTask(ctx context.Context, payload []byte) error {
	var p taskPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode retry task payload: %w", err)
	}
	return m.ProcessRetry(ctx, p.RetryID)
}

// ProcessRetry executes a scheduled retry. Safe against duplicate firings:
// only a pending record proceeds, and the pending->processing move is a
// conditional write, so a second execution of the same task finds nothing
// to do.
func (m *Manager) ProcessRetry(ctx context.Context, retryID string) error {
	rec, err := m.store.Get(ctx, retryID)
	if err != nil {
		return fmt.Errorf("load retry %s: %w", retryID, err)
	}
	if rec == nil {
		m.log.Warn().Str("retry_id", retryID).Msg("retry record gone, nothing to process")
		return nil
	}
	if rec.Status != models.RetryPending {
		m.log.Debug().
			Str("retry_id", retryID).
			Str("status", string(rec.Status)).
			Msg("retry already handled, skipping duplicate firing")
		return nil
	}

	order, err := m.orders.Get(ctx, rec.OrderID)
	if err != nil {
		return fmt.Errorf("load order %s for retry %s: %w", rec.OrderID, retryID, err)
	}
	if order == nil || !order.Status.RetryEligible() {
		return m.cancel(ctx, rec, order)
	}

	ok, err := m.store.Transition(ctx, rec.ID, models.RetryPending, models.RetryProcessing)
	if err != nil {
		return fmt.Errorf("mark retry %s processing: %w", retryID, err)
	}
	if !ok {
		m.log.Debug().Str("retry_id", retryID).Msg("lost claim on retry, another execution owns it")
		return nil
	}

	result, err := m.gateway.Charge(ctx, order)
	if err != nil {
		// Hard gateway errors count as a failed attempt; the loop decides
		// whether another retry follows.
		m.log.Error().Err(err).Str("retry_id", retryID).Msg("charge attempt errored")
		result = &payments.Result{Success: false, Detail: err.Error()}
	}

	if result.Success {
		return m.complete(ctx, rec, order)
	}
	return m.fail(ctx, rec, order, result)
}

func (m *Manager) cancel(ctx context.Context, rec *models.Retry, order *models.Order) error {
	if _, err := m.store.Transition(ctx, rec.ID, models.RetryPending, models.RetryCancelled); err != nil {
		return fmt.Errorf("cancel retry %s: %w", rec.ID, err)
	}

	metrics.RetriesCancelled.Inc()
	ev := m.log.Info().Str("retry_id", rec.ID).Str("order_id", rec.OrderID)
	if order != nil {
		ev = ev.Str("order_status", string(order.Status))
	}
	ev.Msg("retry cancelled, order no longer eligible")
	return nil
}

func (m *Manager) complete(ctx context.Context, rec *models.Retry, order *models.Order) error {
	if _, err := m.store.Transition(ctx, rec.ID, models.RetryProcessing, models.RetryComplete); err != nil {
		return fmt.Errorf("complete retry %s: %w", rec.ID, err)
	}

	// Normal payment-complete handling: clear the failure statuses and
	// resume the subscription.
	if err := m.orders.SetStatus(ctx, order.ID, models.OrderProcessing); err != nil {
		return fmt.Errorf("restore order %s after successful retry: %w", order.ID, err)
	}
	if err := m.orders.SetSubscriptionStatus(ctx, order.ID, models.SubscriptionActive); err != nil {
		return fmt.Errorf("reactivate subscription for order %s: %w", order.ID, err)
	}

	metrics.RetriesSucceeded.Inc()
	m.log.Info().Str("retry_id", rec.ID).Str("order_id", rec.OrderID).Msg("retry payment succeeded")
	return nil
}

func (m *Manager) fail(ctx context.Context, rec *models.Retry, order *models.Order, result *payments.Result) error {
	if _, err := m.store.Transition(ctx, rec.ID, models.RetryProcessing, models.RetryFailed); err != nil {
		return fmt.Errorf("mark retry %s failed: %w", rec.ID, err)
	}

	metrics.RetriesFailed.Inc()
	m.log.Info().
		Str("retry_id", rec.ID).
		Str("order_id", rec.OrderID).
		Int("gateway_code", result.Code).
		Str("detail", result.Detail).
		Msg("retry payment failed")

	// Loop back to step one: the derived count now includes this record, so
	// the resolver sees the next index.
	_, err := m.OnRenewalPaymentFailed(ctx, order.ID)
	return err
}

// RetriesForOrder returns all retries for an order, newest first.
func (m *Manager) RetriesForOrder(ctx context.Context, orderID string) ([]models.Retry, error) {
	return m.store.List(ctx, store.Filter{OrderID: orderID, OrderBy: "created_at"})
}

func (m *Manager) RetryCountForOrder(ctx context.Context, orderID string) (int, error) {
	return m.store.CountForOrder(ctx, orderID)
}
