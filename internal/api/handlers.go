package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/renewhq/renewd/internal/models"
	"github.com/renewhq/renewd/internal/orders"
	"github.com/renewhq/renewd/internal/retry"
	"github.com/renewhq/renewd/internal/store"
)

// --- Payment failures ---

type FailureHandler struct {
	manager *retry.Manager
}

func NewFailureHandler(manager *retry.Manager) *FailureHandler {
	return &FailureHandler{manager: manager}
}

type reportFailureRequest struct {
	OrderID string `json:"order_id"`
}

func (h *FailureHandler) Report(w http.ResponseWriter, r *http.Request) {
	var req reportFailureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "order_id is required")
		return
	}

	outcome, err := h.manager.OnRenewalPaymentFailed(r.Context(), req.OrderID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to handle payment failure")
		return
	}

	writeJSON(w, http.StatusAccepted, outcome)
}

// --- Retries ---

type RetryHandler struct {
	store   store.Store
	manager *retry.Manager
}

func NewRetryHandler(st store.Store, manager *retry.Manager) *RetryHandler {
	return &RetryHandler{store: st, manager: manager}
}

func (h *RetryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get retry")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "retry not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *RetryHandler) ListForOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	retries, err := h.manager.RetriesForOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list retries")
		return
	}
	if retries == nil {
		retries = []models.Retry{}
	}
	writeJSON(w, http.StatusOK, retries)
}

func (h *RetryHandler) CountForOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	count, err := h.manager.RetryCountForOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count retries")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

// --- Orders ---

type OrderHandler struct {
	orders orders.Service
}

func NewOrderHandler(ord orders.Service) *OrderHandler {
	return &OrderHandler{orders: ord}
}

type createOrderRequest struct {
	SubscriptionID     string `json:"subscription_id"`
	CustomerEmail      string `json:"customer_email"`
	AmountCents        int64  `json:"amount_cents"`
	Currency           string `json:"currency"`
	Status             string `json:"status"`
	SubscriptionStatus string `json:"subscription_status"`
}

func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	status := models.OrderPending
	if req.Status != "" {
		if !models.ValidOrderStatus(req.Status) {
			writeError(w, http.StatusBadRequest, "unknown order status")
			return
		}
		status = models.OrderStatus(req.Status)
	}

	subStatus := models.SubscriptionActive
	if req.SubscriptionStatus != "" {
		if !models.ValidSubscriptionStatus(req.SubscriptionStatus) {
			writeError(w, http.StatusBadRequest, "unknown subscription status")
			return
		}
		subStatus = models.SubscriptionStatus(req.SubscriptionStatus)
	}

	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	now := time.Now().UTC()
	order := &models.Order{
		ID:                 models.NewID("ord"),
		SubscriptionID:     req.SubscriptionID,
		CustomerEmail:      req.CustomerEmail,
		AmountCents:        req.AmountCents,
		Currency:           currency,
		Status:             status,
		SubscriptionStatus: subStatus,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := h.orders.Create(r.Context(), order); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create order")
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	order, err := h.orders.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get order")
		return
	}
	if order == nil {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// --- Stats / health ---

type StatsHandler struct {
	store store.Store
}

func NewStatsHandler(st store.Store) *StatsHandler {
	return &StatsHandler{store: st}
}

func (h *StatsHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
