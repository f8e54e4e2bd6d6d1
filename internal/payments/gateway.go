// Package payments is the boundary to the payment layer. The manager sees
// one synchronous call with a success/failure outcome; everything about how
// a charge actually happens lives behind the Gateway interface.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/renewhq/renewd/internal/models"
	"github.com/renewhq/renewd/internal/signing"
)

type Result struct {
	Success bool
	Code    int
	Detail  string
}

type Gateway interface {
	Charge(ctx context.Context, order *models.Order) (*Result, error)
}

// HTTPGateway posts a signed charge request to the billing platform's
// gateway endpoint. Any transport failure is reported as an unsuccessful
// charge, not an error: a declined card and an unreachable gateway both
// drive the same retry loop.
type HTTPGateway struct {
	url    string
	secret string
	client *http.Client
}

func NewHTTPGateway(url, secret string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: timeout},
	}
}

type chargeRequest struct {
	OrderID        string `json:"order_id"`
	SubscriptionID string `json:"subscription_id"`
	AmountCents    int64  `json:"amount_cents"`
	Currency       string `json:"currency"`
	CustomerEmail  string `json:"customer_email"`
}

type chargeResponse struct {
	Paid   bool   `json:"paid"`
	Detail string `json:"detail"`
}

func (g *HTTPGateway) Charge(ctx context.Context, order *models.Order) (*Result, error) {
	payload, err := json.Marshal(chargeRequest{
		OrderID:        order.ID,
		SubscriptionID: order.SubscriptionID,
		AmountCents:    order.AmountCents,
		Currency:       order.Currency,
		CustomerEmail:  order.CustomerEmail,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal charge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build charge request: %w", err)
	}

	ts := time.Now().Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "renewd/1.0")
	req.Header.Set("X-Renewd-Timestamp", fmt.Sprintf("%d", ts))
	req.Header.Set("X-Renewd-Signature", signing.Sign(g.secret, payload, ts))

	resp, err := g.client.Do(req)
	if err != nil {
		return &Result{Success: false, Detail: fmt.Sprintf("gateway unreachable: %v", err)}, nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Result{Success: false, Code: resp.StatusCode, Detail: string(body)}, nil
	}

	var cr chargeResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		// A 2xx with an unparseable body counts as paid; the gateway owns
		// the response contract.
		return &Result{Success: true, Code: resp.StatusCode}, nil
	}
	return &Result{Success: cr.Paid, Code: resp.StatusCode, Detail: cr.Detail}, nil
}
