// Package notify sends the emails a retry rule asks for. When a rule
// handles a failure, its emails replace the platform's default
// payment-failed mail; the Result makes that suppression explicit instead
// of tracking it in shared process state.
package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/renewhq/renewd/internal/models"
)

type Email struct {
	Template string `json:"template"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
}

type Sender interface {
	Send(ctx context.Context, e Email) error
}

// Result reports what Dispatch did. Suppressed tells the caller the
// platform's default failed-payment mail must not also go out for this
// event; the rule's notification supersedes it rather than adding to it.
type Result struct {
	Sent       []string `json:"sent"`
	Suppressed bool     `json:"suppressed"`
}

type Dispatcher struct {
	sender     Sender
	adminEmail string
	log        zerolog.Logger
}

func NewDispatcher(sender Sender, adminEmail string, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, adminEmail: adminEmail, log: log}
}

// Dispatch sends whichever of the rule's templates are set. A rule with no
// templates still suppresses the default mail: applying a rule means the
// retry system owns messaging for this event.
func (d *Dispatcher) Dispatch(ctx context.Context, rule models.RetryRule, order *models.Order, retry *models.Retry) (*Result, error) {
	res := &Result{Suppressed: true}
	tctx := templateContext{Order: order, Retry: retry}

	if rule.EmailCustomer != "" {
		if err := d.send(ctx, rule.EmailCustomer, order.CustomerEmail, tctx); err != nil {
			return res, err
		}
		res.Sent = append(res.Sent, rule.EmailCustomer)
	}

	if rule.EmailAdmin != "" {
		if err := d.send(ctx, rule.EmailAdmin, d.adminEmail, tctx); err != nil {
			return res, err
		}
		res.Sent = append(res.Sent, rule.EmailAdmin)
	}

	return res, nil
}

func (d *Dispatcher) send(ctx context.Context, templateID, to string, tctx templateContext) error {
	subject, body, err := render(templateID, tctx)
	if err != nil {
		return err
	}
	if err := d.sender.Send(ctx, Email{Template: templateID, To: to, Subject: subject, Body: body}); err != nil {
		return err
	}
	d.log.Info().
		Str("template", templateID).
		Str("to", to).
		Str("order_id", tctx.Order.ID).
		Msg("notification sent")
	return nil
}
