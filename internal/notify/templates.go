package notify

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/renewhq/renewd/internal/models"
)

// templateContext is what every email template renders against.
type templateContext struct {
	Order *models.Order
	Retry *models.Retry
}

type emailTemplate struct {
	subject *template.Template
	body    *template.Template
}

var templates = map[string]emailTemplate{
	"customer_payment_retry": {
		subject: template.Must(template.New("s").Parse(
			`Automatic payment retry scheduled for order {{.Order.ID}}`)),
		body: template.Must(template.New("b").Parse(
			`The renewal payment for your subscription {{.Order.SubscriptionID}} did not go through.
We will automatically try again at {{.Retry.ScheduledAt.Format "Jan 2, 2006 15:04 MST"}}.
No action is needed if your payment method is up to date.`)),
	},
	"admin_payment_retry": {
		subject: template.Must(template.New("s").Parse(
			`Renewal payment failed for order {{.Order.ID}}, retry scheduled`)),
		body: template.Must(template.New("b").Parse(
			`Renewal order {{.Order.ID}} (subscription {{.Order.SubscriptionID}}, {{.Order.AmountCents}} {{.Order.Currency}}) failed payment.
Retry {{.Retry.ID}} is scheduled for {{.Retry.ScheduledAt.Format "Jan 2, 2006 15:04 MST"}}.`)),
	},
}

// KnownTemplate reports whether the template ID can be rendered. Rule
// validation calls this at startup so a typo in a configured rule fails
// before any payment does.
func KnownTemplate(id string) bool {
	_, ok := templates[id]
	return ok
}

func render(id string, ctx templateContext) (subject, body string, err error) {
	tpl, ok := templates[id]
	if !ok {
		return "", "", fmt.Errorf("unknown email template %q", id)
	}

	var sb, bb strings.Builder
	if err := tpl.subject.Execute(&sb, ctx); err != nil {
		return "", "", fmt.Errorf("render subject of %s: %w", id, err)
	}
	if err := tpl.body.Execute(&bb, ctx); err != nil {
		return "", "", fmt.Errorf("render body of %s: %w", id, err)
	}
	return sb.String(), bb.String(), nil
}
