package toll

import (
	"fmt"
	"strings"

	"inbox-tollbooth-go/internal/config"
)

// Templates renders the payment-request email sent to parked senders.
// Configured templates may use {tollAmount}, {paymentLink} and {senderEmail}
// placeholders; built-in defaults are used when unset.
type Templates struct {
	cfg *config.TollConfig
}

// NewTemplates creates a new Templates
func NewTemplates(cfg *config.TollConfig) *Templates {
	return &Templates{cfg: cfg}
}

// RenderSubject renders the payment-request subject line
func (t *Templates) RenderSubject(tollAmount float64) string {
	subject := t.cfg.EmailSubject
	if subject == "" {
		subject = "Payment required to reach my inbox"
	}
	return strings.ReplaceAll(subject, "{tollAmount}", fmt.Sprintf("%.2f", tollAmount))
}

// RenderBody renders the payment-request HTML body
func (t *Templates) RenderBody(tollAmount float64, paymentLink, senderEmail string) string {
	body := t.cfg.EmailBody
	if body == "" {
		return fmt.Sprintf(
			"<p>A $%.2f fee is required to deliver your message to my inbox.</p>"+
				"<p><a href=%q>Add funds</a> to deliver this message.</p>",
			tollAmount, paymentLink)
	}

	body = strings.ReplaceAll(body, "{tollAmount}", fmt.Sprintf("%.2f", tollAmount))
	body = strings.ReplaceAll(body, "{paymentLink}", paymentLink)
	body = strings.ReplaceAll(body, "{senderEmail}", senderEmail)
	return body
}
