package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"inbox-tollbooth-go/internal/ledger"
	"inbox-tollbooth-go/internal/toll"
)

// StripeWebhook receives Stripe events. Only checkout.session.completed for
// toll top-ups is acted on; the signature is verified over the raw payload
// before any contained data is trusted.
func (h *Handlers) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, "failed to read payload")
		return
	}

	sigHeader := c.GetHeader("Stripe-Signature")
	event, err := webhook.ConstructEvent(payload, sigHeader, h.webhookSecret)
	if err != nil {
		logrus.Errorf("Stripe webhook signature verification failed: %v", err)
		h.metrics.WebhookFailures.Inc()
		c.String(http.StatusBadRequest, "invalid signature")
		return
	}

	logrus.Infof("Processing Stripe webhook event: %s (%s)", event.Type, event.ID)

	if event.Type != "checkout.session.completed" {
		logrus.Debugf("Unhandled Stripe event type: %s", event.Type)
		c.String(http.StatusOK, "ignored")
		return
	}

	if err := h.handleCheckoutCompleted(c, event); err != nil {
		logrus.Errorf("Error processing top-up completion: %v", err)
		h.metrics.WebhookFailures.Inc()
		c.String(http.StatusInternalServerError, "webhook error")
		return
	}

	c.String(http.StatusOK, "ok")
}

// handleCheckoutCompleted turns a completed checkout session into a
// reconciliation call. Sessions without the top-up marker or with incomplete
// metadata are logged and acknowledged so Stripe stops redelivering them.
func (h *Handlers) handleCheckoutCompleted(c *gin.Context, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		logrus.Errorf("Failed to parse checkout session from event %s: %v", event.ID, err)
		return nil
	}

	metadata := session.Metadata
	if metadata[ledger.MetaSessionType] != ledger.SessionTypeTopUp {
		logrus.Debug("Not a toll top-up session, skipping")
		return nil
	}

	customerID := metadata[ledger.MetaCustomerID]
	messageID := metadata[ledger.MetaMessageID]
	tollAmountStr := metadata[ledger.MetaTollAmount]
	if customerID == "" || messageID == "" || tollAmountStr == "" {
		logrus.Warnf("Missing required metadata for top-up session %s", session.ID)
		return nil
	}

	tollAmount, err := strconv.ParseFloat(tollAmountStr, 64)
	if err != nil {
		logrus.Warnf("Unparseable toll amount %q in session %s", tollAmountStr, session.ID)
		return nil
	}

	completion := toll.CompletionEvent{
		EventID:          event.ID,
		SessionID:        session.ID,
		GmailMessageID:   messageID,
		CustomerID:       customerID,
		SenderEmail:      metadata[ledger.MetaSenderEmail],
		TollAmount:       tollAmount,
		GrossAmountCents: session.AmountTotal,
	}

	if err := h.engine.CompleteTopUp(c.Request.Context(), completion); err != nil {
		return err
	}

	h.metrics.ReconciledCount.Inc()
	return nil
}
