package toll

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"inbox-tollbooth-go/internal/ledger"
	"inbox-tollbooth-go/internal/store"
)

// CompletionEvent is a verified checkout completion, as delivered by the
// payment webhook. TollAmount is the toll at decision time, not current
// config, so a config change cannot strand an in-flight top-up.
type CompletionEvent struct {
	EventID          string
	SessionID        string
	GmailMessageID   string
	CustomerID       string
	SenderEmail      string
	TollAmount       float64
	GrossAmountCents int64
}

// CompleteTopUp reconciles a top-up completion with the parked record.
//
// Stripe delivers events at least once; the event ID is recorded first so a
// redelivery never credits the balance twice. An orphaned event (no record)
// returns nil so the webhook responds 200 and redelivery stops.
func (e *Engine) CompleteTopUp(ctx context.Context, event CompletionEvent) error {
	if err := e.store.RecordEvent(event.EventID, "checkout.session.completed"); err != nil {
		if errors.Is(err, store.ErrDuplicateEvent) {
			logrus.Warnf("Webhook event %s already processed, skipping", event.EventID)
			return nil
		}
		return fmt.Errorf("failed to record webhook event %s: %w", event.EventID, err)
	}

	netCents := ledger.NetCents(event.GrossAmountCents)
	if netCents > 0 {
		if err := e.ledger.Credit(ctx, event.CustomerID, netCents, event.SessionID); err != nil {
			// Release the duplicate guard so Stripe's redelivery retries the
			// credit; otherwise the payment is lost behind the skipped event
			if delErr := e.store.DeleteEvent(event.EventID); delErr != nil {
				logrus.Errorf("Failed to release webhook event %s for retry: %v", event.EventID, delErr)
			}
			return fmt.Errorf("failed to credit sender %s from session %s: %w",
				event.SenderEmail, event.SessionID, err)
		}
		logrus.Infof("Credited %d cents (net) to sender %s from session %s",
			netCents, event.SenderEmail, event.SessionID)
	} else {
		logrus.Warnf("Session %s gross of %d cents does not cover card fees, nothing to credit",
			event.SessionID, event.GrossAmountCents)
	}

	record, err := e.store.FindByMessageID(event.GmailMessageID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			logrus.Warnf("No toll record found for message %s during post-topup processing",
				event.GmailMessageID)
			return nil
		}
		return fmt.Errorf("failed to look up toll record for message %s: %w", event.GmailMessageID, err)
	}

	if record.TollPaid {
		logrus.Debugf("Toll already paid for message %s, nothing to reconcile", event.GmailMessageID)
		return nil
	}
	if record.StripeCustomerID == nil {
		logrus.Warnf("No ledger customer on record for message %s", event.GmailMessageID)
		return nil
	}

	// Re-check against the decision-time toll amount
	tollCents := ledger.ToCents(event.TollAmount)
	balance, err := e.ledger.Balance(ctx, *record.StripeCustomerID)
	if err != nil {
		return fmt.Errorf("failed to check balance after top-up for message %s: %w",
			event.GmailMessageID, err)
	}
	if balance > -tollCents {
		// Still short; the record stays parked and a later top-up retries
		logrus.Warnf("Sender %s still has insufficient balance after top-up for message %s",
			event.SenderEmail, event.GmailMessageID)
		return nil
	}

	if err := e.ledger.Debit(ctx, *record.StripeCustomerID, tollCents, record.ID); err != nil {
		return fmt.Errorf("failed to debit sender balance after top-up for message %s: %w",
			event.GmailMessageID, err)
	}

	awaitingLabelID, err := e.mailbox.EnsureLabel(ctx, e.cfg.AwaitingLabel)
	if err != nil {
		logrus.Errorf("Failed to ensure awaiting label while delivering message %s: %v",
			event.GmailMessageID, err)
	} else if err := e.deliver(ctx, event.GmailMessageID, awaitingLabelID); err != nil {
		// The debit already happened; deliverability is recoverable by the
		// operator, the paid flag below is not optional
		logrus.Errorf("Debit succeeded but delivery failed for message %s: %v",
			event.GmailMessageID, err)
	}

	if err := e.store.MarkPaid(record.ID); err != nil {
		return fmt.Errorf("debit succeeded but failed to mark record %s paid: %w", record.ID, err)
	}

	logrus.Infof("Processed toll payment after top-up for message %s", event.GmailMessageID)
	return nil
}
