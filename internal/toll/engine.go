package toll

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"inbox-tollbooth-go/internal/config"
	"inbox-tollbooth-go/internal/ledger"
	"inbox-tollbooth-go/internal/mailbox"
	"inbox-tollbooth-go/internal/models"
	"inbox-tollbooth-go/internal/store"
	"inbox-tollbooth-go/internal/whitelist"
)

// ErrNoSenderAddress indicates the sender address could not be extracted. The
// message is left untouched and no record is created, so a later poll pass
// sees it again.
var ErrNoSenderAddress = errors.New("could not extract sender address")

// Outcome is the result of a toll decision
type Outcome int

const (
	// OutcomeAlreadyProcessed means a record already existed; no side effects
	OutcomeAlreadyProcessed Outcome = iota
	// OutcomeWhitelisted means the sender was exempt; message left in place
	OutcomeWhitelisted
	// OutcomeDebited means the toll was paid from existing balance
	OutcomeDebited
	// OutcomeParked means the message was archived pending a top-up
	OutcomeParked
)

// String returns the outcome name
func (o Outcome) String() string {
	switch o {
	case OutcomeAlreadyProcessed:
		return "already_processed"
	case OutcomeWhitelisted:
		return "whitelisted"
	case OutcomeDebited:
		return "debited"
	case OutcomeParked:
		return "parked"
	default:
		return "unknown"
	}
}

// Engine is the toll decision engine. It decides the fate of each inbound
// message and reconciles deferred top-up completions.
type Engine struct {
	store     *store.Store
	mailbox   mailbox.Mailbox
	ledger    ledger.Ledger
	whitelist *whitelist.Evaluator
	templates *Templates
	cfg       *config.TollConfig
}

// NewEngine creates a new toll Engine
func NewEngine(st *store.Store, mb mailbox.Mailbox, lg ledger.Ledger, wl *whitelist.Evaluator, tmpl *Templates, cfg *config.TollConfig) *Engine {
	return &Engine{
		store:     st,
		mailbox:   mb,
		ledger:    lg,
		whitelist: wl,
		templates: tmpl,
		cfg:       cfg,
	}
}

// ProcessMessage runs the toll decision for one inbound message.
//
// Every failure path before a record is created is retry-safe: the next poll
// window re-fetches the message and the idempotency check sees nothing, so
// the decision is re-driven from the top.
func (e *Engine) ProcessMessage(ctx context.Context, msg *models.EmailMessage) (Outcome, error) {
	// Idempotency check: one record per Gmail message ID, ever
	processed, err := e.store.IsProcessed(msg.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to check if message %s is processed: %w", msg.ID, err)
	}
	if processed {
		logrus.Debugf("Message %s already processed, skipping", msg.ID)
		return OutcomeAlreadyProcessed, nil
	}

	sender := msg.From
	if sender == "" {
		return 0, fmt.Errorf("message %s: %w", msg.ID, ErrNoSenderAddress)
	}

	// Whitelisted senders are admitted without touching the ledger
	if e.whitelist.IsWhitelisted(ctx, msg) {
		logrus.Debugf("Sender %s is whitelisted, skipping toll for message %s", sender, msg.ID)
		if err := e.createRecord(msg.ID, sender, nil, false); err != nil {
			return e.mapCreateError(err)
		}
		return OutcomeWhitelisted, nil
	}

	awaitingLabelID, err := e.mailbox.EnsureLabel(ctx, e.cfg.AwaitingLabel)
	if err != nil {
		return 0, fmt.Errorf("failed to ensure awaiting label: %w", err)
	}

	customerID, err := e.ledger.FindOrCreateCustomer(ctx, sender)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve ledger customer for %s: %w", sender, err)
	}

	tollCents := ledger.ToCents(e.cfg.Amount)
	balance, err := e.ledger.Balance(ctx, customerID)
	if err != nil {
		return 0, fmt.Errorf("failed to check balance for %s: %w", customerID, err)
	}

	// A negative balance is credit the sender holds
	if balance <= -tollCents {
		return e.admitByDebit(ctx, msg.ID, sender, customerID, awaitingLabelID, tollCents)
	}
	return e.park(ctx, msg.ID, sender, customerID, awaitingLabelID)
}

// admitByDebit charges the toll from existing balance and delivers the message
func (e *Engine) admitByDebit(ctx context.Context, messageID, sender, customerID, awaitingLabelID string, tollCents int64) (Outcome, error) {
	recordID := uuid.NewString()

	if err := e.ledger.Debit(ctx, customerID, tollCents, recordID); err != nil {
		return 0, fmt.Errorf("failed to debit sender balance for message %s: %w", messageID, err)
	}

	if err := e.deliver(ctx, messageID, awaitingLabelID); err != nil {
		// Debit went through but the message was not moved; loud error, the
		// record below still marks the toll as collected
		logrus.Errorf("Debit succeeded but delivery failed for message %s: %v", messageID, err)
	}

	if err := e.createRecordWithID(recordID, messageID, sender, &customerID, true); err != nil {
		outcome, mapErr := e.mapCreateError(err)
		if mapErr != nil {
			// The debit already happened; surface loudly for operator
			// reconciliation rather than retrying into a double charge
			logrus.Errorf("Debit succeeded but record creation failed for message %s: %v", messageID, err)
			return 0, mapErr
		}
		return outcome, nil
	}

	logrus.Infof("Processed toll payment ($%.2f) for message %s from %s using balance",
		e.cfg.Amount, messageID, sender)
	return OutcomeDebited, nil
}

// park archives the message, sends the sender a top-up link, and records the
// pending toll
func (e *Engine) park(ctx context.Context, messageID, sender, customerID, awaitingLabelID string) (Outcome, error) {
	recordID := uuid.NewString()

	session, err := e.ledger.CreateTopUpSession(ctx, ledger.TopUpParams{
		SenderEmail: sender,
		CustomerID:  customerID,
		MessageID:   messageID,
		RecordID:    recordID,
		TollAmount:  e.cfg.Amount,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create top-up session for message %s: %w", messageID, err)
	}

	if err := e.mailbox.ArchiveAndLabel(ctx, messageID, awaitingLabelID); err != nil {
		return 0, fmt.Errorf("failed to archive message %s: %w", messageID, err)
	}

	// The marker in the subject keeps our own payment requests out of the
	// sent-folder search that backs the known-sender rule
	subject := e.templates.RenderSubject(e.cfg.Amount)
	if e.cfg.AutomationMarker != "" && !strings.Contains(subject, e.cfg.AutomationMarker) {
		subject = e.cfg.AutomationMarker + " " + subject
	}
	body := e.templates.RenderBody(e.cfg.Amount, session.URL, sender)
	if err := e.mailbox.SendNotification(ctx, sender, subject, body); err != nil {
		return 0, fmt.Errorf("failed to send payment request to %s: %w", sender, err)
	}

	if err := e.createRecordWithID(recordID, messageID, sender, &customerID, false); err != nil {
		return e.mapCreateError(err)
	}

	logrus.Infof("Insufficient balance for sender %s, sent top-up link for message %s", sender, messageID)
	return OutcomeParked, nil
}

// deliver moves a message back to the inbox, swapping the awaiting label for
// the paid label
func (e *Engine) deliver(ctx context.Context, messageID, awaitingLabelID string) error {
	paidLabelID, err := e.mailbox.EnsureLabel(ctx, e.cfg.PaidLabel)
	if err != nil {
		return fmt.Errorf("failed to ensure paid label: %w", err)
	}
	return e.mailbox.UnarchiveAndLabel(ctx, messageID, awaitingLabelID, paidLabelID)
}

func (e *Engine) createRecord(messageID, sender string, customerID *string, paid bool) error {
	return e.createRecordWithID(uuid.NewString(), messageID, sender, customerID, paid)
}

func (e *Engine) createRecordWithID(id, messageID, sender string, customerID *string, paid bool) error {
	return e.store.CreateRecord(&models.TollRecord{
		ID:               id,
		GmailMessageID:   messageID,
		SenderEmail:      sender,
		TollPaid:         paid,
		StripeCustomerID: customerID,
	})
}

// mapCreateError folds a lost create race into AlreadyProcessed: the unique
// index means another writer finished the decision first.
func (e *Engine) mapCreateError(err error) (Outcome, error) {
	if errors.Is(err, store.ErrDuplicateRecord) {
		return OutcomeAlreadyProcessed, nil
	}
	return 0, err
}
