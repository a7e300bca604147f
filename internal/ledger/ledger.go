package ledger

import "context"

// Checkout session metadata keys. The webhook handler reconstructs the
// original toll decision from these, so they must survive the round trip
// through Stripe unchanged.
const (
	SessionTypeTopUp = "inbox_toll_topup"

	MetaSessionType = "sessionType"
	MetaRecordID    = "recordId"
	MetaMessageID   = "messageId"
	MetaSenderEmail = "senderEmail"
	MetaCustomerID  = "senderCustomerId"
	MetaTollAmount  = "tollAmountAtTopUp"
)

// TopUpParams carries everything a top-up checkout session needs to later
// reconcile the parked message
type TopUpParams struct {
	SenderEmail string
	CustomerID  string
	MessageID   string
	RecordID    string
	TollAmount  float64
}

// TopUpSession is a hosted checkout session for topping up a sender's balance
type TopUpSession struct {
	ID  string
	URL string
}

// Ledger is the external balance-holding payment system. Balances follow
// Stripe customer-balance semantics: negative means the customer holds
// credit, a positive transaction amount debits.
type Ledger interface {
	// FindOrCreateCustomer resolves the ledger customer for a sender address
	FindOrCreateCustomer(ctx context.Context, email string) (string, error)
	// Balance returns the customer's balance in minor units
	Balance(ctx context.Context, customerID string) (int64, error)
	// Debit charges the customer's balance, tagged for audit
	Debit(ctx context.Context, customerID string, amountCents int64, tag string) error
	// Credit adds to the customer's balance, tagged for audit
	Credit(ctx context.Context, customerID string, amountCents int64, tag string) error
	// CreateTopUpSession creates a hosted checkout session for a balance top-up
	CreateTopUpSession(ctx context.Context, params TopUpParams) (*TopUpSession, error)
}
