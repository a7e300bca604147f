package ledger

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/customer"
	"github.com/stripe/stripe-go/v76/customerbalancetransaction"

	"inbox-tollbooth-go/internal/config"
)

// StripeLedger implements Ledger against the Stripe API using customer
// balance transactions
type StripeLedger struct {
	successURL string
	cancelURL  string
}

// NewStripeLedger creates a new Stripe-backed ledger
func NewStripeLedger(cfg *config.StripeConfig, tollCfg *config.TollConfig) *StripeLedger {
	stripe.Key = cfg.APIKey
	return &StripeLedger{
		successURL: tollCfg.SuccessURL,
		cancelURL:  tollCfg.CancelURL,
	}
}

// FindOrCreateCustomer looks up the Stripe customer by email, creating one if
// none exists
func (l *StripeLedger) FindOrCreateCustomer(ctx context.Context, email string) (string, error) {
	listParams := &stripe.CustomerListParams{Email: stripe.String(email)}
	listParams.Context = ctx
	listParams.Limit = stripe.Int64(1)

	iter := customer.List(listParams)
	for iter.Next() {
		existing := iter.Customer()
		logrus.Debugf("Found existing customer %s for sender %s", existing.ID, email)
		return existing.ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("failed to list customers for %s: %w", email, err)
	}

	createParams := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(email),
	}
	createParams.Context = ctx
	createParams.AddMetadata("inbox_toll_customer", "true")

	created, err := customer.New(createParams)
	if err != nil {
		return "", fmt.Errorf("failed to create customer for %s: %w", email, err)
	}

	logrus.Infof("Created new customer %s for sender %s", created.ID, email)
	return created.ID, nil
}

// Balance returns the customer's balance in cents. Negative values mean the
// customer holds credit.
func (l *StripeLedger) Balance(ctx context.Context, customerID string) (int64, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	c, err := customer.Get(customerID, params)
	if err != nil {
		return 0, fmt.Errorf("failed to retrieve customer %s: %w", customerID, err)
	}
	return c.Balance, nil
}

// Debit charges the customer's balance with a positive balance transaction
func (l *StripeLedger) Debit(ctx context.Context, customerID string, amountCents int64, tag string) error {
	params := &stripe.CustomerBalanceTransactionParams{
		Customer:    stripe.String(customerID),
		Amount:      stripe.Int64(amountCents),
		Currency:    stripe.String(string(stripe.CurrencyUSD)),
		Description: stripe.String("Inbox toll payment: " + tag),
	}
	params.Context = ctx

	txn, err := customerbalancetransaction.New(params)
	if err != nil {
		return fmt.Errorf("failed to debit customer %s: %w", customerID, err)
	}

	logrus.Infof("Debited %d cents from customer %s (transaction: %s)", amountCents, customerID, txn.ID)
	return nil
}

// Credit adds to the customer's balance with a negative balance transaction
func (l *StripeLedger) Credit(ctx context.Context, customerID string, amountCents int64, tag string) error {
	params := &stripe.CustomerBalanceTransactionParams{
		Customer:    stripe.String(customerID),
		Amount:      stripe.Int64(-amountCents),
		Currency:    stripe.String(string(stripe.CurrencyUSD)),
		Description: stripe.String("Balance top-up from session " + tag),
	}
	params.Context = ctx

	txn, err := customerbalancetransaction.New(params)
	if err != nil {
		return fmt.Errorf("failed to credit customer %s: %w", customerID, err)
	}

	logrus.Infof("Credited %d cents to customer %s (transaction: %s)", amountCents, customerID, txn.ID)
	return nil
}

// CreateTopUpSession creates a hosted checkout session whose metadata is
// sufficient to reconstruct the toll decision in the webhook handler
func (l *StripeLedger) CreateTopUpSession(ctx context.Context, p TopUpParams) (*TopUpSession, error) {
	netDollars := TopUpNetDollars(p.TollAmount)
	grossCents := GrossCentsForNet(netDollars)

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(l.successURL),
		CancelURL:          stripe.String(l.cancelURL),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(string(stripe.CurrencyUSD)),
					UnitAmount: stripe.Int64(grossCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Inbox Toll Balance Top-up"),
						Description: stripe.String(fmt.Sprintf(
							"Add funds to your inbox toll balance (minimum: $%.2f) + card fees", netDollars)),
					},
				},
				Quantity: stripe.Int64(1),
				AdjustableQuantity: &stripe.CheckoutSessionLineItemAdjustableQuantityParams{
					Enabled: stripe.Bool(true),
					Minimum: stripe.Int64(1),
					Maximum: stripe.Int64(1000),
				},
			},
		},
	}
	params.Context = ctx
	params.AddMetadata(MetaSessionType, SessionTypeTopUp)
	params.AddMetadata(MetaRecordID, p.RecordID)
	params.AddMetadata(MetaMessageID, p.MessageID)
	params.AddMetadata(MetaSenderEmail, p.SenderEmail)
	params.AddMetadata(MetaCustomerID, p.CustomerID)
	params.AddMetadata(MetaTollAmount, fmt.Sprintf("%v", p.TollAmount))

	s, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create top-up session for message %s: %w", p.MessageID, err)
	}

	logrus.Infof("Created top-up session %s for message %s (sender %s, min toll: $%.2f)",
		s.ID, p.MessageID, p.SenderEmail, netDollars)
	return &TopUpSession{ID: s.ID, URL: s.URL}, nil
}
