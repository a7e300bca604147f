package models

import (
	"time"
)

// TollRecord tracks the toll decision for a single inbound email. Exactly one
// record exists per Gmail message ID; the unique index is the idempotency key.
type TollRecord struct {
	ID               string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	GmailMessageID   string    `json:"gmail_message_id" gorm:"type:varchar(255);not null;uniqueIndex"`
	SenderEmail      string    `json:"sender_email" gorm:"type:varchar(255);not null"`
	TollPaid         bool      `json:"toll_paid" gorm:"default:false"`
	StripeCustomerID *string   `json:"stripe_customer_id" gorm:"type:varchar(255)"`
	CreatedAt        time.Time `json:"created_at"`
}

// TableName specifies the table name for TollRecord
func (TollRecord) TableName() string {
	return "toll_records"
}

// Equal compares two records ignoring CreatedAt, so round-trip comparisons do
// not depend on database timestamp precision.
func (r TollRecord) Equal(other TollRecord) bool {
	if r.ID != other.ID || r.GmailMessageID != other.GmailMessageID ||
		r.SenderEmail != other.SenderEmail || r.TollPaid != other.TollPaid {
		return false
	}
	if (r.StripeCustomerID == nil) != (other.StripeCustomerID == nil) {
		return false
	}
	if r.StripeCustomerID != nil && *r.StripeCustomerID != *other.StripeCustomerID {
		return false
	}
	return true
}

// WebhookEvent stores consumed Stripe event IDs so that a redelivered
// checkout completion cannot credit a sender's balance twice.
type WebhookEvent struct {
	ID            uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	StripeEventID string    `json:"stripe_event_id" gorm:"type:varchar(255);not null;uniqueIndex"`
	EventType     string    `json:"event_type" gorm:"type:varchar(100);not null"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName specifies the table name for WebhookEvent
func (WebhookEvent) TableName() string {
	return "webhook_events"
}

// EmailMessage represents an inbound email as seen by the toll engine
type EmailMessage struct {
	ID      string   `json:"id"`
	Subject string   `json:"subject"`
	From    string   `json:"from"`
	To      []string `json:"to"`
	CC      []string `json:"cc"`
}

// TollRecordResponse represents the response structure for toll records
type TollRecordResponse struct {
	ID               string    `json:"id"`
	GmailMessageID   string    `json:"gmail_message_id"`
	SenderEmail      string    `json:"sender_email"`
	TollPaid         bool      `json:"toll_paid"`
	StripeCustomerID *string   `json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Database  string            `json:"database"`
	Metrics   map[string]string `json:"metrics,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
