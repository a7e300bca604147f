package mailbox

import (
	"context"

	"inbox-tollbooth-go/internal/models"
)

// Mailbox is the mail transport the toll engine runs against. The Gmail
// implementation is the only production one; tests substitute fakes.
type Mailbox interface {
	// ListNewMessages returns the IDs of messages matching the query
	ListNewMessages(ctx context.Context, query string, maxResults int64) ([]string, error)
	// GetMessage fetches the full message for an ID
	GetMessage(ctx context.Context, id string) (*models.EmailMessage, error)
	// EnsureLabel returns the ID of the named label, creating it if needed
	EnsureLabel(ctx context.Context, name string) (string, error)
	// ArchiveAndLabel removes the message from the inbox and adds a label
	ArchiveAndLabel(ctx context.Context, id, labelID string) error
	// UnarchiveAndLabel moves the message back to the inbox, removing one
	// label and adding another
	UnarchiveAndLabel(ctx context.Context, id, removeLabelID, addLabelID string) error
	// SendNotification sends an HTML email from the operator's address
	SendNotification(ctx context.Context, to, subject, htmlBody string) error
	// HasSentTo reports whether the operator has ever sent mail to the
	// address, excluding automated mail
	HasSentTo(ctx context.Context, address string) (bool, error)
	Close() error
}
