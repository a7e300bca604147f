package mailbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"inbox-tollbooth-go/internal/config"
	"inbox-tollbooth-go/internal/models"
)

// GmailMailbox implements Mailbox over the Gmail API
type GmailMailbox struct {
	service          *gmail.Service
	userEmail        string
	fromName         string
	automationMarker string
}

// NewGmailMailbox creates a new Gmail-backed mailbox. fromName, when set, is
// used as the display name on outgoing notifications.
func NewGmailMailbox(cfg *config.GmailConfig, automationMarker, fromName string) (*GmailMailbox, error) {
	ctx := context.Background()

	// Create OAuth2 config
	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{gmail.GmailModifyScope, gmail.GmailSendScope},
		Endpoint:     google.Endpoint,
	}

	// Create token source from refresh token
	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}

	tokenSource := oauth2Config.TokenSource(ctx, token)

	// Create Gmail service
	service, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &GmailMailbox{
		service:          service,
		userEmail:        cfg.UserEmail,
		fromName:         fromName,
		automationMarker: automationMarker,
	}, nil
}

// ListNewMessages lists message IDs matching the Gmail search query
func (m *GmailMailbox) ListNewMessages(ctx context.Context, query string, maxResults int64) ([]string, error) {
	call := m.service.Users.Messages.List(m.userEmail).Q(query).MaxResults(maxResults).Context(ctx)
	response, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	ids := make([]string, 0, len(response.Messages))
	for _, msg := range response.Messages {
		ids = append(ids, msg.Id)
	}
	return ids, nil
}

// GetMessage fetches the full message and extracts the headers the toll
// engine cares about
func (m *GmailMailbox) GetMessage(ctx context.Context, id string) (*models.EmailMessage, error) {
	msg, err := m.service.Users.Messages.Get(m.userEmail, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}

	email := &models.EmailMessage{ID: msg.Id}

	if msg.Payload == nil {
		return email, nil
	}

	for _, header := range msg.Payload.Headers {
		switch strings.ToLower(header.Name) {
		case "subject":
			email.Subject = header.Value
		case "from":
			email.From = ExtractAddress(header.Value)
		case "to":
			email.To = ParseAddressList(header.Value)
		case "cc":
			email.CC = ParseAddressList(header.Value)
		}
	}

	return email, nil
}

// EnsureLabel returns the label ID for the given name, creating the label if
// it does not exist yet
func (m *GmailMailbox) EnsureLabel(ctx context.Context, name string) (string, error) {
	response, err := m.service.Users.Labels.List(m.userEmail).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to list labels: %w", err)
	}

	for _, label := range response.Labels {
		if label.Name == name {
			return label.Id, nil
		}
	}

	logrus.Infof("Creating label %q for user %s", name, m.userEmail)
	created, err := m.service.Users.Labels.Create(m.userEmail, &gmail.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create label %q: %w", name, err)
	}
	return created.Id, nil
}

// ArchiveAndLabel removes the message from the inbox and attaches a label
func (m *GmailMailbox) ArchiveAndLabel(ctx context.Context, id, labelID string) error {
	request := &gmail.ModifyMessageRequest{
		AddLabelIds:    []string{labelID},
		RemoveLabelIds: []string{"INBOX"},
	}
	if _, err := m.service.Users.Messages.Modify(m.userEmail, id, request).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to archive and label message %s: %w", id, err)
	}
	return nil
}

// UnarchiveAndLabel moves the message back to the inbox, swapping labels
func (m *GmailMailbox) UnarchiveAndLabel(ctx context.Context, id, removeLabelID, addLabelID string) error {
	request := &gmail.ModifyMessageRequest{
		AddLabelIds:    []string{"INBOX", addLabelID},
		RemoveLabelIds: []string{removeLabelID},
	}
	if _, err := m.service.Users.Messages.Modify(m.userEmail, id, request).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to unarchive message %s: %w", id, err)
	}
	return nil
}

// SendNotification sends an HTML email from the operator's address
func (m *GmailMailbox) SendNotification(ctx context.Context, to, subject, htmlBody string) error {
	raw := m.buildRawMessage(to, subject, htmlBody)
	encoded := base64.URLEncoding.EncodeToString([]byte(raw))

	message := &gmail.Message{Raw: encoded}
	if _, err := m.service.Users.Messages.Send(m.userEmail, message).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to send notification to %s: %w", to, err)
	}

	logrus.Infof("Sent notification from %s to %s", m.userEmail, to)
	return nil
}

// HasSentTo reports whether the operator's sent folder contains at least one
// message to the address. Automated notifications carrying the marker subject
// are excluded so the toll's own payment requests never whitelist a sender.
func (m *GmailMailbox) HasSentTo(ctx context.Context, address string) (bool, error) {
	query := fmt.Sprintf("in:sent to:%s -subject:%q", address, m.automationMarker)

	response, err := m.service.Users.Messages.List(m.userEmail).Q(query).MaxResults(1).Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("failed to search sent folder for %s: %w", address, err)
	}

	return len(response.Messages) > 0, nil
}

// Close closes the mailbox
func (m *GmailMailbox) Close() error {
	// Gmail API service doesn't need explicit closing
	return nil
}

// buildRawMessage creates an RFC 2822 message with an HTML body
func (m *GmailMailbox) buildRawMessage(to, subject, htmlBody string) string {
	var b strings.Builder
	if m.fromName != "" {
		b.WriteString(fmt.Sprintf("From: %q <%s>\r\n", m.fromName, m.userEmail))
	} else {
		b.WriteString(fmt.Sprintf("From: %s\r\n", m.userEmail))
	}
	b.WriteString(fmt.Sprintf("To: %s\r\n", to))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	b.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	return b.String()
}
