package whitelist

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"inbox-tollbooth-go/internal/models"
)

// KnownSenderChecker answers whether the operator has previously sent mail to
// an address. The Gmail mailbox satisfies this with a sent-folder search.
type KnownSenderChecker interface {
	HasSentTo(ctx context.Context, address string) (bool, error)
}

// Evaluator decides whether a sender is exempt from the toll. Four rules are
// checked in order, short-circuiting on the first match; any lookup failure
// counts as not whitelisted so the toll stays the conservative default.
type Evaluator struct {
	userEmail      string
	trustedDomains []string
	known          KnownSenderChecker
}

// New creates a new whitelist Evaluator
func New(userEmail string, trustedDomains []string, known KnownSenderChecker) *Evaluator {
	return &Evaluator{
		userEmail:      userEmail,
		trustedDomains: trustedDomains,
		known:          known,
	}
}

// IsWhitelisted checks the sender of the message against all exemption rules
func (e *Evaluator) IsWhitelisted(ctx context.Context, msg *models.EmailMessage) bool {
	sender := msg.From

	// Rule 1: sender shares the operator's own domain
	if e.matchesHostedDomain(sender) {
		logrus.Debugf("Sender %s is whitelisted (hosted domain match)", sender)
		return true
	}

	// Rule 2: sender's domain is on the trusted list
	if e.IsTrustedDomain(sender) {
		logrus.Debugf("Sender %s is whitelisted (trusted domain)", sender)
		return true
	}

	// Rule 3: a To/Cc recipient belongs to a trusted domain. Covers the
	// warm-introduction case where an unknown sender copies a trusted contact.
	if e.hasTrustedRecipient(msg) {
		logrus.Debugf("Sender %s is whitelisted (recipient from trusted domain)", sender)
		return true
	}

	// Rule 4: the operator has mailed this sender before
	knownSender, err := e.known.HasSentTo(ctx, sender)
	if err != nil {
		logrus.Errorf("Known-sender check failed for %s: %v", sender, err)
		return false
	}
	if knownSender {
		logrus.Debugf("Sender %s is whitelisted (known sender)", sender)
		return true
	}

	return false
}

// matchesHostedDomain checks whether the sender's domain equals the
// operator's mailbox domain
func (e *Evaluator) matchesHostedDomain(sender string) bool {
	userDomain := ExtractDomain(e.userEmail)
	senderDomain := ExtractDomain(sender)
	if userDomain == "" || senderDomain == "" {
		return false
	}
	return strings.EqualFold(userDomain, senderDomain)
}

// IsTrustedDomain checks whether the address's domain is a configured trusted
// domain
func (e *Evaluator) IsTrustedDomain(address string) bool {
	domain := ExtractDomain(address)
	if domain == "" {
		return false
	}
	for _, trusted := range e.trustedDomains {
		if strings.EqualFold(trusted, domain) {
			return true
		}
	}
	return false
}

// hasTrustedRecipient checks the To and Cc addresses for trusted domains
func (e *Evaluator) hasTrustedRecipient(msg *models.EmailMessage) bool {
	for _, recipient := range append(append([]string{}, msg.To...), msg.CC...) {
		if e.IsTrustedDomain(recipient) {
			logrus.Debugf("Recipient %s is from a trusted domain, whitelisting sender", recipient)
			return true
		}
	}
	return false
}

// ExtractDomain returns the lowercased domain of an email address, or an
// empty string when the input has no usable domain.
func ExtractDomain(email string) string {
	if strings.TrimSpace(email) == "" {
		return ""
	}
	at := strings.LastIndex(email, "@")
	if at > 0 && at < len(email)-1 {
		return strings.ToLower(email[at+1:])
	}
	return ""
}
