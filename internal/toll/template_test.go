package toll

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"inbox-tollbooth-go/internal/config"
)

func TestRenderSubjectDefault(t *testing.T) {
	tmpl := NewTemplates(&config.TollConfig{})

	assert.Equal(t, "Payment required to reach my inbox", tmpl.RenderSubject(0.25))
}

func TestRenderSubjectPlaceholder(t *testing.T) {
	tmpl := NewTemplates(&config.TollConfig{
		EmailSubject: "A ${tollAmount} toll applies",
	})

	assert.Equal(t, "A $0.25 toll applies", tmpl.RenderSubject(0.25))
}

func TestRenderBodyDefaultIncludesLink(t *testing.T) {
	tmpl := NewTemplates(&config.TollConfig{})

	body := tmpl.RenderBody(0.25, "https://checkout.stripe.com/pay/cs_123", "stranger@elsewhere.com")
	assert.Contains(t, body, "$0.25")
	assert.Contains(t, body, "https://checkout.stripe.com/pay/cs_123")
}

func TestRenderBodyPlaceholders(t *testing.T) {
	tmpl := NewTemplates(&config.TollConfig{
		EmailBody: "Hi {senderEmail}, pay {tollAmount} here: {paymentLink}",
	})

	body := tmpl.RenderBody(1.50, "https://example.com/pay", "stranger@elsewhere.com")
	assert.Equal(t, "Hi stranger@elsewhere.com, pay 1.50 here: https://example.com/pay", body)
}
