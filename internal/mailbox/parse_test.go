package mailbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractAddress(t *testing.T) {
	assert.Equal(t, "jane@example.com", ExtractAddress("Jane Doe <jane@example.com>"))
	assert.Equal(t, "jane@example.com", ExtractAddress("jane@example.com"))
	assert.Equal(t, "jane@example.com", ExtractAddress("  <jane@example.com> "))
	assert.Equal(t, "", ExtractAddress(""))
	assert.Equal(t, "", ExtractAddress("Broken <"))
	assert.Equal(t, "", ExtractAddress("<>"))
}

func TestParseAddressList(t *testing.T) {
	addrs := ParseAddressList("Jane <jane@a.com>, bob@b.com , Carol <carol@c.com>")
	assert.Equal(t, []string{"jane@a.com", "bob@b.com", "carol@c.com"}, addrs)

	assert.Nil(t, ParseAddressList(""))
	assert.Nil(t, ParseAddressList("   "))
}
