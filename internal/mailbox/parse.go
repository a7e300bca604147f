package mailbox

import "strings"

// ExtractAddress pulls the bare email address out of a header value in either
// `Name <email@domain.com>` or `email@domain.com` form. Returns an empty
// string when no address can be found.
func ExtractAddress(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}

	if strings.Contains(value, "<") && strings.Contains(value, ">") {
		start := strings.Index(value, "<") + 1
		end := strings.Index(value, ">")
		if start > 0 && end > start {
			return strings.TrimSpace(value[start:end])
		}
		return ""
	}

	// Bare form; anything without an @ is not an address
	if !strings.Contains(value, "@") {
		return ""
	}
	return value
}

// ParseAddressList splits a To/Cc header value on commas and extracts the
// bare address from each entry. Entries without a recognizable address are
// dropped.
func ParseAddressList(headerValue string) []string {
	if strings.TrimSpace(headerValue) == "" {
		return nil
	}

	var addresses []string
	for _, part := range strings.Split(headerValue, ",") {
		if addr := ExtractAddress(part); addr != "" {
			addresses = append(addresses, addr)
		}
	}
	return addresses
}
