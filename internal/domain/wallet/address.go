package wallet

import (
	"regexp"
	"strings"
)

var addressRE = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Normalize trims and lower-cases an address. Every storage key is built from the
// normalized form.
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Valid reports whether address is a 0x-prefixed 20 byte hex string.
func Valid(address string) bool {
	return addressRE.MatchString(strings.TrimSpace(address))
}

// Status describes a balance for display.
func Status(credits int64) string {
	if credits > 0 {
		return "active"
	}
	return "empty"
}
