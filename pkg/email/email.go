// Package email holds helpers for the contact addresses carried on conventions.
package email

import (
	"strings"
	"unicode"
)

// Normalize lowercases and trims an address.
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// DeriveName guesses a first and last name from the local part of an address,
// e.g. "jean.dupont@mail.fr" gives "Jean", "Dupont". last is empty when the
// local part has a single component.
func DeriveName(address string) (first, last string) {
	local := address
	if at := strings.IndexByte(address, '@'); at >= 0 {
		local = address[:at]
	}
	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return "", ""
	}
	first = capitalize(parts[0])
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}
	return first, last
}

func capitalize(s string) string {
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
