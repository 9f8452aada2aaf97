// internal/app/system/normalize/normalize.go

// Package normalize provides canonical forms for user-supplied strings
// before they are validated or written to the database.
package normalize

import "strings"

// Email lowercases and trims an email address. Emails are always stored
// and compared in this form, which is what makes lookups by email
// case-insensitive exact matches.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims a display name, preserving its case.
func Name(s string) string {
	return strings.TrimSpace(s)
}

// Role lowercases and trims a role value for enum comparison.
func Role(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Status lowercases and trims a status value for enum comparison.
func Status(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Unit trims a unit label. Unit labels keep their case ("101A" stays
// "101A"); an all-whitespace label becomes empty.
func Unit(s string) string {
	return strings.TrimSpace(s)
}

// HouseholdName trims a household name. Household lookup is deliberately
// case-sensitive within a tenant, so only surrounding whitespace is
// removed.
func HouseholdName(s string) string {
	return strings.TrimSpace(s)
}
