package utils

import "strings"

// NormalizeString trims whitespace and collapses inner runs of spaces.
func NormalizeString(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeEmail normalizes email addresses (lowercase and trim)
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NameKey folds a display name for case-insensitive uniqueness checks.
func NameKey(name string) string {
	return strings.ToLower(NormalizeString(name))
}

// NormalizeCode upper-cases short identifiers such as room type codes.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Truncate shortens a list of ids for display, appending "..." past max.
func Truncate(ids []string, max int) []string {
	if len(ids) <= max {
		return ids
	}
	out := make([]string, 0, max+1)
	out = append(out, ids[:max]...)
	return append(out, "...")
}
