// Package textx provides small text utilities used across the project.
package textx

import "strings"

// NotAvailable is the placeholder stored for scraped fields the source page
// did not carry.
const NotAvailable = "N/A"

// SanitizeText removes control characters except tab/newline/CR and trims spaces.
func SanitizeText(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// Normalize collapses runs of whitespace to single spaces and trims the ends.
// Scraped HTML text nodes arrive full of indentation and newlines.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// OrNA normalizes s and substitutes NotAvailable when nothing is left.
func OrNA(s string) string {
	if n := Normalize(SanitizeText(s)); n != "" {
		return n
	}
	return NotAvailable
}
