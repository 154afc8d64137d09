package utils

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	richPolicy   = bluemonday.UGCPolicy()
	strictPolicy = bluemonday.StrictPolicy()
)

// Sanitize cleans rich HTML content, keeping the formatting a user may legitimately enter.
func Sanitize(input string) string {
	return richPolicy.Sanitize(input)
}

// SanitizeText strips every tag and trims the result. The policy's entity escaping is undone
// so the value is stored as plain text and escaped once at render time.
func SanitizeText(input string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(input)))
}
