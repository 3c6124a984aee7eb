package validation

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// Definition of strict sanitization policy
	strictHTMLPolicy *bluemonday.Policy
)

func init() {
	// Initialize strict policy once at startup
	strictHTMLPolicy = bluemonday.StrictPolicy() // Removes all HTML tags
}

// SanitizeText removes all HTML tags and attributes from an input string,
// preventing XSS before saving to the database.
func SanitizeText(s string) string {
	return strictHTMLPolicy.Sanitize(s)
}

// StripUnprintable removes non-printable characters, allowing common whitespace
// like space, tab, newline, and carriage return.
func StripUnprintable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		return -1 // Drop the rune
	}, s)
}

// maxUnescapePasses bounds how many layers of entity encoding are peeled off.
const maxUnescapePasses = 5

// SanitizeLabel cleans a provider-supplied label (description, category, account
// name) for storage. Entities are decoded before the strict policy runs, so
// encoded markup is removed like raw markup. Only &, ' and " are restored
// afterwards; < and > stay escaped.
func SanitizeLabel(s string, maxRunes int) string {
	decoded := StripUnprintable(s)
	for i := 0; i < maxUnescapePasses; i++ {
		next := html.UnescapeString(decoded)
		if next == decoded {
			break
		}
		decoded = next
	}

	cleaned := SanitizeText(decoded)
	cleaned = strings.NewReplacer("&amp;", "&", "&#39;", "'", "&#34;", "\"").Replace(cleaned)
	cleaned = strings.Join(strings.Fields(cleaned), " ")

	if maxRunes > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxRunes {
			cleaned = strings.TrimSpace(string(runes[:maxRunes]))
		}
	}
	return cleaned
}
