// Package sanitize provides text sanitization for client-entered free text.
package sanitize

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	htmlTagRegex    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRegex = regexp.MustCompile(`[ \t]+`)
)

// StripHTML drops markup, including tags smuggled in as entities.
func StripHTML(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = htmlTagRegex.ReplaceAllString(html.UnescapeString(result), "")
	return strings.TrimSpace(result)
}

// Text strips HTML, NFC-normalizes and collapses runs of blanks.
// Use for fields like pet names, descriptions and slot notes.
func Text(s string) string {
	result := norm.NFC.String(StripHTML(s))
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(result, " "))
}

// TextPtr is Text for optional fields; nil stays nil.
func TextPtr(s *string) *string {
	if s == nil {
		return nil
	}
	result := Text(*s)
	return &result
}

// Limit sanitizes s and cuts it to at most max runes.
func Limit(s string, max int) string {
	result := Text(s)
	if max <= 0 || utf8.RuneCountInString(result) <= max {
		return result
	}
	return string([]rune(result)[:max])
}
