package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeKey canonicalizes an entity identifier for matching: whitespace is
// collapsed, combining marks (accents) are stripped, and the result is
// uppercased. "Secretaría  de gobierno" and "SECRETARIA DE GOBIERNO" normalize
// to the same key.
func NormalizeKey(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(stripMarks, s); err == nil {
		s = out
	}
	return strings.ToUpper(s)
}
