package engine

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// normalize folds case, strips diacritics and collapses whitespace so that
// "Olá", "OLA" and " ola " compare equal. Transformers carry state, so a new
// chain is built per call.
func normalize(s string) string {
	stripped, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(cases.Fold().String(stripped)), " ")
}

// compact is normalize without any spaces, for matching "Tier 3" to "tier3".
func compact(s string) string {
	return strings.ReplaceAll(normalize(s), " ", "")
}

// containsPhrase reports whether normalized text contains phrase.
func containsPhrase(text, phrase string) bool {
	p := normalize(phrase)
	return p != "" && strings.Contains(normalize(text), p)
}
