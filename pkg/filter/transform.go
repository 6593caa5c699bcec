package filter

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Zero-width and invisible characters stripped before matching. Visitors have
// used these to split trigger words ("ig​nore") past naive filters.
var invisibleRunes = map[rune]bool{
	'\u200b': true, // zero width space
	'\u200c': true, // zero width non-joiner
	'\u200d': true, // zero width joiner
	'\u2060': true, // word joiner
	'\ufeff': true, // BOM / zero width no-break space
	'\u00ad': true, // soft hyphen
}

// NormalizeInbound canonicalizes visitor text before rule evaluation.
// NFKC folds fullwidth and mathematical-alphabet homoglyphs back to ASCII
// (so "ｉｇｎｏｒｅ" and "𝐢𝐠𝐧𝐨𝐫𝐞" hit the same rules), invisible separators are
// stripped, and the result is lowercased to match the inbound rule table.
// The original text is what gets delivered to the specimen; normalization is
// for classification only.
func NormalizeInbound(text string) string {
	folded := norm.NFKC.String(text)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if invisibleRunes[r] {
			continue
		}
		b.WriteRune(r)
	}

	return strings.ToLower(b.String())
}
