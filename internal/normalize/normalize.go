// Package normalize turns raw column names into a canonical comparison form.
package normalize

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Field is the normalized view of a raw source field name.
// Canonical is the lowercase alphanumeric form with separators removed;
// Tokens is the set of words split on separators and case transitions.
type Field struct {
	Raw       string
	Canonical string
	Tokens    map[string]struct{}
}

// HasToken reports whether the token set contains tok.
func (f Field) HasToken(tok string) bool {
	_, ok := f.Tokens[tok]
	return ok
}

// TokenList returns the tokens in sorted order.
func (f Field) TokenList() []string {
	out := make([]string, 0, len(f.Tokens))
	for tok := range f.Tokens {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

// foldTransform strips diacritics: NFD decomposition, drop combining marks,
// recompose. "Prénom" and "Prenom" normalize identically.
//
//nolint:gochecknoglobals // Stateless transformer chain, safe to share.
var foldTransform = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize produces the canonical form and token set for a raw field name.
// It is pure: no side effects, and empty or all-punctuation input yields an
// empty canonical with an empty token set rather than an error.
func Normalize(raw string) Field {
	folded, _, err := transform.String(foldTransform, raw)
	if err != nil {
		// Fold only fails on invalid UTF-8; compare the input as-is then.
		folded = raw
	}

	words := splitWords(folded)

	tokens := make(map[string]struct{}, len(words))
	var canonical strings.Builder
	for _, w := range words {
		lw := strings.ToLower(w)
		tokens[lw] = struct{}{}
		canonical.WriteString(lw)
	}

	return Field{
		Raw:       raw,
		Canonical: canonical.String(),
		Tokens:    tokens,
	}
}

// splitWords splits on separators (anything non-alphanumeric) and on
// lower-to-upper case and letter/digit transitions.
// "employeeID" -> ["employee", "ID"], "addr2" -> ["addr", "2"].
func splitWords(s string) []string {
	var words []string
	var cur []rune

	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}

	prev := rune(0)
	for _, r := range s {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r) && unicode.IsLower(prev):
			flush()
			cur = append(cur, r)
		case unicode.IsLetter(r) && unicode.IsDigit(prev), unicode.IsDigit(r) && unicode.IsLetter(prev):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
		prev = r
	}
	flush()

	return words
}
