package scorer

import (
	"strings"
	"unicode"
)

// NormalizeName lowercases a field name and strips separators and whitespace,
// so first_name, firstName and "First Name" compare equal.
func NormalizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// Tokenize splits a field name into lowercase word tokens on separators and
// camelCase boundaries: "name_first" -> [name first], "firstName" -> [first name].
func Tokenize(name string) []string {
	var tokens []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	runes := []rune(name)
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r):
			// camelCase boundary: lower followed by upper
			if unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]) {
				flush()
			}
			cur.WriteRune(unicode.ToLower(r))
		case unicode.IsDigit(r):
			cur.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// tokenSet builds a set from Tokenize output.
func tokenSet(name string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range Tokenize(name) {
		set[t] = struct{}{}
	}
	return set
}
