package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// titleCase capitalizes every space-separated token, treating hyphen-joined
// parts as separate words. Words containing a digit are left as they are.
// With keepShortUpper, all-uppercase words of up to three runes (NW, USA)
// are also kept.
func titleCase(s string, keepShortUpper bool) string {
	tokens := strings.Split(s, " ")
	for i, tok := range tokens {
		parts := strings.Split(tok, "-")
		for j, w := range parts {
			parts[j] = titleWord(w, keepShortUpper)
		}
		tokens[i] = strings.Join(parts, "-")
	}
	return strings.Join(tokens, " ")
}

func titleWord(w string, keepShortUpper bool) string {
	if w == "" || strings.IndexFunc(w, unicode.IsDigit) >= 0 {
		return w
	}
	if keepShortUpper && utf8.RuneCountInString(w) <= 3 && isUpper(w) {
		return w
	}
	r, size := utf8.DecodeRuneInString(w)
	return string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
}

// isUpper reports whether w has at least one cased rune and no lowercase ones.
func isUpper(w string) bool {
	cased := false
	for _, r := range w {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) || unicode.IsTitle(r) {
			cased = true
		}
	}
	return cased
}

func countLetters(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}
