// Package textnorm provides the generic text cleanup shared by every field
// normalizer: Unicode composition, whitespace collapsing, edge trimming, and
// the garbage-sentinel predicate.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// edgeCutset is stripped from both ends after whitespace is collapsed.
const edgeCutset = " ,;"

// garbage holds values that carry no address information.
var garbage = map[string]struct{}{
	"n/a":        {},
	"na":         {},
	"null":       {},
	"none":       {},
	"-":          {},
	"*":          {},
	"all states": {},
	"?":          {},
}

// Normalize composes s with NFKC, maps non-breaking spaces to plain spaces,
// collapses whitespace runs to a single space, and strips leading/trailing
// spaces, commas and semicolons.
//
// Normalize is idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFKC.String(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Trim(CollapseSpace(s), edgeCutset)
}

// CollapseSpace replaces every run of Unicode whitespace with one ASCII space
// and trims the result.
func CollapseSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			pendingSpace = b.Len() > 0
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IsGarbage reports whether s is empty or one of the sentinel values that
// mean "no value" (n/a, null, -, ...). The comparison is case-insensitive.
func IsGarbage(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return true
	}
	_, ok := garbage[s]
	return ok
}

// Clean normalizes s and returns "" when the result is a garbage sentinel.
func Clean(s string) string {
	s = Normalize(s)
	if IsGarbage(s) {
		return ""
	}
	return s
}
