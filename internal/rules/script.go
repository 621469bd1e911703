package rules

import (
	"strings"
	"unicode"
)

// Script classifies the writing system of a string.
type Script int

const (
	ScriptOther Script = iota
	ScriptLatin
	ScriptCyrillic
)

func (s Script) String() string {
	switch s {
	case ScriptLatin:
		return "latin"
	case ScriptCyrillic:
		return "cyrillic"
	default:
		return "other"
	}
}

// DetectScript returns ScriptCyrillic if s contains any rune in the Cyrillic
// block (U+0400..U+04FF), ScriptLatin if it contains any Latin letter, and
// ScriptOther otherwise.
func DetectScript(s string) Script {
	latin := false
	for _, r := range s {
		if r >= 0x0400 && r <= 0x04FF {
			return ScriptCyrillic
		}
		if !latin && unicode.Is(unicode.Latin, r) {
			latin = true
		}
	}
	if latin {
		return ScriptLatin
	}
	return ScriptOther
}

// AbbrTable maps an abbreviation key to its canonical expansion. Keys are
// lowercase with periods removed (see AbbrKey).
type AbbrTable struct {
	m map[string]string
}

// Lookup returns the canonical form for a token. The token is keyed with
// AbbrKey first.
func (t AbbrTable) Lookup(token string) (string, bool) {
	if t.m == nil {
		return "", false
	}
	v, ok := t.m[AbbrKey(token)]
	return v, ok
}

// Len returns the number of keys.
func (t AbbrTable) Len() int { return len(t.m) }

// AbbrKey lowercases s and removes periods.
func AbbrKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), ".", "")
}

func mergeAbbr(tables ...AbbrTable) AbbrTable {
	out := map[string]string{}
	for _, t := range tables {
		for k, v := range t.m {
			out[k] = v
		}
	}
	return AbbrTable{m: out}
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
