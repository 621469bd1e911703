package normalize

import (
	"regexp"
	"strings"

	"github.com/JonMunkholm/addrnorm/internal/rules"
	"github.com/JonMunkholm/addrnorm/internal/textnorm"
)

const streetEdges = " \t\n\r\"'`“”„‚«»()[]{}.,;|/\\-"

// RE2 has no Unicode \b, so word boundaries are spelled out as
// "start of input or a non-word rune".
const nonWord = `[^\p{L}\p{N}_]`

var (
	unitMarker = regexp.MustCompile(`(?i)(?:^|` + nonWord + `)(?:` + strings.Join([]string{
		`apt`, `apto`, `apartment`, `unit`, `suite`, `ste`, `room`, `rm`,
		`кв`, `квартира`, `подъезд`, `под`,
		`комн`, `комната`, `пом`, `помещение`,
	}, "|") + `)(?:` + nonWord + `.*)?$`)

	// office markers double as ordinary words ("Avenue of the Americas"),
	// so they only cut when a number follows
	officeMarker = regexp.MustCompile(`(?i)(?:^|` + nonWord + `)(?:office|ofc|of|офис|оф)\.?\s*[#№]?\s*\d.*$`)

	numberMarker = regexp.MustCompile(`(?i)(^|` + nonWord + `)(?:№|Nº|No\.?|N°)\s*(\d)`)
)

// Street canonicalizes a street line: apartment/unit suffixes are cut,
// number markers before digits dropped, street-type abbreviations expanded
// and the result title-cased. Values with fewer than four letters are
// rejected.
func (n *Normalizer) Street(raw string) string {
	s := textnorm.CollapseSpace(strings.Trim(textnorm.Normalize(raw), streetEdges))
	if s == "" {
		return ""
	}

	s = unitMarker.ReplaceAllString(s, "")
	s = strings.Trim(officeMarker.ReplaceAllString(s, ""), ",; ")
	s = numberMarker.ReplaceAllString(s, "${1}${2}")
	s = n.expandAbbreviations(s)
	s = textnorm.CollapseSpace(strings.Trim(s, streetEdges))
	s = titleCase(s, true)

	if countLetters(s) < 4 {
		return ""
	}
	return s
}

func (n *Normalizer) expandAbbreviations(s string) string {
	table := n.profile.Abbreviations(rules.DetectScript(s))
	if table.Len() == 0 {
		return s
	}
	words := strings.Split(s, " ")
	for i, w := range words {
		if canon, ok := table.Lookup(strings.Trim(w, ".")); ok {
			words[i] = canon
		}
	}
	return strings.Join(words, " ")
}
