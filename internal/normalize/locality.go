package normalize

import (
	"regexp"
	"strings"

	"github.com/JonMunkholm/addrnorm/internal/textnorm"
)

const localityEdges = " \t\n\r,;|/"

// quote runes trimmed from both ends of locality values; brackets are
// handled by trimLocalityEdges so a balanced pair survives
const quoteEdges = " \t\n\r\"'`“”„‚«»"

var bracketPairs = map[byte]byte{'(': ')', '[': ']', '{': '}'}

var (
	adminParens = regexp.MustCompile(`(?i)\([^)]*(?:район|округ|municipality|county|district)[^)]*\)`)

	localityPrefix = regexp.MustCompile(`(?i)^(?:` + strings.Join([]string{
		`city of`, `municipality of`, `town of`, `village of`,
		`ciudad de`, `cidade de`, `ville de`, `gemeente`, `stad`,
		`г\.?`, `город`, `пос[. ]?`, `пгт`, `рп`,
		`с[.\s]?`, `село`, `деревня`, `дер\.?`,
		`кп`, `аул`, `кишлак`,
	}, "|") + `)\s+`)

	segmentSep = regexp.MustCompile(`[,/|]`)

	zipShapes = []*regexp.Regexp{
		regexp.MustCompile(`^\d{3,8}$`),
		regexp.MustCompile(`^\d{5}-\d{4}$`),
		regexp.MustCompile(`^\d{5}-\d{3}$`),
		regexp.MustCompile(`^\d{3}-\d{4}$`),
		regexp.MustCompile(`^[A-Za-z]\d[A-Za-z]\s?\d[A-Za-z]\d$`),
		regexp.MustCompile(`^\d{4}\s?[A-Za-z]{2}$`),
		regexp.MustCompile(`^\d{2}-\d{3}$`),
		regexp.MustCompile(`^\d{4}-\d{3}$`),
		regexp.MustCompile(`^[A-Za-z]\d{2}\s?[A-Za-z\d]{4}$`),
	}
)

var localityGarbage = map[string]struct{}{
	"unknown":    {},
	"неизвестно": {},
}

// LocalityVerdict explains an empty locality result.
type LocalityVerdict int

const (
	LocalityOK LocalityVerdict = iota
	LocalityEmpty
	LocalityGarbage
	// LocalityZipShaped marks values dropped because they look like a postal
	// code. The check ignores the country, so numeric place names are
	// rejected too.
	LocalityZipShaped
)

// Locality canonicalizes a city/town name. The country arguments are
// accepted for symmetry with Region and are currently unused.
func (n *Normalizer) Locality(raw, iso2, countryName string) string {
	s, _ := n.LocalityDetail(raw, iso2, countryName)
	return s
}

// LocalityDetail is Locality plus the reason a value was rejected.
func (n *Normalizer) LocalityDetail(raw, _, _ string) (string, LocalityVerdict) {
	s := collapseLocality(textnorm.Normalize(raw))
	if s == "" {
		return "", LocalityEmpty
	}
	// "n/a" would otherwise survive as its first segment "n"
	if isLocalityGarbage(s) {
		return "", LocalityGarbage
	}

	s = collapseLocality(adminParens.ReplaceAllString(s, ""))
	s = trimLocalityEdges(s)
	s = localityPrefix.ReplaceAllString(s, "")
	s = firstSegment(s)
	s = collapseLocality(trimLocalityEdges(s))

	if s == "" {
		return "", LocalityEmpty
	}
	if isLocalityGarbage(s) {
		return "", LocalityGarbage
	}
	if looksLikeZip(s) {
		return "", LocalityZipShaped
	}
	return titleCase(s, false), LocalityOK
}

func collapseLocality(s string) string {
	return strings.Trim(textnorm.CollapseSpace(s), localityEdges)
}

// trimLocalityEdges strips quotes, a bracket pair enclosing the whole value
// and unmatched edge brackets, until nothing changes.
func trimLocalityEdges(s string) string {
	for {
		prev := s
		s = strings.Trim(s, quoteEdges)
		if len(s) >= 2 {
			if closer, ok := bracketPairs[s[0]]; ok && s[len(s)-1] == closer {
				s = s[1 : len(s)-1]
			}
		}
		if s != "" {
			if closer, ok := bracketPairs[s[0]]; ok && strings.IndexByte(s, closer) < 0 {
				s = s[1:]
			}
		}
		if s != "" {
			for opener, closer := range bracketPairs {
				if s[len(s)-1] == closer && strings.IndexByte(s, opener) < 0 {
					s = s[:len(s)-1]
					break
				}
			}
		}
		if s == prev {
			return s
		}
	}
}

func firstSegment(s string) string {
	seg := strings.TrimSpace(segmentSep.Split(s, 2)[0])
	if seg == "" {
		return s
	}
	return seg
}

func isLocalityGarbage(s string) bool {
	if textnorm.IsGarbage(s) {
		return true
	}
	_, ok := localityGarbage[strings.ToLower(s)]
	return ok
}

func looksLikeZip(s string) bool {
	for _, re := range zipShapes {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
