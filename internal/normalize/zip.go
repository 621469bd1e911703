package normalize

import (
	"strings"

	"github.com/JonMunkholm/addrnorm/internal/textnorm"
)

// ZipResult is the outcome of ZIP normalization.
type ZipResult struct {
	// Norm holds only ASCII letters and digits, uppercased. Separators are
	// never reinserted; callers that want a display format can use Style.
	Norm  string `json:"zipNorm"`
	Valid bool   `json:"valid"`
	// CountryInferred is set only when the country was unknown and a
	// profile pattern matched.
	CountryInferred string `json:"countryInferred,omitempty"`
	Style           string `json:"style,omitempty"`
}

// Zip normalizes a postal code. When iso2 is non-empty the code is validated
// against that country's patterns; otherwise the countries are scanned in
// profile order and the first match determines CountryInferred.
func (n *Normalizer) Zip(iso2, raw string) ZipResult {
	raw = textnorm.Normalize(raw)
	if raw == "" {
		return ZipResult{}
	}
	cleaned := cleanZip(raw)

	if iso2 = strings.TrimSpace(iso2); iso2 != "" {
		rule, ok := n.profile.ZipRule(iso2)
		if !ok {
			return ZipResult{Norm: cleaned}
		}
		return ZipResult{
			Norm:  cleaned,
			Valid: rule.Matches(raw) || rule.Matches(cleaned),
			Style: rule.Style,
		}
	}

	for _, rule := range n.profile.ZipRules() {
		if rule.Matches(raw) || rule.Matches(cleaned) {
			return ZipResult{Norm: cleaned, Valid: true, CountryInferred: rule.Country, Style: rule.Style}
		}
	}
	return ZipResult{Norm: cleaned}
}

func cleanZip(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'A' && c <= 'Z':
			b.WriteByte(c)
		case c >= 'a' && c <= 'z':
			b.WriteByte(c - 'a' + 'A')
		}
	}
	return b.String()
}
