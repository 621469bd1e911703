package normalize

import (
	"strings"

	"github.com/JonMunkholm/addrnorm/internal/textnorm"
)

// CountrySource records which rule resolved a country.
type CountrySource string

const (
	SourceInput       CountrySource = "input"
	SourceAlias       CountrySource = "alias"
	SourceISO         CountrySource = "iso"
	SourceInferredZip CountrySource = "inferred_zip"
	SourceUnknown     CountrySource = "unknown"
)

// CountryResult is the outcome of country normalization. Name is always
// either a canonical name from the profile index or "".
type CountryResult struct {
	Name   string        `json:"name"`
	ISO2   string        `json:"iso2,omitempty"`
	Source CountrySource `json:"source"`
}

var iso3 = map[string]string{
	"usa": "US", "rus": "RU", "deu": "DE", "esp": "ES", "ita": "IT",
	"nld": "NL", "fra": "FR", "gbr": "GB", "can": "CA", "chn": "CN",
	"jpn": "JP", "ind": "IN", "aus": "AU", "bra": "BR", "mex": "MX",
	"pol": "PL", "prt": "PT", "bel": "BE", "aut": "AT", "swe": "SE",
	"nor": "NO", "dnk": "DK", "fin": "FI", "irl": "IE", "che": "CH",
}

// Country resolves raw to a canonical country name. Resolution order:
// canonical name, alias, ISO2/ISO3 code, then zipISO2 when raw is empty.
func (n *Normalizer) Country(raw, zipISO2 string) CountryResult {
	p := n.profile
	raw = textnorm.Normalize(raw)

	if raw != "" {
		if code, canon, ok := p.CountryByName(raw); ok {
			return CountryResult{Name: canon, ISO2: code, Source: SourceInput}
		}

		// An alias pointing outside the index cannot produce a canonical name.
		if target, ok := p.CountryAlias(raw); ok {
			if code, canon, ok := p.CountryByName(target); ok {
				return CountryResult{Name: canon, ISO2: code, Source: SourceAlias}
			}
		}

		if code := isoFromText(raw); code != "" {
			if canon, ok := p.CountryName(code); ok {
				return CountryResult{Name: canon, ISO2: code, Source: SourceISO}
			}
		}
		return CountryResult{Source: SourceUnknown}
	}

	if code := strings.ToUpper(strings.TrimSpace(zipISO2)); code != "" {
		if canon, ok := p.CountryName(code); ok {
			return CountryResult{Name: canon, ISO2: code, Source: SourceInferredZip}
		}
	}
	return CountryResult{Source: SourceUnknown}
}

func isoFromText(s string) string {
	switch len(s) {
	case 2:
		return strings.ToUpper(s)
	case 3:
		return iso3[strings.ToLower(s)]
	}
	return ""
}
