package normalize

import (
	"strings"

	"github.com/JonMunkholm/addrnorm/internal/rules"
	"github.com/JonMunkholm/addrnorm/internal/textnorm"
)

// Region canonicalizes a region name. The effective country is iso2, or the
// country whose canonical name equals countryName. Only US regions are
// looked up, by their alphanumeric key, in the profile's US table. Any other
// country, or a miss, returns the cleaned raw value unchanged.
func (n *Normalizer) Region(raw, iso2, countryName string) string {
	raw = textnorm.Normalize(raw)
	if raw == "" {
		return ""
	}
	if iso2 == "" {
		iso2, _, _ = n.profile.CountryByName(countryName)
	}
	if !strings.EqualFold(iso2, "US") {
		return raw
	}
	if name, ok := n.profile.RegionAlias("US", rules.RegionKey(raw)); ok {
		return name
	}
	return raw
}
