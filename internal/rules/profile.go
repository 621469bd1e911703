// Package rules holds the rule profile: the read-only configuration bundle
// that drives country, region, ZIP and street normalization.
//
// A Profile is built once at startup (see Load) and passed by pointer to every
// normalizer. It is never mutated afterwards, so concurrent readers need no
// synchronization. Missing or malformed sections are represented as empty
// tables; callers fall back to pass-through behavior when a table is empty.
package rules

import (
	"regexp"
	"strings"
)

// ZipRule is the pattern list for one country, in profile order.
type ZipRule struct {
	Country  string // ISO2
	Patterns []*regexp.Regexp
	Style    string
}

// Matches reports whether any pattern matches s at its start.
func (r ZipRule) Matches(s string) bool {
	for _, p := range r.Patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// Profile is the immutable rule bundle.
type Profile struct {
	path       string
	streetPath string
	loaded     bool

	countryOrder   []string          // ISO2 codes in document order
	countryIndex   map[string]string // ISO2 -> canonical name
	countryAliases map[string]string // lowercase alias -> canonical name

	zipRules     []ZipRule
	zipByCountry map[string]int

	regionAliases map[string]map[string]string // ISO2 -> alias key -> canonical name

	streetAbbr   map[Script]AbbrTable
	streetMerged AbbrTable
}

// Empty returns a profile with no tables. Every normalizer treats it as
// pass-through.
func Empty() *Profile {
	return &Profile{
		countryIndex:   map[string]string{},
		countryAliases: map[string]string{},
		zipByCountry:   map[string]int{},
		regionAliases:  map[string]map[string]string{},
		streetAbbr:     map[Script]AbbrTable{},
	}
}

// Path returns the resolved profile path, or "" when none was found.
func (p *Profile) Path() string { return p.path }

// StreetAbbrPath returns the file the street abbreviations were read from.
func (p *Profile) StreetAbbrPath() string { return p.streetPath }

// Loaded reports whether a profile file was found and parsed.
func (p *Profile) Loaded() bool { return p.loaded }

// CountryCodes returns the ISO2 codes of the country index in profile order.
func (p *Profile) CountryCodes() []string {
	out := make([]string, len(p.countryOrder))
	copy(out, p.countryOrder)
	return out
}

// CountryName returns the canonical name registered for iso2.
func (p *Profile) CountryName(iso2 string) (string, bool) {
	name, ok := p.countryIndex[strings.ToUpper(strings.TrimSpace(iso2))]
	return name, ok
}

// CountryByName reverse-matches name against the canonical names of the
// index (case-insensitive) and returns the ISO2 code and canonical spelling.
// The first code in profile order wins.
func (p *Profile) CountryByName(name string) (iso2, canonical string, ok bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", false
	}
	for _, code := range p.countryOrder {
		if c := p.countryIndex[code]; strings.EqualFold(c, name) {
			return code, c, true
		}
	}
	return "", "", false
}

// CountryAlias returns the canonical name for an alias (case-insensitive).
func (p *Profile) CountryAlias(alias string) (string, bool) {
	name, ok := p.countryAliases[strings.ToLower(strings.TrimSpace(alias))]
	return name, ok
}

// ZipRules returns every country's ZIP rule in profile order.
func (p *Profile) ZipRules() []ZipRule {
	return p.zipRules
}

// ZipRule returns the ZIP rule for iso2.
func (p *Profile) ZipRule(iso2 string) (ZipRule, bool) {
	i, ok := p.zipByCountry[strings.ToUpper(strings.TrimSpace(iso2))]
	if !ok {
		return ZipRule{}, false
	}
	return p.zipRules[i], true
}

// RegionAlias looks up a normalized alias key (lowercase, alphanumeric only)
// in the region table of iso2.
func (p *Profile) RegionAlias(iso2, key string) (string, bool) {
	table := p.regionAliases[strings.ToUpper(strings.TrimSpace(iso2))]
	if table == nil {
		return "", false
	}
	name, ok := table[key]
	return name, ok
}

// Abbreviations returns the street-abbreviation table to use for a string
// written in script s. When the script has no table of its own (always the
// case for ScriptOther) the merged Latin+Cyrillic table is returned; Cyrillic
// entries win on key collisions.
func (p *Profile) Abbreviations(s Script) AbbrTable {
	if t := p.streetAbbr[s]; t.Len() > 0 {
		return t
	}
	return p.streetMerged
}

// Stats summarizes section sizes for diagnostics.
type Stats struct {
	Path           string `json:"path"`
	StreetAbbrPath string `json:"streetAbbrPath,omitempty"`
	Loaded         bool   `json:"loaded"`
	Countries      int    `json:"countries"`
	CountryAliases int    `json:"countryAliases"`
	ZipCountries   int    `json:"zipCountries"`
	RegionTables   int    `json:"regionTables"`
	LatinAbbr      int    `json:"latinAbbreviations"`
	CyrillicAbbr   int    `json:"cyrillicAbbreviations"`
}

// Stats returns the profile's section sizes.
func (p *Profile) Stats() Stats {
	return Stats{
		Path:           p.path,
		StreetAbbrPath: p.streetPath,
		Loaded:         p.loaded,
		Countries:      len(p.countryIndex),
		CountryAliases: len(p.countryAliases),
		ZipCountries:   len(p.zipRules),
		RegionTables:   len(p.regionAliases),
		LatinAbbr:      p.streetAbbr[ScriptLatin].Len(),
		CyrillicAbbr:   p.streetAbbr[ScriptCyrillic].Len(),
	}
}

// RegionKey builds the lookup key used by region tables: lowercase with every
// non-alphanumeric rune removed.
func RegionKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if isAlnum(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
