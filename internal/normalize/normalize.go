// Package normalize implements the field canonicalizers (ZIP, country,
// region, locality, street) and the assembler that joins their output into
// a single address line.
//
// Every normalizer reads its tables from an injected *rules.Profile. When a
// table is empty the normalizer passes the cleaned input through unchanged.
package normalize

import "github.com/JonMunkholm/addrnorm/internal/rules"

// Normalizer applies the field rules of one profile. It is safe for
// concurrent use.
type Normalizer struct {
	profile *rules.Profile
}

// New returns a Normalizer backed by p. A nil profile behaves like an empty
// one.
func New(p *rules.Profile) *Normalizer {
	if p == nil {
		p = rules.Empty()
	}
	return &Normalizer{profile: p}
}

// Profile returns the profile the normalizer was built with.
func (n *Normalizer) Profile() *rules.Profile { return n.profile }
