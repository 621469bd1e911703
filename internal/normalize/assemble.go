package normalize

import (
	"strings"

	"github.com/JonMunkholm/addrnorm/internal/textnorm"
)

// Parts are the canonical fields joined by Assemble.
type Parts struct {
	Street      string
	HouseNumber string
	Locality    string
	Region      string
	District    string
	Zip         string
	Country     string
}

// Assemble joins the non-empty fields as
// "street house, locality, region, district, zip, country". Empty and
// garbage components are skipped.
func Assemble(p Parts) string {
	street := strings.TrimSpace(p.Street + " " + p.HouseNumber)
	return joinNonEmpty(street, p.Locality, p.Region, p.District, p.Zip, p.Country)
}

func joinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, s := range parts {
		if s = textnorm.Clean(s); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, ", ")
}
