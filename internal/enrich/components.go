package enrich

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Component is one labeled piece of a parsed address.
type Component struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Components is the parser output for one address string.
type Components []Component

// Label priority lists, most specific first.
var (
	RoadLabels = []string{
		"road", "pedestrian", "footway", "path", "residential", "highway",
		"street", "street_name", "route", "cycleway", "service",
		"unclassified", "primary", "secondary", "tertiary", "living_street",
	}
	HouseNumberLabels = []string{"house_number", "house"}
	LocalityLabels    = []string{
		"city", "town", "village", "suburb", "hamlet",
		"city_district", "neighbourhood", "municipality",
	}
	RegionLabels   = []string{"state", "state_district", "province", "region", "island"}
	PostcodeLabels = []string{"postcode", "postal_code", "zip"}
	CountryLabels  = []string{"country", "country_name", "country_code"}
)

// First returns the trimmed value of the first component whose label is
// earliest in labels and whose value is non-empty.
func (c Components) First(labels ...string) string {
	for _, l := range labels {
		for _, comp := range c {
			if comp.Label != l {
				continue
			}
			if v := strings.TrimSpace(comp.Value); v != "" {
				return v
			}
		}
	}
	return ""
}

func (c Components) Road() string        { return c.First(RoadLabels...) }
func (c Components) HouseNumber() string { return c.First(HouseNumberLabels...) }
func (c Components) Locality() string    { return c.First(LocalityLabels...) }
func (c Components) Region() string      { return c.First(RegionLabels...) }
func (c Components) Postcode() string    { return c.First(PostcodeLabels...) }
func (c Components) Country() string     { return c.First(CountryLabels...) }

// Street returns the road joined with the house number, if both exist.
func (c Components) Street() string {
	road := c.Road()
	if road == "" {
		return ""
	}
	return strings.TrimSpace(road + " " + c.HouseNumber())
}

// decodeComponents accepts either a bare array of {label, value} objects or
// an object with a "components" array. Any other shape yields no components.
// Items without both keys are skipped.
func decodeComponents(body []byte) (Components, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case map[string]any:
		list, ok := v["components"].([]any)
		if !ok {
			return nil, nil
		}
		items = list
	default:
		return nil, nil
	}

	out := make(Components, 0, len(items))
	for _, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			continue
		}
		label, okL := obj["label"]
		value, okV := obj["value"]
		if !okL || !okV {
			continue
		}
		out = append(out, Component{Label: stringify(label), Value: stringify(value)})
	}
	return out, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
