package rules

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultProfilePath is the profile location relative to a project root.
const DefaultProfilePath = "configs/geo_profile.yaml"

// DefaultStreetAbbrFile is looked up next to the resolved profile when no
// explicit street-abbreviation path is configured.
const DefaultStreetAbbrFile = "street_abbr.yaml"

// DefaultSearchDepth bounds the ancestor-directory search.
const DefaultSearchDepth = 5

// Options control profile resolution. Zero values fall back to the process
// working directory, the executable's directory and DefaultSearchDepth.
type Options struct {
	// OverridePath wins over every other location when the file exists.
	OverridePath string
	// StreetAbbrPath overrides the sibling street_abbr.yaml lookup.
	StreetAbbrPath string
	WorkDir        string
	ExecDir        string
	SearchDepth    int
	Logger         *slog.Logger
}

// Load resolves and parses the rule profile. It never fails: a missing file
// or a malformed document yields an empty profile and a warning.
func Load(opts Options) *Profile {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	path, ok := Resolve(opts)
	if !ok {
		log.Warn("rule profile not found; normalizers will pass values through",
			"default", DefaultProfilePath,
			"override", opts.OverridePath)
		return Empty()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("rule profile unreadable", "path", path, "error", err)
		p := Empty()
		p.path = path
		return p
	}

	p, err := parse(data, log)
	if err != nil {
		log.Warn("rule profile malformed; using empty tables", "path", path, "error", err)
		p = Empty()
		p.path = path
		return p
	}
	p.path = path
	p.loaded = true

	abbrPath := opts.StreetAbbrPath
	if abbrPath == "" {
		abbrPath = filepath.Join(filepath.Dir(path), DefaultStreetAbbrFile)
	}
	if abbr, err := os.ReadFile(abbrPath); err == nil {
		if err := p.parseStreetAbbr(abbr); err != nil {
			log.Warn("street abbreviations malformed", "path", abbrPath, "error", err)
		} else {
			p.streetPath = abbrPath
		}
	} else if opts.StreetAbbrPath != "" {
		log.Warn("street abbreviations unreadable", "path", abbrPath, "error", err)
	}

	log.Info("rule profile loaded",
		"path", p.path,
		"countries", len(p.countryIndex),
		"zipCountries", len(p.zipRules),
		"streetAbbr", p.streetPath)
	return p
}

// Parse builds a profile from an in-memory document. Street abbreviations may
// be embedded under a top-level "street_abbr" key.
func Parse(data []byte) (*Profile, error) {
	p, err := parse(data, slog.Default())
	if err != nil {
		return nil, err
	}
	p.loaded = true
	return p, nil
}

// Resolve returns the first existing profile location: the override path,
// DefaultProfilePath under the working directory, then DefaultProfilePath
// under each ancestor (up to SearchDepth levels) of the executable's
// directory and of the working directory.
func Resolve(opts Options) (string, bool) {
	if opts.OverridePath != "" {
		if fileExists(opts.OverridePath) {
			return opts.OverridePath, true
		}
	}

	wd := opts.WorkDir
	if wd == "" {
		wd, _ = os.Getwd()
	}
	exe := opts.ExecDir
	if exe == "" {
		if p, err := os.Executable(); err == nil {
			exe = filepath.Dir(p)
		}
	}
	depth := opts.SearchDepth
	if depth <= 0 {
		depth = DefaultSearchDepth
	}

	if wd != "" {
		if p := filepath.Join(wd, DefaultProfilePath); fileExists(p) {
			return p, true
		}
	}
	for _, start := range []string{exe, wd} {
		if p, ok := searchUp(start, depth); ok {
			return p, true
		}
	}
	return "", false
}

func searchUp(start string, depth int) (string, bool) {
	if start == "" {
		return "", false
	}
	cur, err := filepath.Abs(start)
	if err != nil {
		return "", false
	}
	cur = filepath.Clean(cur)
	for i := 0; i <= depth; i++ {
		if p := filepath.Join(cur, DefaultProfilePath); fileExists(p) {
			return p, true
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}
	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

var errNotMapping = errors.New("document root is not a mapping")

func parse(data []byte, log *slog.Logger) (*Profile, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	p := Empty()
	if doc.Kind == 0 {
		// empty document
		return p, nil
	}
	root := documentRoot(&doc)
	if root == nil || root.Kind != yaml.MappingNode {
		return nil, errNotMapping
	}

	countries := child(root, "countries")
	eachPair(child(countries, "index"), func(k, v *yaml.Node) {
		code := strings.ToUpper(strings.TrimSpace(k.Value))
		name := scalar(v)
		if code == "" || name == "" {
			return
		}
		if _, dup := p.countryIndex[code]; !dup {
			p.countryOrder = append(p.countryOrder, code)
		}
		p.countryIndex[code] = name
	})
	eachPair(child(countries, "aliases"), func(k, v *yaml.Node) {
		alias := strings.ToLower(strings.TrimSpace(k.Value))
		name := scalar(v)
		if alias != "" && name != "" {
			p.countryAliases[alias] = name
		}
	})

	eachPair(child(root, "zip_patterns"), func(k, v *yaml.Node) {
		code := strings.ToUpper(strings.TrimSpace(k.Value))
		if code == "" || v.Kind != yaml.MappingNode {
			return
		}
		rule := ZipRule{Country: code, Style: scalar(child(v, "style"))}
		for _, pat := range scalars(child(v, "patterns")) {
			re, err := compilePattern(pat)
			if err != nil {
				log.Warn("skipping invalid zip pattern", "country", code, "pattern", pat, "error", err)
				continue
			}
			rule.Patterns = append(rule.Patterns, re)
		}
		if i, dup := p.zipByCountry[code]; dup {
			p.zipRules[i] = rule
			return
		}
		p.zipByCountry[code] = len(p.zipRules)
		p.zipRules = append(p.zipRules, rule)
	})

	eachPair(child(root, "regions"), func(k, v *yaml.Node) {
		code := strings.ToUpper(strings.TrimSpace(k.Value))
		if code == "" {
			return
		}
		table := map[string]string{}
		eachPair(child(v, "aliases"), func(ak, av *yaml.Node) {
			key := RegionKey(strings.TrimSpace(ak.Value))
			name := scalar(av)
			if key != "" && name != "" {
				table[key] = name
			}
		})
		if len(table) > 0 {
			p.regionAliases[code] = table
		}
	})

	if abbr := child(root, "street_abbr"); abbr != nil {
		p.setStreetAbbr(abbr)
	}
	return p, nil
}

// parseStreetAbbr reads a standalone street-abbreviation document and
// replaces any embedded table.
func (p *Profile) parseStreetAbbr(data []byte) error {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode yaml: %w", err)
	}
	if doc.Kind == 0 {
		return nil
	}
	root := documentRoot(&doc)
	if root == nil || root.Kind != yaml.MappingNode {
		return errNotMapping
	}
	p.setStreetAbbr(root)
	return nil
}

func (p *Profile) setStreetAbbr(root *yaml.Node) {
	p.streetAbbr = map[Script]AbbrTable{
		ScriptLatin:    abbrTable(child(root, "latin")),
		ScriptCyrillic: abbrTable(child(root, "cyrillic")),
	}
	p.streetMerged = mergeAbbr(p.streetAbbr[ScriptLatin], p.streetAbbr[ScriptCyrillic])
}

func abbrTable(group *yaml.Node) AbbrTable {
	m := map[string]string{}
	eachPair(group, func(k, v *yaml.Node) {
		canon := strings.TrimSpace(k.Value)
		if canon == "" {
			return
		}
		for _, alias := range scalars(v) {
			if key := AbbrKey(alias); key != "" {
				m[key] = canon
			}
		}
	})
	return AbbrTable{m: m}
}

// compilePattern anchors p at the start of the input and makes it
// case-insensitive.
func compilePattern(p string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)^(?:` + p + `)`)
}

func documentRoot(doc *yaml.Node) *yaml.Node {
	if doc.Kind == yaml.DocumentNode {
		if len(doc.Content) == 0 {
			return nil
		}
		return doc.Content[0]
	}
	return doc
}

// child returns the value node for key in mapping n, or nil.
func child(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

// eachPair calls fn for every key/value pair of mapping n in document order.
// Non-mapping nodes are ignored.
func eachPair(n *yaml.Node, fn func(k, v *yaml.Node)) {
	if n == nil || n.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		fn(n.Content[i], n.Content[i+1])
	}
}

func scalar(n *yaml.Node) string {
	if n == nil || n.Kind != yaml.ScalarNode || n.Tag == "!!null" {
		return ""
	}
	return strings.TrimSpace(n.Value)
}

// scalars returns the scalar items of a sequence node. A lone scalar is
// treated as a one-element list.
func scalars(n *yaml.Node) []string {
	if n == nil {
		return nil
	}
	if n.Kind == yaml.ScalarNode {
		if s := scalar(n); s != "" {
			return []string{s}
		}
		return nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil
	}
	out := make([]string, 0, len(n.Content))
	for _, item := range n.Content {
		if s := scalar(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
