package core

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultMaxValueLen bounds each value shown in a report line.
const DefaultMaxValueLen = 120

// ReportOptions tune report rendering.
type ReportOptions struct {
	// MaxValueLen truncates values (in runes). Zero uses DefaultMaxValueLen.
	MaxValueLen int
	// PerFieldCap limits the lines shown per field. Zero shows all.
	PerFieldCap int
}

// FieldSummary counts a field's changes before sampling.
type FieldSummary struct {
	Field   string `json:"field"`
	Changed int    `json:"changed"`
	Cleared int    `json:"cleared"`
}

// Report is the rendered before/after listing of a batch.
type Report struct {
	lines   []string
	summary []FieldSummary
}

// BuildReport groups changes by field in ReportFields order. Fields that are
// not part of ReportFields are ignored.
func BuildReport(changes []ChangeEntry, opts ReportOptions) *Report {
	maxLen := opts.MaxValueLen
	if maxLen <= 0 {
		maxLen = DefaultMaxValueLen
	}

	byField := make(map[string][]ChangeEntry, len(ReportFields))
	for _, c := range changes {
		byField[c.Field] = append(byField[c.Field], c)
	}

	r := &Report{}
	for _, field := range ReportFields {
		entries := byField[field]
		fs := FieldSummary{Field: field}
		for _, e := range entries {
			if e.Category == CategoryCleared {
				fs.Cleared++
			} else {
				fs.Changed++
			}
		}
		r.summary = append(r.summary, fs)

		if len(entries) == 0 {
			r.lines = append(r.lines, fmt.Sprintf("[%s] no changes", field))
			continue
		}
		for _, i := range SampleIndices(len(entries), opts.PerFieldCap) {
			r.lines = append(r.lines, formatChange(entries[i], maxLen))
		}
	}
	return r
}

// Lines returns the report lines.
func (r *Report) Lines() []string { return r.lines }

// Summary returns per-field counts in report order.
func (r *Report) Summary() []FieldSummary { return r.summary }

// String joins the lines with newlines.
func (r *Report) String() string { return strings.Join(r.lines, "\n") }

func formatChange(e ChangeEntry, maxLen int) string {
	line := fmt.Sprintf("[%s] row %d: %q → %q", e.Field, e.Row+1, clip(e.Before, maxLen), clip(e.After, maxLen))
	if e.Category == CategoryCleared {
		line += " (cleared)"
	}
	return line
}

var newlines = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// clip replaces newlines and truncates s to max runes, marking the cut with
// an ellipsis.
func clip(s string, max int) string {
	s = newlines.Replace(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "…"
}

// SampleIndices picks up to limit indices out of n at a uniform stride. The
// result is sorted and free of duplicates; when rounding makes indices
// collide, the gap is filled with the lowest unused indices. limit <= 0 or
// limit >= n returns every index.
func SampleIndices(n, limit int) []int {
	if n <= 0 {
		return nil
	}
	if limit <= 0 || limit >= n {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}

	seen := make(map[int]bool, limit)
	out := make([]int, 0, limit)
	stride := float64(n-1) / float64(max(limit-1, 1))
	for i := 0; i < limit; i++ {
		idx := int(math.Round(float64(i) * stride))
		if idx >= n {
			idx = n - 1
		}
		if !seen[idx] {
			seen[idx] = true
			out = append(out, idx)
		}
	}
	for i := 0; len(out) < limit && i < n; i++ {
		if !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out
}

// WriteReport writes the report lines followed by a newline.
func WriteReport(w io.Writer, r *Report) error {
	if _, err := io.WriteString(w, r.String()+"\n"); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// SaveReport writes the report to dir/examples_<unix>.txt and returns the
// path.
func SaveReport(dir string, r *Report, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("examples_%d.txt", now.Unix()))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	defer f.Close()

	if err := WriteReport(f, r); err != nil {
		return "", err
	}
	return path, f.Close()
}
