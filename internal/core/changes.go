package core

// ChangeCategory classifies a before/after difference.
type ChangeCategory string

const (
	CategoryChanged ChangeCategory = "changed"
	CategoryCleared ChangeCategory = "cleared"
)

// ChangeEntry is one differing value in a batch. Row is zero-based.
type ChangeEntry struct {
	Field    string         `json:"field"`
	Row      int            `json:"row"`
	Before   string         `json:"before"`
	After    string         `json:"after"`
	Category ChangeCategory `json:"category"`
}

// Diff compares aligned before/after values for one field. Positions past
// the shorter slice compare against "".
func Diff(field string, before, after []string) []ChangeEntry {
	n := len(before)
	if len(after) > n {
		n = len(after)
	}

	var out []ChangeEntry
	for i := 0; i < n; i++ {
		b, a := at(before, i), at(after, i)
		if b == a {
			continue
		}
		cat := CategoryChanged
		if a == "" && b != "" {
			cat = CategoryCleared
		}
		out = append(out, ChangeEntry{Field: field, Row: i, Before: b, After: a, Category: cat})
	}
	return out
}

// TrackChanges diffs every report field of records against rows, in
// ReportFields order.
func TrackChanges(records []RawAddressRecord, rows []Row) []ChangeEntry {
	var out []ChangeEntry
	for _, field := range ReportFields {
		before := make([]string, len(records))
		for i, rec := range records {
			before[i] = rec.Value(field)
		}
		after := make([]string, len(rows))
		for i, row := range rows {
			after[i] = row.Value(field)
		}
		out = append(out, Diff(field, before, after)...)
	}
	return out
}

func at(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}
