// Package table reads address tables from CSV or XLSX uploads and writes the
// normalized output table.
package table

import (
	"errors"
	"strings"

	"github.com/JonMunkholm/addrnorm/internal/core"
)

var (
	// ErrEmptyFile is returned when the input has no header row.
	ErrEmptyFile = errors.New("empty file")
	// ErrUnsupportedFormat is returned for file extensions other than .csv and .xlsx.
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// Recognized input columns.
const (
	ColAddress  = "address"
	ColZip      = "zip"
	ColCountry  = "country"
	ColRegion   = "region"
	ColDistrict = "district"
	ColLocality = "locality"
	ColStreet   = "street"
)

// InputColumns lists the recognized input columns.
var InputColumns = []string{ColAddress, ColZip, ColCountry, ColRegion, ColDistrict, ColLocality, ColStreet}

// Table is a header row plus data rows. Rows may be ragged; missing cells
// read as "".
type Table struct {
	Header []string
	Rows   [][]string
	// Bytes is the size of the decoded input, when known.
	Bytes int64

	index map[string]int
}

// New builds a table from a raw header and rows. Header names are cleaned;
// for duplicate names the first column wins.
func New(header []string, rows [][]string) *Table {
	t := &Table{Header: make([]string, len(header)), Rows: rows, index: make(map[string]int, len(header))}
	for i, h := range header {
		name := CleanHeader(h)
		t.Header[i] = name
		if _, dup := t.index[name]; !dup && name != "" {
			t.index[name] = i
		}
	}
	return t
}

// CleanHeader trims a header cell, strips an Excel formula prefix and
// surrounding quotes, and lowercases it.
func CleanHeader(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) && len(s) >= 3 {
		s = s[2 : len(s)-1]
	} else {
		s = strings.TrimPrefix(s, "=")
	}
	s = strings.Trim(s, `"'`)
	return strings.ToLower(strings.TrimSpace(s))
}

// Has reports whether the table has the named column.
func (t *Table) Has(col string) bool {
	_, ok := t.index[col]
	return ok
}

// Cell returns row i of the named column, or "" when absent.
func (t *Table) Cell(i int, col string) string {
	j, ok := t.index[col]
	if !ok || i < 0 || i >= len(t.Rows) || j >= len(t.Rows[i]) {
		return ""
	}
	return t.Rows[i][j]
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// AddressColumns returns the recognized input columns present in the header.
func (t *Table) AddressColumns() []string {
	var cols []string
	for _, c := range InputColumns {
		if t.Has(c) {
			cols = append(cols, c)
		}
	}
	return cols
}

// Records maps the recognized columns onto one RawAddressRecord per row. A
// missing column reads as empty in every record.
func (t *Table) Records() []core.RawAddressRecord {
	out := make([]core.RawAddressRecord, len(t.Rows))
	for i := range t.Rows {
		out[i] = core.RawAddressRecord{
			Address:  t.Cell(i, ColAddress),
			Zip:      t.Cell(i, ColZip),
			Country:  t.Cell(i, ColCountry),
			Region:   t.Cell(i, ColRegion),
			District: t.Cell(i, ColDistrict),
			Locality: t.Cell(i, ColLocality),
			Street:   t.Cell(i, ColStreet),
		}
	}
	return out
}
