package table

import (
	"fmt"

	"github.com/JonMunkholm/addrnorm/internal/core"
)

// Mode selects the output columns.
type Mode string

const (
	// ModeAddrOnly keeps every input column and appends country_norm and addr_norm.
	ModeAddrOnly Mode = "addr-only"
	// ModeExtended emits only the normalized fields.
	ModeExtended Mode = "extended"
)

// ExtendedColumns is the fixed header of ModeExtended output.
var ExtendedColumns = []string{
	"street", "locality_norm", "district_norm", "region_norm", "zip_norm", "country_norm", "addr_norm",
}

// ParseMode accepts "addr-only" and "extended". An empty string selects
// ModeAddrOnly.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAddrOnly:
		return ModeAddrOnly, nil
	case ModeExtended:
		return ModeExtended, nil
	}
	return "", fmt.Errorf("unknown output mode %q", s)
}

// Output builds the output table for rows, which must align with in.Rows.
func Output(in *Table, rows []core.Row, mode Mode) (*Table, error) {
	if len(rows) != in.Len() {
		return nil, fmt.Errorf("output: %d rows for %d input rows", len(rows), in.Len())
	}

	switch mode {
	case ModeExtended:
		out := &Table{Header: append([]string(nil), ExtendedColumns...), Rows: make([][]string, len(rows))}
		for i, r := range rows {
			out.Rows[i] = []string{
				r.StreetLine(), r.Locality, r.District, r.Region, r.Zip.Norm, r.Country.Name, r.Addr,
			}
		}
		return out, nil

	case ModeAddrOnly, "":
		width := len(in.Header)
		header := make([]string, 0, width+2)
		header = append(header, in.Header...)
		header = append(header, "country_norm", "addr_norm")

		out := &Table{Header: header, Rows: make([][]string, len(rows))}
		for i, r := range rows {
			row := make([]string, width, width+2)
			copy(row, in.Rows[i])
			out.Rows[i] = append(row, r.Country.Name, r.Addr)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown output mode %q", mode)
}
