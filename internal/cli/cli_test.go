package cli

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/addrnorm/internal/rules"
	"github.com/JonMunkholm/addrnorm/internal/table"
)

const testProfile = `
countries:
  index:
    US: United States
    DE: Germany
zip_patterns:
  US:
    patterns: ['^\d{5}$']
street_abbr:
  latin:
    Street: [st]
`

func setup(t *testing.T, input string) (profile, in string) {
	t.Helper()
	dir := t.TempDir()
	profile = filepath.Join(dir, "profile.yaml")
	in = filepath.Join(dir, "input.csv")
	require.NoError(t, os.WriteFile(profile, []byte(testProfile), 0o644))
	require.NoError(t, os.WriteFile(in, []byte(input), 0o644))
	return profile, in
}

func run(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func readCSV(t *testing.T, s string) [][]string {
	t.Helper()
	recs, err := csv.NewReader(strings.NewReader(s)).ReadAll()
	require.NoError(t, err)
	return recs
}

func TestNormalize_ExtendedToStdout(t *testing.T) {
	profile, in := setup(t, "Country,ZIP,Street\nusa,10001,main st\nGermany,,\n")

	stdout, stderr, err := run(t, "normalize", "--in", in, "--profile", profile, "--mode", "extended")
	require.NoError(t, err)

	recs := readCSV(t, stdout)
	require.Len(t, recs, 3)
	assert.Equal(t, table.ExtendedColumns, recs[0])
	assert.Equal(t, []string{"Main Street", "", "", "", "10001", "United States", "Main Street, 10001, United States"}, recs[1])
	assert.Equal(t, "Germany", recs[2][5])

	assert.Contains(t, stderr, "Rows:     2")
	assert.Contains(t, stderr, "country:")
}

func TestNormalize_AddrOnlyKeepsInputColumns(t *testing.T) {
	profile, in := setup(t, "id,country,zip\n7,US,10001\n")

	stdout, _, err := run(t, "normalize", "-i", in, "--profile", profile)
	require.NoError(t, err)

	recs := readCSV(t, stdout)
	assert.Equal(t, []string{"id", "country", "zip", "country_norm", "addr_norm"}, recs[0])
	assert.Equal(t, []string{"7", "US", "10001", "United States", "10001, United States"}, recs[1])
}

func TestNormalize_XLSXAndReportFile(t *testing.T) {
	profile, in := setup(t, "country,zip\nusa,10001\nusa,10002\nusa,10003\n")
	dir := t.TempDir()
	out := filepath.Join(dir, "out.xlsx")
	report := filepath.Join(dir, "report.txt")

	stdout, _, err := run(t, "normalize", "--in", in, "--profile", profile,
		"--out", out, "--report", report, "--cap", "2")
	require.NoError(t, err)
	assert.Empty(t, stdout)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	got, err := table.Read(out, f)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Len())
	assert.Equal(t, "United States", got.Cell(2, "country_norm"))

	data, err := os.ReadFile(report)
	require.NoError(t, err)
	text := string(data)
	assert.Equal(t, 2, strings.Count(text, "[country] row"), "capped per field")
	assert.Contains(t, text, `"usa" → "United States"`)
	assert.Contains(t, text, "[street] no changes")
}

func TestNormalize_ReportDir(t *testing.T) {
	profile, in := setup(t, "country\nusa\n")
	dir := filepath.Join(t.TempDir(), "reports")

	_, stderr, err := run(t, "normalize", "--in", in, "--profile", profile, "--report-dir", dir)
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(dir, "examples_*.txt"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Contains(t, stderr, "report: "+matches[0])
}

func TestNormalize_Enrich(t *testing.T) {
	parser := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"label":"road","value":"main st"},{"label":"country","value":"de"}]`))
	}))
	defer parser.Close()

	profile, in := setup(t, "address\nsomewhere in germany\n")

	stdout, stderr, err := run(t, "normalize", "--in", in, "--profile", profile,
		"--mode", "extended", "--enrich", "--enrich-url", parser.URL)
	require.NoError(t, err)

	recs := readCSV(t, stdout)
	assert.Equal(t, "Main Street", recs[1][0])
	assert.Equal(t, "Germany", recs[1][5])
	assert.Contains(t, stderr, "Enriched: 1 (0 unavailable)")
}

func TestNormalize_Errors(t *testing.T) {
	profile, in := setup(t, "country\nusa\n")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing input flag", []string{"normalize"}, `required flag(s) "in" not set`},
		{"missing file", []string{"normalize", "--in", filepath.Join(t.TempDir(), "nope.csv")}, "open input"},
		{"bad mode", []string{"normalize", "--in", in, "--profile", profile, "--mode", "wide"}, "OUTPUT_MODE"},
		{"report flags exclusive", []string{"normalize", "--in", in, "--report", "a", "--report-dir", "b"}, "none of the others can be"},
		{"enrich without url", []string{"normalize", "--in", in, "--enrich", "--enrich-url", ""}, "ENRICH_URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNormalize_NoAddressColumnsReadAsEmpty(t *testing.T) {
	profile, in := setup(t, "name\nx\n")

	stdout, stderr, err := run(t, "normalize", "--in", in, "--profile", profile)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"name", "country_norm", "addr_norm"}, {"x", "", ""}}, readCSV(t, stdout))
	assert.Contains(t, stderr, "no address columns")
	assert.Contains(t, stderr, "Rows:     1")
}

func TestProfile(t *testing.T) {
	profile, _ := setup(t, "")

	stdout, _, err := run(t, "profile", "--path", profile)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Profile:       "+profile)
	assert.Contains(t, stdout, "Loaded:        true")
	assert.Contains(t, stdout, "Countries:     2 (0 aliases)")
	assert.Contains(t, stdout, "Abbreviations: 1 latin, 0 cyrillic")

	stdout, _, err = run(t, "profile", "--path", profile, "--format", "json")
	require.NoError(t, err)
	var st rules.Stats
	require.NoError(t, json.Unmarshal([]byte(stdout), &st))
	assert.True(t, st.Loaded)
	assert.Equal(t, 1, st.ZipCountries)

	_, _, err = run(t, "profile", "--format", "yaml")
	assert.ErrorContains(t, err, "unsupported format")
}
