package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/addrnorm/internal/enrich"
	"github.com/JonMunkholm/addrnorm/internal/logging"
	"github.com/JonMunkholm/addrnorm/internal/metrics"
	"github.com/JonMunkholm/addrnorm/internal/normalize"
	"github.com/JonMunkholm/addrnorm/internal/rules"
)

const testProfile = `
countries:
  index:
    US: United States
    GB: United Kingdom
    DE: Germany
zip_patterns:
  US:
    patterns: ['^\d{5}(?:-?\d{4})?$']
    style: us5_4
  GB:
    patterns: ['^[A-Z]{1,2}\d[A-Z\d]? ?\d[A-Z]{2}$']
    style: outward_inward
regions:
  US:
    aliases:
      NY: New York
      "new york": New York
street_abbr:
  latin:
    Street: [st]
    Avenue: [ave]
`

type fakeEnricher struct {
	mu    sync.Mutex
	out   enrich.Outcome
	texts []string
}

func (f *fakeEnricher) Parse(_ context.Context, text string) enrich.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return f.out
}

type fakeChangeLog struct {
	mu      sync.Mutex
	batches []*BatchResult
	err     error
}

func (f *fakeChangeLog) SaveBatch(_ context.Context, b *BatchResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, b)
	return f.err
}

func newTestService(t *testing.T, cfg Config) *Service {
	t.Helper()
	p, err := rules.Parse([]byte(testProfile))
	require.NoError(t, err)
	cfg.Profile = p
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return NewService(cfg)
}

func TestNormalizeRecord(t *testing.T) {
	s := newTestService(t, Config{})

	row := s.NormalizeRecord(context.Background(), RawAddressRecord{
		Country:  "usa",
		Zip:      "10001-1234",
		Region:   "ny",
		Locality: "city of new york",
		Street:   "5th ave.",
		District: "n/a",
	})

	assert.Equal(t, normalize.CountryResult{Name: "United States", ISO2: "US", Source: normalize.SourceISO}, row.Country)
	assert.Equal(t, normalize.ZipResult{Norm: "100011234", Valid: true, Style: "us5_4"}, row.Zip)
	assert.Equal(t, "New York", row.Region)
	assert.Equal(t, "New York", row.Locality)
	assert.Equal(t, "5th Avenue", row.Street)
	assert.Empty(t, row.District)
	assert.Empty(t, row.HouseNumber)
	assert.Equal(t, EnrichSkipped, row.Enrich)
	assert.Equal(t, "5th Avenue, New York, New York, 100011234, United States", row.Addr)
}

func TestNormalizeRecord_CountryInferredFromZip(t *testing.T) {
	s := newTestService(t, Config{})

	row := s.NormalizeRecord(context.Background(), RawAddressRecord{Zip: "sw1a 1aa"})

	assert.Equal(t, normalize.CountryResult{Name: "United Kingdom", ISO2: "GB", Source: normalize.SourceInferredZip}, row.Country)
	assert.Equal(t, "GB", row.Zip.CountryInferred)
	assert.True(t, row.Zip.Valid)
	assert.Equal(t, "SW1A1AA, United Kingdom", row.Addr)
}

func TestNormalizeRecord_ZipShapedLocalityCounted(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	s := newTestService(t, Config{Metrics: m})

	row := s.NormalizeRecord(context.Background(), RawAddressRecord{Locality: "10115"})

	assert.Empty(t, row.Locality)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LocalityZipShaped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RowsProcessed))
}

func TestEnrich_Applied(t *testing.T) {
	fe := &fakeEnricher{out: enrich.Success(enrich.Components{
		{Label: "house_number", Value: "221b"},
		{Label: "road", Value: "baker st"},
		{Label: "city", Value: "london"},
		{Label: "postcode", Value: "nw1 6xe"},
		{Label: "country", Value: "united kingdom"},
	})}
	s := newTestService(t, Config{Enricher: fe})
	rec := RawAddressRecord{Country: "GB", Zip: "NW1 6XE"}

	row := s.NormalizeRecord(context.Background(), rec)
	require.Equal(t, "NW16XE, United Kingdom", row.Addr)

	row = s.Enrich(context.Background(), rec, row)

	assert.Equal(t, []string{"NW16XE, United Kingdom"}, fe.texts)
	assert.Equal(t, EnrichApplied, row.Enrich)
	assert.Equal(t, "Baker Street", row.Street)
	assert.Equal(t, "221b", row.HouseNumber)
	assert.Equal(t, "London", row.Locality)
	assert.Equal(t, normalize.SourceInput, row.Country.Source)
	assert.Equal(t, "Baker Street 221b, London, NW16XE, United Kingdom", row.Addr)
}

func TestEnrich_RejectsValuesThatFailNormalization(t *testing.T) {
	fe := &fakeEnricher{out: enrich.Success(enrich.Components{
		{Label: "road", Value: "12"},
		{Label: "house_number", Value: "7"},
		{Label: "city", Value: "unknown"},
		{Label: "country", Value: "Atlantis"},
	})}
	s := newTestService(t, Config{Enricher: fe})
	rec := RawAddressRecord{Country: "US", Street: "main st", Locality: "Springfield"}

	before := s.NormalizeRecord(context.Background(), rec)
	after := s.Enrich(context.Background(), rec, before)

	assert.Equal(t, EnrichApplied, after.Enrich)
	assert.Equal(t, before.Street, after.Street)
	assert.Empty(t, after.HouseNumber, "house number only follows an accepted road")
	assert.Equal(t, before.Locality, after.Locality)
	assert.Equal(t, before.Country, after.Country)
	assert.Equal(t, before.Addr, after.Addr)
}

func TestEnrich_Unavailable(t *testing.T) {
	fe := &fakeEnricher{out: enrich.Unavailable(&enrich.UnavailableError{Attempts: 2, Err: errors.New("HTTP 503: busy")})}
	s := newTestService(t, Config{Enricher: fe})
	rec := RawAddressRecord{Country: "US", Locality: "Springfield"}

	before := s.NormalizeRecord(context.Background(), rec)
	after := s.Enrich(context.Background(), rec, before)

	assert.Equal(t, EnrichUnavailable, after.Enrich)
	assert.Contains(t, after.EnrichError, "HTTP 503")
	after.Enrich, after.EnrichError = before.Enrich, before.EnrichError
	assert.Equal(t, before, after, "pre-enrichment values are kept")
}

func TestEnrich_TextFallbackAndSkips(t *testing.T) {
	fe := &fakeEnricher{out: enrich.Success(nil)}
	s := newTestService(t, Config{Enricher: fe})

	rec := RawAddressRecord{Address: " 221B Baker St,  London "}
	row := s.Enrich(context.Background(), rec, s.NormalizeRecord(context.Background(), rec))
	assert.Equal(t, []string{"221B Baker St, London"}, fe.texts)
	assert.Equal(t, EnrichApplied, row.Enrich)

	empty := RawAddressRecord{Address: "n/a"}
	row = s.Enrich(context.Background(), empty, s.NormalizeRecord(context.Background(), empty))
	assert.Len(t, fe.texts, 1, "nothing to send")
	assert.Equal(t, EnrichSkipped, row.Enrich)

	noEnricher := newTestService(t, Config{})
	assert.False(t, noEnricher.EnrichmentAvailable())
	row = noEnricher.Enrich(context.Background(), rec, Row{Addr: "x"})
	assert.Equal(t, Row{Addr: "x"}, row)
}

func TestNormalizeBatch(t *testing.T) {
	cl := &fakeChangeLog{}
	m := metrics.New(prometheus.NewRegistry())
	s := newTestService(t, Config{ChangeLog: cl, Metrics: m, Workers: 3})

	records := make([]RawAddressRecord, 20)
	for i := range records {
		records[i] = RawAddressRecord{Country: "US", Zip: fmt.Sprintf("%05d", 10000+i)}
	}
	records[3] = RawAddressRecord{Country: "US", Zip: "123", Locality: "n/a"}

	b, err := s.NormalizeBatch(context.Background(), records, BatchOptions{FileName: "in.csv", Mode: "extended"})
	require.NoError(t, err)

	require.Len(t, b.Rows, 20)
	for i, row := range b.Rows {
		if i == 3 {
			continue
		}
		assert.Equal(t, fmt.Sprintf("%05d", 10000+i), row.Zip.Norm, "row %d keeps input order", i)
	}
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, "in.csv", b.FileName)

	assert.Equal(t, 20, b.Stats.Rows)
	assert.Equal(t, 19, b.Stats.ValidZips)
	assert.Equal(t, 20, b.Stats.CountriesResolved)
	assert.Equal(t, 20, b.Stats.Changes[FieldCountry], "US -> United States")
	assert.Equal(t, 1, b.Stats.Cleared[FieldLocality])

	assert.Contains(t, b.Report.Lines(), `[locality] row 4: "n/a" → "" (cleared)`)
	assert.Contains(t, b.Report.Lines(), "[street] no changes")

	assert.Equal(t, 20.0, testutil.ToFloat64(m.RowsProcessed))
	assert.Equal(t, 20.0, testutil.ToFloat64(m.FieldChanges.WithLabelValues(FieldCountry, string(CategoryChanged))))

	require.Len(t, cl.batches, 1)
	assert.Same(t, b, cl.batches[0])

	got, err := s.Batch(b.ID)
	require.NoError(t, err)
	assert.Same(t, b, got)
}

func TestNormalizeBatch_EnrichmentFailuresStayPerRow(t *testing.T) {
	fe := &fakeEnricher{out: enrich.Unavailable(&enrich.UnavailableError{Attempts: 1, Err: errors.New("refused")})}
	s := newTestService(t, Config{Enricher: fe})

	records := []RawAddressRecord{{Country: "US"}, {Country: "DE"}, {}}
	b, err := s.NormalizeBatch(context.Background(), records, BatchOptions{Enrich: true})
	require.NoError(t, err)

	assert.Equal(t, 2, b.Stats.EnrichUnavailable)
	assert.Equal(t, EnrichSkipped, b.Rows[2].Enrich, "empty row has nothing to send")
	assert.Equal(t, "United States", b.Rows[0].Addr)
}

func TestNormalizeBatch_ChangeLogFailureDoesNotFailBatch(t *testing.T) {
	s := newTestService(t, Config{ChangeLog: &fakeChangeLog{err: errors.New("connection refused")}})

	b, err := s.NormalizeBatch(context.Background(), []RawAddressRecord{{Zip: "10001"}}, BatchOptions{})
	require.NoError(t, err)
	_, err = s.Batch(b.ID)
	assert.NoError(t, err)
}

func TestNormalizeBatch_Cancelled(t *testing.T) {
	s := newTestService(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.NormalizeBatch(ctx, []RawAddressRecord{{Zip: "10001"}}, BatchOptions{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.Batches())
}

func TestBatchRegistry(t *testing.T) {
	s := newTestService(t, Config{BatchHistory: 2})

	var ids []string
	for i := 0; i < 3; i++ {
		b, err := s.NormalizeBatch(context.Background(), nil, BatchOptions{})
		require.NoError(t, err)
		ids = append(ids, b.ID)
	}

	_, err := s.Batch(ids[0])
	assert.ErrorIs(t, err, ErrBatchNotFound, "oldest evicted")

	list := s.Batches()
	require.Len(t, list, 2)
	assert.Equal(t, ids[2], list[0].ID)
	assert.Equal(t, ids[1], list[1].ID)
}
