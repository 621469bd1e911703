package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/addrnorm/internal/enrich"
	"github.com/JonMunkholm/addrnorm/internal/logging"
	"github.com/JonMunkholm/addrnorm/internal/metrics"
	"github.com/JonMunkholm/addrnorm/internal/normalize"
	"github.com/JonMunkholm/addrnorm/internal/rules"
	"github.com/JonMunkholm/addrnorm/internal/textnorm"
)

// DefaultWorkers is the batch fan-out when Config.Workers is zero.
const DefaultWorkers = 4

// Enricher parses an assembled address string. *enrich.Client satisfies it.
type Enricher interface {
	Parse(ctx context.Context, text string) enrich.Outcome
}

// ChangeLog persists finished batches. *store.Store satisfies it.
type ChangeLog interface {
	SaveBatch(ctx context.Context, b *BatchResult) error
}

// Config wires a Service. Only Profile is required; a nil Enricher disables
// enrichment and a nil ChangeLog disables persistence.
type Config struct {
	Profile      *rules.Profile
	Enricher     Enricher
	ChangeLog    ChangeLog
	Metrics      *metrics.Metrics
	Workers      int
	BatchHistory int
	Logger       *slog.Logger
}

// Service runs the normalization pipeline. It is safe for concurrent use.
type Service struct {
	norm     *normalize.Normalizer
	enricher Enricher
	changes  ChangeLog
	metrics  *metrics.Metrics
	workers  int
	batches  *batchRegistry
	log      *slog.Logger
}

// NewService builds a Service from cfg.
func NewService(cfg Config) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		norm:     normalize.New(cfg.Profile),
		enricher: cfg.Enricher,
		changes:  cfg.ChangeLog,
		metrics:  cfg.Metrics,
		workers:  cfg.Workers,
		batches:  newBatchRegistry(cfg.BatchHistory),
		log:      cfg.Logger,
	}
}

// Profile returns the rule profile in use.
func (s *Service) Profile() *rules.Profile { return s.norm.Profile() }

// EnrichmentAvailable reports whether an enricher is configured.
func (s *Service) EnrichmentAvailable() bool { return s.enricher != nil }

// NormalizeRecord runs the base pipeline for one record. It does not call
// the enricher.
func (s *Service) NormalizeRecord(_ context.Context, rec RawAddressRecord) Row {
	n := s.norm

	// A country that resolves on its own drives ZIP validation; otherwise
	// the ZIP may infer the country.
	pre := n.Country(rec.Country, "")
	zip := n.Zip(pre.ISO2, rec.Zip)
	country := n.Country(rec.Country, zip.CountryInferred)

	locality, verdict := n.LocalityDetail(rec.Locality, country.ISO2, country.Name)
	if verdict == normalize.LocalityZipShaped {
		s.metrics.ObserveLocalityZipShaped()
	}

	row := Row{
		Street:   n.Street(rec.Street),
		Locality: locality,
		District: textnorm.Clean(rec.District),
		Region:   n.Region(rec.Region, country.ISO2, country.Name),
		Country:  country,
		Zip:      zip,
		Enrich:   EnrichSkipped,
	}
	row.Addr = normalize.Assemble(row.parts())
	s.metrics.ObserveRow()
	return row
}

// Enrich sends the row's assembled address (or the record's free-text
// address when nothing was assembled) to the enricher and reconciles the
// answer. On an unavailable outcome the row is returned unchanged apart from
// its Enrich status.
func (s *Service) Enrich(ctx context.Context, rec RawAddressRecord, row Row) Row {
	if s.enricher == nil {
		return row
	}
	text := row.Addr
	if text == "" {
		text = textnorm.Clean(rec.Address)
	}
	if text == "" {
		return row
	}

	out := s.enricher.Parse(ctx, text)
	comps, ok := out.Components()
	if !ok {
		row.Enrich = EnrichUnavailable
		row.EnrichError = out.Err().Error()
		logging.With(ctx, s.log).Debug("enrichment unavailable", "error", out.Err())
		return row
	}
	row = s.reconcile(row, comps)
	row.Enrich = EnrichApplied
	return row
}

// reconcile overwrites a field only when the parser supplied a value that
// survives the field's normalizer.
func (s *Service) reconcile(row Row, comps enrich.Components) Row {
	n := s.norm

	if v := comps.Country(); v != "" {
		if c := n.Country(v, ""); c.Source != normalize.SourceUnknown {
			row.Country = c
		}
	}
	if v := comps.Postcode(); v != "" {
		if z := n.Zip(row.Country.ISO2, v); z.Norm != "" {
			row.Zip = z
		}
	}
	if v := comps.Region(); v != "" {
		if r := n.Region(v, row.Country.ISO2, row.Country.Name); r != "" {
			row.Region = r
		}
	}
	if v := comps.Locality(); v != "" {
		if l := n.Locality(v, row.Country.ISO2, row.Country.Name); l != "" {
			row.Locality = l
		}
	}
	if v := comps.Road(); v != "" {
		if st := n.Street(v); st != "" {
			row.Street = st
			if h := textnorm.Clean(comps.HouseNumber()); h != "" {
				row.HouseNumber = h
			}
		}
	}

	row.Addr = normalize.Assemble(row.parts())
	return row
}

// NormalizeBatch normalizes records across the configured workers, keeping
// input order. Enrichment failures stay scoped to their row; only
// cancellation of ctx aborts the batch.
func (s *Service) NormalizeBatch(ctx context.Context, records []RawAddressRecord, opts BatchOptions) (*BatchResult, error) {
	start := time.Now()
	defer s.metrics.ObserveBatch(start)

	rows := make([]Row, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i := range records {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			row := s.NormalizeRecord(gctx, records[i])
			if opts.Enrich {
				row = s.Enrich(gctx, records[i], row)
			}
			rows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("normalize batch: %w", err)
	}
	// errgroup only reports errors from workers that ran
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("normalize batch: %w", err)
	}

	changes := TrackChanges(records, rows)
	for _, c := range changes {
		s.metrics.ObserveChange(c.Field, string(c.Category))
	}

	b := &BatchResult{
		ID:        uuid.NewString(),
		FileName:  opts.FileName,
		Mode:      opts.Mode,
		Rows:      rows,
		Changes:   changes,
		Report:    BuildReport(changes, opts.Report),
		Stats:     batchStats(rows, changes),
		Duration:  time.Since(start),
		CreatedAt: start.UTC(),
		SourceIP:  IPAddressFromContext(ctx),
		UserAgent: UserAgentFromContext(ctx),
	}

	log := logging.With(ctx, s.log)
	if s.changes != nil {
		if err := s.changes.SaveBatch(ctx, b); err != nil {
			log.Error("persist batch failed", "batch_id", b.ID, "error", err)
		}
	}
	s.batches.put(b)

	log.Info("batch normalized",
		"batch_id", b.ID,
		"rows", b.Stats.Rows,
		"enriched", b.Stats.Enriched,
		"enrich_unavailable", b.Stats.EnrichUnavailable,
		"changes", len(changes),
		"duration_ms", b.Duration.Milliseconds(),
	)
	return b, nil
}

// Batch returns a recent batch by id.
func (s *Service) Batch(id string) (*BatchResult, error) {
	b, ok := s.batches.get(id)
	if !ok {
		return nil, ErrBatchNotFound
	}
	return b, nil
}

// Batches returns the batches still held in memory, newest first.
func (s *Service) Batches() []*BatchResult {
	return s.batches.list()
}

func batchStats(rows []Row, changes []ChangeEntry) BatchStats {
	st := BatchStats{
		Rows:    len(rows),
		Changes: map[string]int{},
		Cleared: map[string]int{},
	}
	for _, r := range rows {
		switch r.Enrich {
		case EnrichApplied:
			st.Enriched++
		case EnrichUnavailable:
			st.EnrichUnavailable++
		}
		if r.Zip.Valid {
			st.ValidZips++
		}
		if r.Country.Name != "" {
			st.CountriesResolved++
		}
	}
	for _, c := range changes {
		if c.Category == CategoryCleared {
			st.Cleared[c.Field]++
		} else {
			st.Changes[c.Field]++
		}
	}
	return st
}
