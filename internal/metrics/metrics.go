// Package metrics exposes Prometheus instrumentation for the normalization
// pipeline. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks row throughput, per-field changes and enrichment calls.
type Metrics struct {
	RowsProcessed      prometheus.Counter
	FieldChanges       *prometheus.CounterVec
	LocalityZipShaped  prometheus.Counter
	BatchDuration      prometheus.Histogram
	EnrichRequests     *prometheus.CounterVec
	EnrichDuration     prometheus.Histogram
	EnrichCacheLookups *prometheus.CounterVec
	UploadsInFlight    prometheus.Gauge
}

// New registers every collector with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RowsProcessed: f.NewCounter(prometheus.CounterOpts{
			Name: "addrnorm_rows_processed_total",
			Help: "Total number of address rows normalized",
		}),
		FieldChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "addrnorm_field_changes_total",
			Help: "Field values changed or cleared by normalization",
		}, []string{"field", "category"}),
		LocalityZipShaped: f.NewCounter(prometheus.CounterOpts{
			Name: "addrnorm_locality_zip_shaped_total",
			Help: "Locality values rejected because they look like postal codes",
		}),
		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "addrnorm_batch_duration_seconds",
			Help:    "Duration of batch normalization",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		EnrichRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "addrnorm_enrich_requests_total",
			Help: "Enrichment lookups by outcome (ok, unavailable)",
		}, []string{"outcome"}),
		EnrichDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "addrnorm_enrich_duration_seconds",
			Help:    "Duration of enrichment lookups including retries",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		EnrichCacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "addrnorm_enrich_cache_lookups_total",
			Help: "Enrichment cache lookups by result (hit, miss)",
		}, []string{"result"}),
		UploadsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "addrnorm_uploads_in_flight",
			Help: "Batch uploads currently being processed",
		}),
	}
}

// ObserveRow counts one normalized row.
func (m *Metrics) ObserveRow() {
	if m == nil {
		return
	}
	m.RowsProcessed.Inc()
}

// ObserveChange counts a changed or cleared field value.
func (m *Metrics) ObserveChange(field, category string) {
	if m == nil {
		return
	}
	m.FieldChanges.WithLabelValues(field, category).Inc()
}

// ObserveLocalityZipShaped counts a locality dropped by the postal-code
// shape check.
func (m *Metrics) ObserveLocalityZipShaped() {
	if m == nil {
		return
	}
	m.LocalityZipShaped.Inc()
}

// ObserveBatch records a batch duration. Call with time.Now() at the start.
func (m *Metrics) ObserveBatch(start time.Time) {
	if m == nil {
		return
	}
	m.BatchDuration.Observe(time.Since(start).Seconds())
}

// ObserveEnrich records one enrichment lookup.
func (m *Metrics) ObserveEnrich(outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.EnrichRequests.WithLabelValues(outcome).Inc()
	m.EnrichDuration.Observe(time.Since(start).Seconds())
}

// ObserveCache counts an enrichment cache hit or miss.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.EnrichCacheLookups.WithLabelValues(result).Inc()
}

// UploadStarted and UploadFinished track in-flight batch uploads.
func (m *Metrics) UploadStarted() {
	if m == nil {
		return
	}
	m.UploadsInFlight.Inc()
}

func (m *Metrics) UploadFinished() {
	if m == nil {
		return
	}
	m.UploadsInFlight.Dec()
}
