package enrich

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/addrnorm/internal/metrics"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestParse_ArrayShape(t *testing.T) {
	srv, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/parse", r.URL.Path)
		assert.Equal(t, "5 main st springfield", r.URL.Query().Get("text"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"label":"house_number","value":"5"},{"label":"road","value":"main st"},{"label":"city","value":"springfield"},{"value":"orphan"}]`)
	})

	c := NewClient(Config{BaseURL: srv.URL + "/", Logger: quiet()})
	out := c.Parse(context.Background(), "  5 main st springfield ")

	comps, ok := out.Components()
	require.True(t, ok)
	require.NoError(t, out.Err())
	assert.Len(t, comps, 3, "items without a label are skipped")
	assert.Equal(t, "main st 5", comps.Street())
	assert.Equal(t, "springfield", comps.Locality())
	assert.Equal(t, int32(1), calls.Load())
}

func TestParse_ComponentsObjectShape(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"components":[{"label":"state","value":"ny"},{"label":"postcode","value":10001}]}`)
	})

	out := NewClient(Config{BaseURL: srv.URL, Logger: quiet()}).Parse(context.Background(), "x")
	comps, ok := out.Components()
	require.True(t, ok)
	assert.Equal(t, "ny", comps.Region())
	assert.Equal(t, "10001", comps.Postcode())
}

func TestParse_UnknownShapeYieldsNoComponents(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"result":"ok"}`)
	})

	out := NewClient(Config{BaseURL: srv.URL, Logger: quiet()}).Parse(context.Background(), "x")
	comps, ok := out.Components()
	assert.True(t, ok)
	assert.Empty(t, comps)
}

func TestParse_EmptyTextSkipsRequest(t *testing.T) {
	srv, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})

	out := NewClient(Config{BaseURL: srv.URL, Logger: quiet()}).Parse(context.Background(), "   ")
	comps, ok := out.Components()
	assert.True(t, ok)
	assert.Empty(t, comps)
	assert.Equal(t, int32(0), calls.Load())
}

func TestParse_RetriesThenUnavailable(t *testing.T) {
	srv, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	m := metrics.New(prometheus.NewRegistry())

	c := NewClient(Config{BaseURL: srv.URL, Retries: 2, Metrics: m, Logger: quiet()})
	out := c.Parse(context.Background(), "5 main st")

	_, ok := out.Components()
	assert.False(t, ok)
	require.Error(t, out.Err())
	assert.True(t, errors.Is(out.Err(), ErrUnavailable))
	assert.Contains(t, out.Err().Error(), "HTTP 502")

	var ue *UnavailableError
	require.True(t, errors.As(out.Err(), &ue))
	assert.Equal(t, 3, ue.Attempts)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EnrichRequests.WithLabelValues("unavailable")))
}

func TestParse_RecoversOnRetry(t *testing.T) {
	var n atomic.Int32
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) == 1 {
			_, _ = io.WriteString(w, `not json`)
			return
		}
		_, _ = io.WriteString(w, `[{"label":"country","value":"usa"}]`)
	})

	out := NewClient(Config{BaseURL: srv.URL, Retries: 1, RetryBackoff: time.Millisecond, Logger: quiet()}).
		Parse(context.Background(), "x")
	comps, ok := out.Components()
	require.True(t, ok)
	assert.Equal(t, "usa", comps.Country())
}

func TestParse_ZeroRetriesMakesOneAttempt(t *testing.T) {
	srv, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	out := NewClient(Config{BaseURL: srv.URL, Retries: -3, Logger: quiet()}).Parse(context.Background(), "x")
	assert.Error(t, out.Err())
	assert.Equal(t, int32(1), calls.Load())
}

func TestParse_Timeout(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})

	out := NewClient(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond, Retries: 0, Logger: quiet()}).
		Parse(context.Background(), "x")
	assert.ErrorIs(t, out.Err(), ErrUnavailable)
}

func TestParse_CanceledContextStopsRetries(t *testing.T) {
	srv, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := NewClient(Config{BaseURL: srv.URL, Retries: 5, RetryBackoff: time.Second, Logger: quiet()}).Parse(ctx, "x")
	assert.ErrorIs(t, out.Err(), ErrUnavailable)
	assert.LessOrEqual(t, calls.Load(), int32(1))
}

func TestParse_CachesSuccessOnly(t *testing.T) {
	fail := atomic.Bool{}
	srv, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, `[{"label":"city","value":"berlin"}]`)
	})
	cache := NewMemoryCache(10, time.Hour)
	c := NewClient(Config{BaseURL: srv.URL, Retries: 0, Cache: cache, Logger: quiet()})

	first := c.Parse(context.Background(), "berlin")
	require.NoError(t, first.Err())
	second := c.Parse(context.Background(), "berlin")
	comps, _ := second.Components()
	assert.Equal(t, "berlin", comps.Locality())
	assert.Equal(t, int32(1), calls.Load())

	fail.Store(true)
	assert.Error(t, c.Parse(context.Background(), "paris").Err())
	assert.Equal(t, 1, cache.Len())
}

func TestHealth(t *testing.T) {
	ok, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})
	assert.NoError(t, NewClient(Config{BaseURL: ok.URL}).Health(context.Background()))

	bad, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	assert.Error(t, NewClient(Config{BaseURL: bad.URL}).Health(context.Background()))
}

func TestComponents_Priority(t *testing.T) {
	comps := Components{
		{Label: "suburb", Value: "Brooklyn"},
		{Label: "city", Value: " "},
		{Label: "town", Value: "Kings"},
		{Label: "state_district", Value: "Kings County"},
		{Label: "state", Value: "NY"},
		{Label: "house", Value: "12"},
		{Label: "country_code", Value: "us"},
	}

	assert.Equal(t, "Kings", comps.Locality(), "town outranks suburb; blank city is skipped")
	assert.Equal(t, "NY", comps.Region())
	assert.Equal(t, "", comps.Street(), "house number alone is not a street")
	assert.Equal(t, "12", comps.HouseNumber())
	assert.Equal(t, "us", comps.Country())
	assert.Equal(t, "", comps.Postcode())
}

func TestMemoryCache_EvictsOldestAndExpires(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set(ctx, "a", Components{{Label: "city", Value: "a"}})
	c.Set(ctx, "b", nil)
	c.Set(ctx, "c", nil)

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok, "oldest entry evicted")
	_, ok = c.Get(ctx, "c")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get(ctx, "c")
	assert.False(t, ok, "entry expired")
}
