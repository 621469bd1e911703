// Package web serves the address normalizer over HTTP: an upload page, the
// batch and single-record normalize endpoints, batch reports and profile
// diagnostics.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/addrnorm/internal/config"
	"github.com/JonMunkholm/addrnorm/internal/core"
	"github.com/JonMunkholm/addrnorm/internal/store"
	"github.com/JonMunkholm/addrnorm/internal/web/middleware"
)

// BatchHistory lists persisted batches. *store.Store satisfies it.
type BatchHistory interface {
	RecentBatches(ctx context.Context, limit int) ([]store.BatchRecord, error)
}

// HealthChecker probes the enrichment parser. *enrich.Client satisfies it.
type HealthChecker interface {
	Health(ctx context.Context) error
	BaseURL() string
}

// Deps are the collaborators of a Server. Service and Limiter are required.
type Deps struct {
	Service *core.Service
	Limiter *core.BatchLimiter
	// History is nil when persistence is disabled; recent in-memory batches
	// are listed instead.
	History BatchHistory
	// Parser is nil when enrichment is disabled.
	Parser HealthChecker
	// Metrics serves /metrics. Nil uses the default Prometheus registry.
	Metrics http.Handler
	Logger  *slog.Logger
}

// Server is the HTTP server for the normalizer.
type Server struct {
	cfg       *config.Config
	service   *core.Service
	limiter   *core.BatchLimiter
	history   BatchHistory
	parser    HealthChecker
	metrics   http.Handler
	validator *recordValidator
	rate      *middleware.RateLimiter
	upload    *middleware.RateLimiter
	log       *slog.Logger
	router    *chi.Mux
	server    *http.Server
}

// NewServer wires routes and middleware.
func NewServer(cfg *config.Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = promhttp.Handler()
	}
	s := &Server{
		cfg:       cfg,
		service:   deps.Service,
		limiter:   deps.Limiter,
		history:   deps.History,
		parser:    deps.Parser,
		metrics:   deps.Metrics,
		validator: newRecordValidator(),
		log:       deps.Logger,
		router:    chi.NewRouter(),
	}
	if cfg.Rate.Enabled {
		s.rate = middleware.NewRateLimiter(cfg.Rate.RequestsPerMinute, time.Minute)
		s.upload = middleware.NewRateLimiter(cfg.Rate.UploadLimit, time.Minute)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies, s.log))
	s.router.Use(middleware.Logger(s.log))
	s.router.Use(chimw.Recoverer)
	s.router.Use(middleware.SecurityHeaders(s.cfg.Security.EnableCSP))
	if s.rate != nil {
		s.router.Use(s.rate.Middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// Pages
	s.router.Get("/", s.handleIndex)
	s.router.Get("/profile", s.handleProfilePage)

	// Operational
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", s.metrics)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(s.cfg.Security, s.log))

		// Uploads carry their own deadline (UPLOAD_TIMEOUT)
		if s.upload != nil {
			r.With(s.upload.Middleware).Post("/normalize", s.handleNormalize)
		} else {
			r.Post("/normalize", s.handleNormalize)
		}

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))

			r.Post("/normalize/record", s.handleNormalizeRecord)
			r.Get("/batches/{batchID}", s.handleBatch)
			r.Get("/batches/{batchID}/report", s.handleBatchReport)
			r.Get("/history", s.handleHistory)
			r.Get("/profile", s.handleProfile)
		})
	})
}

// Start begins listening for HTTP requests. It returns nil after Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	if s.rate != nil {
		go s.rate.Run(ctx)
		go s.upload.Run(ctx)
	}

	s.log.Info("starting server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight batches.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	if drainErr := s.limiter.WaitForDrain(ctx); drainErr != nil {
		s.log.Warn("shutdown with batches still running", "active", s.limiter.ActiveCount())
	}
	return err
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
