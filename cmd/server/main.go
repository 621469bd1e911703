package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JonMunkholm/addrnorm/internal/application"
	"github.com/JonMunkholm/addrnorm/internal/config"
	"github.com/JonMunkholm/addrnorm/internal/logging"
	"github.com/JonMunkholm/addrnorm/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	log.Info("configuration loaded",
		"port", cfg.Server.Port,
		"persistence", cfg.Database.Enabled(),
		"enrichment", cfg.Enrich.Enabled,
		"workers", cfg.Pipeline.Workers,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()
	app, err := application.Build(ctx, cfg, application.Options{
		Registerer: prometheus.DefaultRegisterer,
		Logger:     log,
	})
	if err != nil {
		log.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	deps := web.Deps{
		Service: app.Service,
		Limiter: app.Limiter,
		Logger:  log,
	}
	if app.Store != nil {
		deps.History = app.Store
	}
	if app.Enricher != nil {
		deps.Parser = app.Enricher
	}
	server := web.NewServer(cfg, deps)

	// Cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	app.StartBackground(jobCtx)

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := app.Limiter.Status(); status.Active > 0 {
			log.Info("waiting for batches to complete", "active", status.Active)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(jobCtx); err != nil {
		log.Error("server stopped", "error", err)
		cancelJobs()
		app.Close()
		os.Exit(1)
	}
	<-done
	log.Info("server stopped")
}
