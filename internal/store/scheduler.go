package store

// scheduler.go purges old change-log batches in the background. The job runs
// once at start and then on every interval until the context is cancelled.
// A failed purge is logged and retried on the next tick.

import (
	"context"
	"time"
)

// Retention defaults.
const (
	DefaultRetentionDays = 90
	DefaultPurgeInterval = 24 * time.Hour
)

// RetentionConfig controls the purge scheduler. Zero values use the defaults.
type RetentionConfig struct {
	RetentionDays int           // Batches older than this are deleted
	Interval      time.Duration // How often the purge runs
}

func (c RetentionConfig) withDefaults() RetentionConfig {
	if c.RetentionDays <= 0 {
		c.RetentionDays = DefaultRetentionDays
	}
	if c.Interval <= 0 {
		c.Interval = DefaultPurgeInterval
	}
	return c
}

// StartRetentionScheduler blocks, purging batches older than the retention
// window until ctx is cancelled. Run it in its own goroutine.
func (s *Store) StartRetentionScheduler(ctx context.Context, cfg RetentionConfig) {
	cfg = cfg.withDefaults()
	s.log.Info("retention scheduler started",
		"retention_days", cfg.RetentionDays,
		"interval", cfg.Interval.String(),
	)

	s.runPurge(ctx, cfg, time.Now())

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("retention scheduler stopped")
			return
		case now := <-ticker.C:
			s.runPurge(ctx, cfg, now)
		}
	}
}

func (s *Store) runPurge(ctx context.Context, cfg RetentionConfig, now time.Time) {
	start := time.Now()
	cutoff := now.AddDate(0, 0, -cfg.RetentionDays)

	purged, err := s.PurgeBefore(ctx, cutoff)
	if err != nil {
		s.log.Error("purge failed", "error", err)
		return
	}
	s.log.Info("purged change-log batches",
		"batches_purged", purged,
		"cutoff", cutoff.UTC().Format(time.RFC3339),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
