// Package store persists normalized batches and their field changes in
// PostgreSQL so reviewers can audit what the pipeline rewrote.
package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/addrnorm/internal/core"
)

//go:embed schema.sql
var schemaSQL string

// ErrInvalidID is returned for batch ids that are not UUIDs.
var ErrInvalidID = errors.New("invalid batch id")

var changeColumns = []string{"batch_id", "field", "row_index", "before_value", "after_value", "category", "created_at"}

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// DB is a DBTX that can start transactions.
type DB interface {
	DBTX
	Begin(context.Context) (pgx.Tx, error)
}

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// OpenPool parses url, applies cfg and pings the database.
func OpenPool(ctx context.Context, url string, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

// Store writes batches to PostgreSQL. It satisfies core.ChangeLog.
type Store struct {
	db  DB
	log *slog.Logger
}

// New wraps db. A nil logger uses slog.Default.
func New(db DB, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, log: log}
}

// Migrate creates the change-log tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// SaveBatch stores the batch summary and every change entry in one
// transaction. Changes are written with COPY.
func (s *Store) SaveBatch(ctx context.Context, b *core.BatchResult) error {
	id := toPgUUID(b.ID)
	if !id.Valid {
		return fmt.Errorf("save batch: %w %q", ErrInvalidID, b.ID)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	_, err = tx.Exec(ctx, `
		INSERT INTO addrnorm_batches
			(id, file_name, mode, row_count, enriched, unavailable, valid_zips, changes,
			 source_ip, user_agent, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		id,
		toPgText(b.FileName),
		b.Mode,
		b.Stats.Rows,
		b.Stats.Enriched,
		b.Stats.EnrichUnavailable,
		b.Stats.ValidZips,
		len(b.Changes),
		toPgText(b.SourceIP),
		toPgText(b.UserAgent),
		b.Duration.Milliseconds(),
		b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	if len(b.Changes) > 0 {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"addrnorm_changes"}, changeColumns,
			pgx.CopyFromSlice(len(b.Changes), func(i int) ([]any, error) {
				c := b.Changes[i]
				return []any{id, c.Field, int32(c.Row), c.Before, c.After, string(c.Category), b.CreatedAt}, nil
			}))
		if err != nil {
			return fmt.Errorf("copy changes: %w", err)
		}
		if n != int64(len(b.Changes)) {
			return fmt.Errorf("copy changes: wrote %d of %d rows", n, len(b.Changes))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.log.Debug("batch persisted", "batch_id", b.ID, "changes", len(b.Changes))
	return nil
}

// BatchRecord is a stored batch summary.
type BatchRecord struct {
	ID          string    `json:"id"`
	FileName    string    `json:"fileName,omitempty"`
	Mode        string    `json:"mode"`
	Rows        int       `json:"rows"`
	Enriched    int       `json:"enriched"`
	Unavailable int       `json:"unavailable"`
	ValidZips   int       `json:"validZips"`
	Changes     int       `json:"changes"`
	DurationMs  int64     `json:"durationMs"`
	CreatedAt   time.Time `json:"createdAt"`
}

// RecentBatches returns up to limit stored batches, newest first.
func (s *Store) RecentBatches(ctx context.Context, limit int) ([]BatchRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, file_name, mode, row_count, enriched, unavailable, valid_zips, changes, duration_ms, created_at
		FROM addrnorm_batches
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var out []BatchRecord
	for rows.Next() {
		var (
			rec      BatchRecord
			id       pgtype.UUID
			fileName pgtype.Text
			counts   [5]int32
		)
		if err := rows.Scan(&id, &fileName, &rec.Mode,
			&counts[0], &counts[1], &counts[2], &counts[3], &counts[4],
			&rec.DurationMs, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		rec.ID = pgUUIDToString(id)
		rec.FileName = fileName.String
		rec.Rows, rec.Enriched, rec.Unavailable = int(counts[0]), int(counts[1]), int(counts[2])
		rec.ValidZips, rec.Changes = int(counts[3]), int(counts[4])
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}
	return out, nil
}

// PurgeBefore deletes batches created before cutoff; their changes go with
// them. It returns the number of batches removed.
func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM addrnorm_batches WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge batches: %w", err)
	}
	return tag.RowsAffected(), nil
}

func toPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func toPgUUID(s string) pgtype.UUID {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}
}

func pgUUIDToString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}
