package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/addrnorm/internal/core"
	"github.com/JonMunkholm/addrnorm/internal/logging"
)

type execCall struct {
	sql  string
	args []any
}

// fakeTx records statements. Methods the store never calls are left to the
// embedded nil interface.
type fakeTx struct {
	pgx.Tx
	db *fakeDB
}

func (t *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.db.Exec(context.Background(), sql, args...)
}

func (t *fakeTx) CopyFrom(_ context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if t.db.copyErr != nil {
		return 0, t.db.copyErr
	}
	t.db.copyTable, t.db.copyCols = table, cols
	var n int64
	for src.Next() {
		vals, err := src.Values()
		if err != nil {
			return n, err
		}
		t.db.copied = append(t.db.copied, vals)
		n++
	}
	return n, src.Err()
}

func (t *fakeTx) Commit(context.Context) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if !t.db.committed {
		t.db.rolledBack = true
	}
	return nil
}

type fakeDB struct {
	mu         sync.Mutex
	execs      []execCall
	execTag    string
	execErr    error
	copyErr    error
	copyTable  pgx.Identifier
	copyCols   []string
	copied     [][]any
	committed  bool
	rolledBack bool
	rows       *fakeRows
}

func (d *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.execs = append(d.execs, execCall{sql: sql, args: args})
	if d.execErr != nil {
		return pgconn.CommandTag{}, d.execErr
	}
	return pgconn.NewCommandTag(d.execTag), nil
}

func (d *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.execs = append(d.execs, execCall{sql: sql, args: args})
	return d.rows, nil
}

func (d *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row { return nil }

func (d *fakeDB) Begin(context.Context) (pgx.Tx, error) { return &fakeTx{db: d}, nil }

func (d *fakeDB) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.execs)
}

type fakeRows struct {
	pgx.Rows
	data [][]any
	i    int
}

func (r *fakeRows) Next() bool {
	r.i++
	return r.i <= len(r.data)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.i-1]
	for i, d := range dest {
		switch p := d.(type) {
		case *pgtype.UUID:
			*p = row[i].(pgtype.UUID)
		case *pgtype.Text:
			*p = row[i].(pgtype.Text)
		case *string:
			*p = row[i].(string)
		case *int32:
			*p = row[i].(int32)
		case *int64:
			*p = row[i].(int64)
		case *time.Time:
			*p = row[i].(time.Time)
		default:
			return errors.New("unexpected scan target")
		}
	}
	return nil
}

func (r *fakeRows) Close()     {}
func (r *fakeRows) Err() error { return nil }

func newBatch() *core.BatchResult {
	return &core.BatchResult{
		ID:        uuid.NewString(),
		FileName:  "addresses.csv",
		Mode:      "extended",
		Stats:     core.BatchStats{Rows: 3, Enriched: 1, ValidZips: 2},
		Duration:  1500 * time.Millisecond,
		CreatedAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		Changes: []core.ChangeEntry{
			{Field: core.FieldZip, Row: 0, Before: "1000 1", After: "10001", Category: core.CategoryChanged},
			{Field: core.FieldLocality, Row: 2, Before: "n/a", After: "", Category: core.CategoryCleared},
		},
	}
}

func TestSaveBatch(t *testing.T) {
	db := &fakeDB{}
	s := New(db, logging.Discard())
	b := newBatch()

	require.NoError(t, s.SaveBatch(context.Background(), b))

	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0].sql, "INSERT INTO addrnorm_batches")
	args := db.execs[0].args
	assert.Equal(t, pgtype.UUID{Bytes: uuid.MustParse(b.ID), Valid: true}, args[0])
	assert.Equal(t, pgtype.Text{String: "addresses.csv", Valid: true}, args[1])
	assert.Equal(t, 3, args[3])
	assert.Equal(t, 2, args[7], "change count")
	assert.Equal(t, pgtype.Text{}, args[8], "no source ip")
	assert.Equal(t, int64(1500), args[10])

	assert.Equal(t, pgx.Identifier{"addrnorm_changes"}, db.copyTable)
	assert.Equal(t, changeColumns, db.copyCols)
	require.Len(t, db.copied, 2)
	assert.Equal(t, []any{args[0], "locality", int32(2), "n/a", "", "cleared", b.CreatedAt}, db.copied[1])
	assert.True(t, db.committed)
	assert.False(t, db.rolledBack)
}

func TestSaveBatch_NoChangesSkipsCopy(t *testing.T) {
	db := &fakeDB{}
	b := newBatch()
	b.Changes = nil

	require.NoError(t, New(db, logging.Discard()).SaveBatch(context.Background(), b))
	assert.Nil(t, db.copyTable)
	assert.True(t, db.committed)
}

func TestSaveBatch_CopyFailureRollsBack(t *testing.T) {
	db := &fakeDB{copyErr: errors.New("connection reset")}

	err := New(db, logging.Discard()).SaveBatch(context.Background(), newBatch())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy changes")
	assert.False(t, db.committed)
	assert.True(t, db.rolledBack)
}

func TestSaveBatch_InvalidID(t *testing.T) {
	db := &fakeDB{}
	b := newBatch()
	b.ID = "not-a-uuid"

	err := New(db, logging.Discard()).SaveBatch(context.Background(), b)
	assert.ErrorIs(t, err, ErrInvalidID)
	assert.Empty(t, db.execs)
}

func TestRecentBatches(t *testing.T) {
	id := uuid.New()
	created := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	db := &fakeDB{rows: &fakeRows{data: [][]any{{
		pgtype.UUID{Bytes: id, Valid: true}, pgtype.Text{}, "addr-only",
		int32(10), int32(4), int32(1), int32(9), int32(12),
		int64(250), created,
	}}}}

	got, err := New(db, logging.Discard()).RecentBatches(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []BatchRecord{{
		ID: id.String(), Mode: "addr-only", Rows: 10, Enriched: 4, Unavailable: 1,
		ValidZips: 9, Changes: 12, DurationMs: 250, CreatedAt: created,
	}}, got)
	assert.Equal(t, []any{50}, db.execs[0].args, "default limit")
}

func TestPurgeBefore(t *testing.T) {
	db := &fakeDB{execTag: "DELETE 7"}
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	n, err := New(db, logging.Discard()).PurgeBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, []any{cutoff}, db.execs[0].args)

	db.execErr = errors.New("deadlock detected")
	_, err = New(db, logging.Discard()).PurgeBefore(context.Background(), cutoff)
	assert.ErrorContains(t, err, "purge batches")
}

func TestMigrate(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, New(db, logging.Discard()).Migrate(context.Background()))
	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0].sql, "CREATE TABLE IF NOT EXISTS addrnorm_changes")
}

func TestStartRetentionScheduler(t *testing.T) {
	db := &fakeDB{execTag: "DELETE 0"}
	s := New(db, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.StartRetentionScheduler(ctx, RetentionConfig{RetentionDays: 30, Interval: 10 * time.Millisecond})
		close(done)
	}()

	require.Eventually(t, func() bool { return db.calls() >= 2 }, time.Second, 5*time.Millisecond,
		"runs at start and on the ticker")
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}

	db.mu.Lock()
	cutoff := db.execs[0].args[0].(time.Time)
	db.mu.Unlock()
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -30), cutoff, 5*time.Second)
}
