package core

// batch_limiter.go caps how many uploaded batches are normalized at once.
//
// Each batch already fans out across PIPELINE_WORKERS goroutines and may hold
// a whole file in memory, so the HTTP layer takes a slot before reading the
// upload. When every slot is busy a request waits up to maxWait and then
// fails with ErrTooManyBatches. WaitForDrain lets shutdown wait for running
// batches.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/JonMunkholm/addrnorm/internal/metrics"
)

// ErrTooManyBatches is returned when no slot frees up within the wait time.
var ErrTooManyBatches = errors.New("too many uploads in progress, please try again later")

// Defaults for NewBatchLimiter.
const (
	DefaultMaxConcurrentBatches = 5
	DefaultMaxWaitTime          = 30 * time.Second
)

// BatchLimiter is a counting semaphore for batch uploads.
type BatchLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int64
	metrics *metrics.Metrics
}

// NewBatchLimiter allows at most maxConcurrent batches. Non-positive
// arguments select the defaults. m may be nil.
func NewBatchLimiter(maxConcurrent int, maxWait time.Duration, m *metrics.Metrics) *BatchLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentBatches
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &BatchLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
		metrics: m,
	}
}

// Acquire takes a slot, waiting up to the limiter's max wait. The caller
// must Release after a nil return.
func (l *BatchLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.acquired()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyBatches
	}
}

// TryAcquire takes a slot only if one is free.
func (l *BatchLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		l.acquired()
		return true
	default:
		return false
	}
}

func (l *BatchLimiter) acquired() {
	l.active.Add(1)
	l.metrics.UploadStarted()
}

// Release frees a slot taken by Acquire or TryAcquire.
func (l *BatchLimiter) Release() {
	l.active.Add(-1)
	l.metrics.UploadFinished()
	<-l.slots
}

// ActiveCount returns the number of running batches.
func (l *BatchLimiter) ActiveCount() int { return int(l.active.Load()) }

// Available returns the number of free slots.
func (l *BatchLimiter) Available() int { return cap(l.slots) - len(l.slots) }

// MaxConcurrent returns the slot count.
func (l *BatchLimiter) MaxConcurrent() int { return cap(l.slots) }

// WaitForDrain blocks until no batch is running or ctx ends.
func (l *BatchLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LimiterStatus is a point-in-time view of a BatchLimiter.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"maxConcurrent"`
}

// Status returns the limiter's current state.
func (l *BatchLimiter) Status() LimiterStatus {
	return LimiterStatus{
		Active:        l.ActiveCount(),
		Available:     l.Available(),
		MaxConcurrent: cap(l.slots),
	}
}
