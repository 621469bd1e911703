package core

import (
	"errors"
	"sync"
)

// ErrBatchNotFound is returned for unknown or evicted batch ids.
var ErrBatchNotFound = errors.New("batch not found")

// DefaultBatchHistory is how many finished batches are kept in memory.
const DefaultBatchHistory = 32

// batchRegistry keeps the most recent batch results, oldest evicted first.
type batchRegistry struct {
	mu    sync.RWMutex
	max   int
	byID  map[string]*BatchResult
	order []string
}

func newBatchRegistry(max int) *batchRegistry {
	if max <= 0 {
		max = DefaultBatchHistory
	}
	return &batchRegistry{max: max, byID: make(map[string]*BatchResult, max)}
}

func (r *batchRegistry) put(b *BatchResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[b.ID]; !exists {
		r.order = append(r.order, b.ID)
	}
	r.byID[b.ID] = b
	for len(r.order) > r.max {
		delete(r.byID, r.order[0])
		r.order = r.order[1:]
	}
}

func (r *batchRegistry) get(id string) (*BatchResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byID[id]
	return b, ok
}

// list returns batches newest first.
func (r *batchRegistry) list() []*BatchResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*BatchResult, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		out = append(out, r.byID[r.order[i]])
	}
	return out
}
