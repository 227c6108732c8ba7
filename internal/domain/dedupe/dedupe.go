// Package dedupe tracks keys of pending work so duplicates can be dropped.
package dedupe

import (
	"context"
	"sync"
)

// Deduper records keys of work that is pending.
type Deduper interface {
	// SeenAndRecord atomically checks if key is pending and records it if not.
	// Returns true if key was already pending.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key, so the next SeenAndRecord for it returns false.
	// Call it when the work starts or when it could not be queued.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// inMemoryDeduper is a mutex-guarded set. When maxSize is reached new keys
// are not recorded, so duplicates of them are let through.
type inMemoryDeduper struct {
	mu      sync.Mutex
	pending map[string]struct{}
	maxSize int
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{pending: make(map[string]struct{})}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.pending[key]; ok {
		return true
	}
	if d.maxSize > 0 && len(d.pending) >= d.maxSize {
		return false
	}
	d.pending[key] = struct{}{}
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	delete(d.pending, key)
	d.mu.Unlock()
}

// Size returns the number of pending keys.
func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.pending))
}
