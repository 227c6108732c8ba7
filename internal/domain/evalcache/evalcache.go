// Package evalcache memoizes per-professional evaluation results for a short TTL.
package evalcache

import (
	"context"
	"sync"
	"time"

	"github.com/wolfinder/badges/internal/domain/model"
)

// Cache stores evaluation batches keyed by professional id. Writers that
// change a professional's awards call Invalidate.
type Cache interface {
	Get(ctx context.Context, professionalID int64) ([]model.EvaluationResult, bool)
	Set(ctx context.Context, professionalID int64, results []model.EvaluationResult)
	Invalidate(ctx context.Context, professionalID int64)
	Len() int
}

type entry struct {
	results   []model.EvaluationResult
	expiresAt time.Time
}

// MemoryCache is a mutex-guarded in-process Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[int64]entry

	ttl             time.Duration
	now             func() time.Time
	cleanupInterval time.Duration

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewMemoryCache creates an in-memory cache. When a cleanup interval is
// configured, Close must be called to stop the janitor.
func NewMemoryCache(opts ...Option) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[int64]entry),
		ttl:     DefaultTTL,
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cleanupInterval > 0 {
		go c.janitor()
	} else {
		close(c.done)
	}
	return c
}

// Get returns a fresh entry.
func (c *MemoryCache) Get(_ context.Context, professionalID int64) ([]model.EvaluationResult, bool) {
	c.mu.RLock()
	e, ok := c.entries[professionalID]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false
	}
	return clone(e.results), true
}

// Set stores results for the configured TTL.
func (c *MemoryCache) Set(_ context.Context, professionalID int64, results []model.EvaluationResult) {
	c.mu.Lock()
	c.entries[professionalID] = entry{results: clone(results), expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Invalidate drops the entry for professionalID.
func (c *MemoryCache) Invalidate(_ context.Context, professionalID int64) {
	c.mu.Lock()
	delete(c.entries, professionalID)
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included until swept.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep removes expired entries and returns how many were dropped.
func (c *MemoryCache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, id)
			n++
		}
	}
	return n
}

// Close stops the janitor, if any. Safe to call more than once.
func (c *MemoryCache) Close() error {
	c.once.Do(func() { close(c.stop) })
	<-c.done
	return nil
}

func (c *MemoryCache) janitor() {
	defer close(c.done)
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// clone copies the batch so callers cannot mutate cached slices.
func clone(in []model.EvaluationResult) []model.EvaluationResult {
	if in == nil {
		return nil
	}
	out := make([]model.EvaluationResult, len(in))
	for i, r := range in {
		r.Requirements = append([]string(nil), r.Requirements...)
		r.MissingRequirements = append([]string{}, r.MissingRequirements...)
		r.Unrecognized = append([]string(nil), r.Unrecognized...)
		out[i] = r
	}
	return out
}

// Nop is a Cache that never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, int64) ([]model.EvaluationResult, bool) { return nil, false }
func (Nop) Set(context.Context, int64, []model.EvaluationResult)        {}
func (Nop) Invalidate(context.Context, int64)                           {}
func (Nop) Len() int                                                    { return 0 }
