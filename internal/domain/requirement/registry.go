// Package requirement maps requirement identifiers to predicates over a
// metrics snapshot and evaluates badge definitions against them.
package requirement

import (
	"fmt"
	"sort"
	"sync"

	"github.com/wolfinder/badges/internal/domain/model"
)

// Predicate is a named pure function over a metrics snapshot.
//
// Progress reports how close the snapshot is to satisfying the predicate on
// a 0..100 scale; Missing returns the user-facing explanation when Check fails.
// Both are optional: without Progress an unmet predicate counts as 0, without
// Missing the Label is reported.
type Predicate struct {
	Label    string
	Check    func(model.MetricsSnapshot) bool
	Progress func(model.MetricsSnapshot) int
	Missing  func(model.MetricsSnapshot) string
}

// Registry holds the closed set of known requirement identifiers.
type Registry struct {
	mu         sync.RWMutex
	predicates map[string]Predicate
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{predicates: make(map[string]Predicate)}
}

// Register adds a predicate under id. Identifiers are registered once.
func (r *Registry) Register(id string, p Predicate) error {
	if id == "" {
		return ErrEmptyID
	}
	if p.Check == nil {
		return fmt.Errorf("%w: %s", ErrInvalidPredicate, id)
	}
	if p.Label == "" {
		p.Label = id
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.predicates[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	r.predicates[id] = p
	return nil
}

// MustRegister is Register that panics on error; used for static tables.
func (r *Registry) MustRegister(id string, p Predicate) {
	if err := r.Register(id, p); err != nil {
		panic(err)
	}
}

// Lookup returns the predicate registered under id.
func (r *Registry) Lookup(id string) (Predicate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.predicates[id]
	return p, ok
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.Lookup(id)
	return ok
}

// IDs returns the registered identifiers in lexical order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.predicates))
	for id := range r.predicates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered predicates.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.predicates)
}
