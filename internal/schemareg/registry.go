// Package schemareg holds the single, atomically-replaced schema
// snapshot every request reads once at the start of its pipeline run.
// It is the RWMutex-guarded-pointer generalization of the teacher's
// map-keyed live-query registry: here there is exactly one slot.
package schemareg

import (
	"sync"

	"github.com/nl2sql-gateway/sqlgate/internal/core/schema"
)

// Registry holds the current schema snapshot, safe for concurrent
// readers and a single external writer (the introspector's refresh
// loop).
type Registry struct {
	mu   sync.RWMutex
	snap *schema.Snapshot
}

// New builds an empty Registry. Current returns nil until Replace is
// called at least once.
func New() *Registry {
	return &Registry{}
}

// Current returns the registry's current snapshot pointer. Callers
// must capture it once at the start of a request and use that pointer
// throughout — a concurrent Replace must never produce a torn read
// within a single request.
func (r *Registry) Current() *schema.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap
}

// Replace atomically swaps in a newly introspected snapshot.
func (r *Registry) Replace(snap *schema.Snapshot) {
	r.mu.Lock()
	r.snap = snap
	r.mu.Unlock()
}
