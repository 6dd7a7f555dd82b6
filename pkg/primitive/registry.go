// Package primitive implements a capability-registry seam: rather
// than the core knowing about every concrete primitive, each
// primitive registers the type tags it owns plus an optional hook to
// rebuild derived (non-stored) state once the store holds its
// materialized values again. Adding a primitive means
// claiming a tag range and registering here — nothing in
// pkg/durability/recovery or pkg/durability/snapshot is primitive-
// aware. Grounded in the teacher's pkg/hnsw registration-file pattern,
// generalized from "one index type" to "any primitive".
package primitive

import (
	"fmt"
	"sync"

	"strata/pkg/entitykey"
	"strata/pkg/store"
)

// Registration describes one primitive's footprint in the core.
type Registration struct {
	// Name identifies the primitive in logs and error messages.
	Name string
	// TypeTags are the entitykey.TypeTag values this primitive owns.
	// Snapshot loading routes by tag: a section whose tag has no
	// registration is skipped with a warning, never an error. WAL
	// replay does not consult the registry and applies every
	// mutation whatever its tag.
	TypeTags []entitykey.TypeTag
	// Rebuild reconstructs derived in-memory state (a search index,
	// for example) for one branch after the store already holds the
	// primitive's raw materialized values. nil means the primitive has
	// no derived state — the version chains the store already holds
	// ARE its state, which covers kv/eventlog/statecell/trace/
	// runindex/jsondoc. Only vectorindex's HNSW graph needs this.
	Rebuild func(st *store.Store, branch [16]byte) error
}

// Registry is the process-wide set of registered primitives. A
// Database owns exactly one.
type Registry struct {
	mu    sync.RWMutex
	regs  []Registration
	owner map[entitykey.TypeTag]string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{owner: make(map[entitykey.TypeTag]string)}
}

// Register adds reg to the registry. It panics on a type-tag
// collision: two primitives claiming the same tag is a programming
// error caught at wiring time, not a runtime condition to handle
// gracefully.
func (r *Registry) Register(reg Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range reg.TypeTags {
		if owner, ok := r.owner[t]; ok {
			panic(fmt.Sprintf("primitive: type tag %#x already owned by %q, cannot register %q", byte(t), owner, reg.Name))
		}
	}
	for _, t := range reg.TypeTags {
		r.owner[t] = reg.Name
	}
	r.regs = append(r.regs, reg)
}

// Owner reports which primitive owns t, if any.
func (r *Registry) Owner(t entitykey.TypeTag) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.owner[t]
	return name, ok
}

// All returns every registration, in registration order.
func (r *Registry) All() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Registration, len(r.regs))
	copy(out, r.regs)
	return out
}

// RebuildAll invokes every registration's Rebuild hook (where set) for
// every branch in branches, called once by recovery.Recover after
// it has repopulated the store from snapshot + WAL tail.
func (r *Registry) RebuildAll(st *store.Store, branches [][16]byte) error {
	for _, reg := range r.All() {
		if reg.Rebuild == nil {
			continue
		}
		for _, b := range branches {
			if err := reg.Rebuild(st, b); err != nil {
				return fmt.Errorf("primitive %s: rebuild branch %x: %w", reg.Name, b, err)
			}
		}
	}
	return nil
}
