// Package statecell implements Strata's versioned state cell with
// compare-and-swap (type tag 0x04). Every write — including the first
// one that creates a cell — bumps a per-cell Counter version rather
// than taking the transaction's commit_version, so a cell's version
// history reads as a small monotonic generation count independent of
// how busy the rest of the database is. Grounded on the teacher's
// pkg/mvcc compare-and-swap validation shape, rewired onto
// txn.Context's cas-set and BufferPutVersioned.
package statecell

import (
	"strata/pkg/entitykey"
	"strata/pkg/primitive"
	"strata/pkg/store"
	"strata/pkg/txn"
	"strata/pkg/value"
)

// Primitive wires the state cell type tag onto a shared store.
type Primitive struct {
	store *store.Store
}

// New returns a state cell primitive backed by core, registered with
// reg under the state cell type tag. A cell's counter-versioned value
// chain is materialized store state, not derived — no Rebuild hook is
// needed.
func New(core *store.Store, reg *primitive.Registry) *Primitive {
	reg.Register(primitive.Registration{
		Name:     "statecell",
		TypeTags: []entitykey.TypeTag{entitykey.TypeStateCell},
	})
	return &Primitive{store: core}
}

func key(branch [16]byte, userKey []byte) (entitykey.Key, error) {
	return entitykey.New(branch, entitykey.TypeStateCell, userKey)
}

// Get reads a cell's current value and Version, recording the read in
// c's read set. The returned Version is what a later CompareAndSwap
// call should pass back as expected.
func (p *Primitive) Get(c *txn.Context, userKey []byte, nowMicros int64) (value.Value, value.Version, bool, error) {
	k, err := key(c.Branch, userKey)
	if err != nil {
		return value.Value{}, value.Version{}, false, err
	}
	vv, ok := txn.Read(p.store, c, k, nowMicros)
	if !ok {
		return value.Value{}, value.Version{}, false, nil
	}
	return vv.Value, vv.Ver, true, nil
}

// Set unconditionally writes v to userKey, bumping the cell's counter
// from whatever c observes as the current version (read-your-writes
// aware, same as any other primitive write). Use CompareAndSwap
// instead when the caller needs to guard against a concurrent writer.
func (p *Primitive) Set(c *txn.Context, userKey []byte, v value.Value) error {
	k, err := key(c.Branch, userKey)
	if err != nil {
		return err
	}
	next := uint64(1)
	if cur, ok := txn.Read(p.store, c, k, 0); ok {
		next = cur.Ver.Number() + 1
	}
	c.BufferPutVersioned(k, v, nil, value.Counter(next))
	return nil
}

// CompareAndSwap stages a write that only takes effect at commit if
// userKey's current version still equals expected (pass nil to assert
// the cell doesn't exist yet, for create-if-absent). The precondition
// is checked against live store state at commit time, independent of
// whatever c has read so far in this transaction — the caller may be
// replaying a version obtained in an earlier, already-committed
// transaction. On success the cell's new version is expected+1 (or
// Counter(1) when created from absent).
//
// transform callers built on top of this (a read-modify-write retry
// loop) must be pure: the core may cause the loop to re-invoke the
// transform on conflict, and it does not enforce purity itself.
func (p *Primitive) CompareAndSwap(c *txn.Context, userKey []byte, expected *value.Version, newVal value.Value) error {
	k, err := key(c.Branch, userKey)
	if err != nil {
		return err
	}
	next := uint64(1)
	if expected != nil {
		c.RequireVersion(k, *expected, true)
		next = expected.Number() + 1
	} else {
		c.RequireVersion(k, value.Version{}, false)
	}
	c.BufferPutVersioned(k, newVal, nil, value.Counter(next))
	return nil
}

// Delete stages a tombstone write guarded by the same expected-version
// precondition as CompareAndSwap.
func (p *Primitive) Delete(c *txn.Context, userKey []byte, expected value.Version) error {
	k, err := key(c.Branch, userKey)
	if err != nil {
		return err
	}
	c.RequireVersion(k, expected, true)
	c.BufferDelete(k)
	return nil
}
