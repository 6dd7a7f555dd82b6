// Package kv implements Strata's key-value primitive (type tag
// 0x01): the plainest possible primitive, a thin Get/Put/Delete/Scan
// surface over the shared store and transaction coordinator. It exists
// mostly to exercise the core contract end to end and to give the
// other primitives a template for how little ceremony a primitive
// needs beyond entity-key construction. Grounded on the teacher's
// `pkg/cowbtree/versioned_store.go` Get/Put calling convention.
package kv

import (
	"strata/pkg/entitykey"
	"strata/pkg/store"
	"strata/pkg/txn"
	"strata/pkg/value"
)

// Primitive wires the KV type tag onto a shared store.
type Primitive struct {
	store *store.Store
}

// New returns a KV primitive backed by core. Unlike the other
// primitives it takes no registry and does not register the KV type
// tag itself; Database.Open registers entitykey.TypeKV.
func New(core *store.Store) *Primitive {
	return &Primitive{store: core}
}

func key(branch [16]byte, userKey []byte) (entitykey.Key, error) {
	return entitykey.New(branch, entitykey.TypeKV, userKey)
}

// Get reads userKey within c's transaction, recording it in the read
// set for commit-time validation.
func (p *Primitive) Get(c *txn.Context, userKey []byte, nowMicros int64) (value.Value, bool, error) {
	k, err := key(c.Branch, userKey)
	if err != nil {
		return value.Value{}, false, err
	}
	vv, ok := txn.Read(p.store, c, k, nowMicros)
	if !ok {
		return value.Value{}, false, nil
	}
	return vv.Value, true, nil
}

// Put buffers a write of v at userKey, overriding any prior buffered
// write to the same key within c. ttl is optional (nil means no
// expiry).
func (p *Primitive) Put(c *txn.Context, userKey []byte, v value.Value, ttl *int64) error {
	k, err := key(c.Branch, userKey)
	if err != nil {
		return err
	}
	c.BufferPut(k, v, ttl)
	return nil
}

// Delete buffers a tombstone write at userKey.
func (p *Primitive) Delete(c *txn.Context, userKey []byte) error {
	k, err := key(c.Branch, userKey)
	if err != nil {
		return err
	}
	c.BufferDelete(k)
	return nil
}

// Entry is one row of a Scan result.
type Entry struct {
	Key   []byte
	Value value.Value
}

// Scan returns every live KV entry in branch whose key starts with
// prefix, visible as of snapshotVersion, in key order. This reads
// directly against the store rather than through a Context: scans
// aren't buffered or validated at commit, they're a point-in-time
// snapshot read.
func Scan(core *store.Store, branch [16]byte, prefix []byte, snapshotVersion uint64, nowMicros int64) []Entry {
	rows := core.ScanPrefix(branch, entitykey.TypeKV, prefix, snapshotVersion, nowMicros)
	out := make([]Entry, len(rows))
	for i, r := range rows {
		out[i] = Entry{Key: r.Key.UserKey, Value: r.Value.Value}
	}
	return out
}
