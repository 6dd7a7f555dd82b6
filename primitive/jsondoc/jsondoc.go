// Package jsondoc implements Strata's JSON document primitive (type
// tag 0x20). Spec §1 keeps JSON path semantics out of the core's
// tested contract — a document is stored and returned as a whole
// Value tree (Map/Seq/scalar composition already covers JSON's data
// model), and path-addressed reads/patches are the caller's problem
// to build on top of Get/Put. This mirrors kv's shape deliberately:
// a JSON document is a KV entry whose value happens to be tree-shaped.
package jsondoc

import (
	"strata/pkg/entitykey"
	"strata/pkg/primitive"
	"strata/pkg/store"
	"strata/pkg/txn"
	"strata/pkg/value"
)

// Primitive wires the JSON document type tag onto a shared store.
type Primitive struct {
	store *store.Store
}

// New returns a JSON document primitive backed by core, registered
// with reg under the JSON document type tag. A document's stored Value
// tree is materialized store state, not derived — no Rebuild hook is
// needed.
func New(core *store.Store, reg *primitive.Registry) *Primitive {
	reg.Register(primitive.Registration{
		Name:     "jsondoc",
		TypeTags: []entitykey.TypeTag{entitykey.TypeJSONDoc},
	})
	return &Primitive{store: core}
}

func key(branch [16]byte, userKey []byte) (entitykey.Key, error) {
	return entitykey.New(branch, entitykey.TypeJSONDoc, userKey)
}

// Get reads the whole document at userKey.
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

// Put replaces the whole document at userKey. Partial-path updates
// (JSON Merge Patch, JSON Pointer set, etc.) are a caller concern:
// read the current document with Get, apply the path operation in
// application code, and Put the result back.
func (p *Primitive) Put(c *txn.Context, userKey []byte, doc value.Value, ttl *int64) error {
	k, err := key(c.Branch, userKey)
	if err != nil {
		return err
	}
	c.BufferPut(k, doc, ttl)
	return nil
}

// Delete removes the document at userKey.
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

// Scan returns every live document in branch whose key starts with
// prefix, visible as of snapshotVersion, in key order.
func Scan(core *store.Store, branch [16]byte, prefix []byte, snapshotVersion uint64, nowMicros int64) []Entry {
	rows := core.ScanPrefix(branch, entitykey.TypeJSONDoc, prefix, snapshotVersion, nowMicros)
	out := make([]Entry, len(rows))
	for i, r := range rows {
		out[i] = Entry{Key: r.Key.UserKey, Value: r.Value.Value}
	}
	return out
}
