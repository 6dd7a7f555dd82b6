// Package txn implements the optimistic transaction coordinator:
// snapshot reads, buffered writes, and a commit-time validation pass
// that re-checks the read set and cas set before applying anything.
// Adapted from the teacher's pkg/mvcc transaction bookkeeping
// (Transaction/ReadSet/WriteSet shapes, pooled reuse), but the commit
// protocol itself is rewritten: the teacher holds per-key write locks
// from first write through commit, which is pessimistic locking, not
// the first-committer-wins OCC this database requires.
package txn

import (
	"sync"

	"strata/pkg/entitykey"
	"strata/pkg/value"
)

// Status is the lifecycle state of a Context.
type Status uint8

const (
	StatusActive Status = iota
	StatusCommitted
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCommitted:
		return "committed"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// writeEntry is a buffered write: either a Put (Tombstone false) or a
// Delete (Tombstone true). Writes are applied in call order at commit.
// verOverride lets a primitive (state cell CAS, event log append)
// request a Sequence- or Counter-kind Version instead of the default
// Txn(commit_version) every ordinary put receives, so a CAS write's
// post-commit version reads back as Counter(n) rather than the
// transaction's commit id.
type writeEntry struct {
	key         entitykey.Key
	val         value.Value
	tombstone   bool
	ttl         *int64
	verOverride *value.Version
}

// casEntry records an expected-version check the caller wants
// validated at commit time, independent of whether the key was read
// through Get (state cell compare-and-swap, for example, validates a
// version the caller already holds from outside this context).
type casEntry struct {
	key      entitykey.Key
	expected value.Version
	hadValue bool
}

// Context is a single transaction's working set: which branch it runs
// against, the commit_version snapshot it reads through, and the
// buffered reads/writes/cas-checks that commit will validate and
// apply atomically. Contexts are pooled; Acquire resets one before
// reuse.
type Context struct {
	ID        uint64
	Branch    [16]byte
	StartVer  uint64
	DeadlineAt int64 // microseconds since epoch; 0 means no deadline
	status    Status

	reads   map[string]uint64 // entitykey.Encode -> commit_version observed at read time
	writes  []writeEntry
	casChks []casEntry
}

var contextPool = sync.Pool{
	New: func() any { return &Context{} },
}

// Acquire returns a Context from the pool, reset and ready for use.
func Acquire(id uint64, branch [16]byte, startVer uint64) *Context {
	c := contextPool.Get().(*Context)
	c.reset(id, branch, startVer)
	return c
}

// Release returns c to the pool. Callers must not use c afterward.
func Release(c *Context) {
	contextPool.Put(c)
}

func (c *Context) reset(id uint64, branch [16]byte, startVer uint64) {
	c.ID = id
	c.Branch = branch
	c.StartVer = startVer
	c.DeadlineAt = 0
	c.status = StatusActive
	if c.reads == nil {
		c.reads = make(map[string]uint64)
	} else {
		clear(c.reads)
	}
	c.writes = c.writes[:0]
	c.casChks = c.casChks[:0]
}

// Status reports the context's current lifecycle state.
func (c *Context) Status() Status { return c.status }

// RecordRead notes that k was observed at the given commit_version, so
// commit-time validation can detect if it changed since. Primitives
// call this from their Get path.
func (c *Context) RecordRead(k entitykey.Key, observedVersion uint64) {
	c.reads[entitykey.Encode(k)] = observedVersion
}

// BufferPut stages a write. Later writes to the same key within the
// same context shadow earlier ones in WriteSet (last write wins
// locally), though both remain in the apply log in call order. The
// stored value receives the default Txn(commit_version) Version.
func (c *Context) BufferPut(k entitykey.Key, v value.Value, ttl *int64) {
	c.writes = append(c.writes, writeEntry{key: k, val: v, ttl: ttl})
}

// BufferPutVersioned is BufferPut for a primitive that owns its own
// version numbering (event log sequence offsets, state cell CAS
// generation counters) instead of taking the transaction's
// commit_version. ver is stamped onto the stored VersionedValue as-is;
// the coordinator never reassigns it.
func (c *Context) BufferPutVersioned(k entitykey.Key, v value.Value, ttl *int64, ver value.Version) {
	c.writes = append(c.writes, writeEntry{key: k, val: v, ttl: ttl, verOverride: &ver})
}

// BufferDelete stages a tombstone write.
func (c *Context) BufferDelete(k entitykey.Key) {
	c.writes = append(c.writes, writeEntry{key: k, tombstone: true})
}

// RequireVersion stages a compare-and-swap precondition: commit fails
// validation unless k's current version still matches expected (or,
// if hadValue is false, the key still doesn't exist).
func (c *Context) RequireVersion(k entitykey.Key, expected value.Version, hadValue bool) {
	c.casChks = append(c.casChks, casEntry{key: k, expected: expected, hadValue: hadValue})
}

// LocalWrite returns the most recently buffered write for k within
// this context, if any, letting read-your-writes see uncommitted
// local state before validation.
func (c *Context) LocalWrite(k entitykey.Key) (value.Value, bool, bool) {
	enc := entitykey.Encode(k)
	for i := len(c.writes) - 1; i >= 0; i-- {
		if entitykey.Encode(c.writes[i].key) == enc {
			return c.writes[i].val, c.writes[i].tombstone, true
		}
	}
	return value.Value{}, false, false
}
