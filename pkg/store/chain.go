// Package store implements the sharded in-memory MVCC store: one shard
// per branch, each shard a map from entity key to a version chain.
// Adapted from the teacher's pkg/mvcc (RowVersion/VersionChain linked
// list, newest-first), generalized to branch-level sharding and to
// Strata's value.VersionedValue payload instead of raw row bytes.
package store

import (
	"sync"

	"strata/pkg/value"
)

// node is one entry in a version chain: a stored value plus a pointer
// to the next-older node. nil Value with deleted=true represents a
// tombstone.
type node struct {
	versioned value.VersionedValue
	deleted   bool
	next      *node
}

// Chain is the newest-first linked list of versions for a single
// entity key. The zero Chain is an empty chain, which is what
// newChain returns.
type Chain struct {
	mu   sync.RWMutex
	head *node
}

func newChain() *Chain {
	return &Chain{}
}

// prepend pushes a new version onto the head of the chain.
func (c *Chain) prepend(vv value.VersionedValue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head = &node{versioned: vv, next: c.head}
}

// prependTombstone pushes a delete marker onto the head of the chain,
// carrying the Version that performed the delete and the commit
// version it became visible under, so a reader at an earlier snapshot
// can still see the pre-delete value.
func (c *Chain) prependTombstone(ver value.Version, createdAt int64, commitVersion uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head = &node{
		versioned: value.VersionedValue{Ver: ver, CreatedAt: createdAt, CommitVersion: commitVersion},
		deleted:   true,
		next:      c.head,
	}
}

// visibleAt walks the chain for the newest node whose CommitVersion is
// less-than-or-equal-to the snapshot bound (callers pass the
// snapshot's start commit version). CommitVersion, not Ver, is the
// bound: Ver's number is meaningful only within its own kind
// (sequence offset, generation count, ...), while CommitVersion is the
// one axis every node shares regardless of which primitive wrote it.
// It returns (value, found); found is false when that node is a
// tombstone or has expired.
func (c *Chain) visibleAt(maxCommit uint64, nowMicros int64) (value.VersionedValue, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for n := c.head; n != nil; n = n.next {
		if n.versioned.CommitVersion > maxCommit {
			continue
		}
		if n.deleted {
			return value.VersionedValue{}, false
		}
		if n.versioned.ExpiredAt(nowMicros) {
			return value.VersionedValue{}, false
		}
		return n.versioned, true
	}
	return value.VersionedValue{}, false
}

// headNode returns the newest node regardless of snapshot bound, used by
// the coordinator to validate read sets and by CAS primitives that
// always operate against the latest committed state.
func (c *Chain) headNode() *node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.head
}

// gc drops chain nodes whose CommitVersion is strictly below
// minVersion, keeping at least one node (the newest that is <=
// minVersion) so readers whose snapshot still needs it stay correct.
// Invoked by Database.Compact, never automatically.
func (c *Chain) gc(minVersion uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.head == nil {
		return
	}
	n := c.head
	for n.next != nil {
		if n.versioned.CommitVersion <= minVersion {
			n.next = nil
			return
		}
		n = n.next
	}
}
