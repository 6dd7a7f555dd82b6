package store

import (
	"sync"
	"sync/atomic"

	"strata/pkg/entitykey"
	"strata/pkg/value"
)

// shard owns the version chains for a single branch.
type shard struct {
	mu     sync.RWMutex
	chains map[string]*Chain // entitykey.Encode -> chain
}

func newShard() *shard {
	return &shard{chains: make(map[string]*Chain)}
}

func (s *shard) chainFor(k entitykey.Key, create bool) *Chain {
	enc := entitykey.Encode(k)
	s.mu.RLock()
	c := s.chains[enc]
	s.mu.RUnlock()
	if c != nil || !create {
		return c
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c = s.chains[enc]; c == nil {
		c = newChain()
		s.chains[enc] = c
	}
	return c
}

// Store is the sharded in-memory MVCC store. One shard per branch;
// each shard holds the version chains for every entity in that
// branch, across all primitives (the type tag in EntityKey keeps
// primitives from colliding within a branch's key space).
type Store struct {
	mu          sync.RWMutex
	shards      map[[16]byte]*shard
	commitVer   uint64 // atomic: last allocated commit_version
}

// New returns an empty Store.
func New() *Store {
	return &Store{shards: make(map[[16]byte]*shard)}
}

// NextCommitVersion atomically allocates and returns the next
// commit_version. The coordinator calls this once per committing
// transaction, inside the branch's commit mutex.
func (s *Store) NextCommitVersion() uint64 {
	return atomic.AddUint64(&s.commitVer, 1)
}

// CurrentCommitVersion returns the last allocated commit_version
// without allocating a new one.
func (s *Store) CurrentCommitVersion() uint64 {
	return atomic.LoadUint64(&s.commitVer)
}

// RestoreCommitVersion sets the commit_version counter directly,
// used by recovery to resume numbering after the watermark found in
// the manifest/WAL tail rather than restarting at zero.
func (s *Store) RestoreCommitVersion(v uint64) {
	for {
		cur := atomic.LoadUint64(&s.commitVer)
		if v <= cur {
			return
		}
		if atomic.CompareAndSwapUint64(&s.commitVer, cur, v) {
			return
		}
	}
}

func (s *Store) shardFor(branch [16]byte, create bool) *shard {
	s.mu.RLock()
	sh := s.shards[branch]
	s.mu.RUnlock()
	if sh != nil || !create {
		return sh
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sh = s.shards[branch]; sh == nil {
		sh = newShard()
		s.shards[branch] = sh
	}
	return sh
}

// Get returns the value visible as of snapshotVersion (inclusive),
// filtering out tombstones and TTL-expired entries.
func (s *Store) Get(k entitykey.Key, snapshotVersion uint64, nowMicros int64) (value.VersionedValue, bool) {
	sh := s.shardFor(k.BranchID, false)
	if sh == nil {
		return value.VersionedValue{}, false
	}
	c := sh.chainFor(k, false)
	if c == nil {
		return value.VersionedValue{}, false
	}
	return c.visibleAt(snapshotVersion, nowMicros)
}

// CurrentVersion returns the Version at the head of k's chain
// (regardless of any snapshot bound) and whether that head is a
// tombstone. Used by the coordinator to validate read sets and cas
// sets against the true latest state at commit time.
func (s *Store) CurrentVersion(k entitykey.Key) (value.Version, bool, bool) {
	sh := s.shardFor(k.BranchID, false)
	if sh == nil {
		return value.Version{}, false, false
	}
	c := sh.chainFor(k, false)
	if c == nil {
		return value.Version{}, false, false
	}
	n := c.headNode()
	if n == nil {
		return value.Version{}, false, false
	}
	return n.versioned.Ver, n.deleted, true
}

// Apply writes vv to the head of k's chain, creating the shard and
// chain if needed. Called only by the coordinator after WAL durability
// has been satisfied, and by recovery replay. Callers must set
// vv.CommitVersion to the commit_version this write became visible
// under, so later snapshot reads can bound it correctly.
func (s *Store) Apply(k entitykey.Key, vv value.VersionedValue) {
	sh := s.shardFor(k.BranchID, true)
	c := sh.chainFor(k, true)
	c.prepend(vv)
}

// ApplyTombstone marks k deleted as of ver, visible from commitVersion
// onward.
func (s *Store) ApplyTombstone(k entitykey.Key, ver value.Version, createdAt int64, commitVersion uint64) {
	sh := s.shardFor(k.BranchID, true)
	c := sh.chainFor(k, true)
	c.prependTombstone(ver, createdAt, commitVersion)
}

// ScanPrefix returns every (Key, VersionedValue) visible as of
// snapshotVersion whose entity key matches (branch, typ, prefix),
// in key order.
func (s *Store) ScanPrefix(branch [16]byte, typ entitykey.TypeTag, prefix []byte, snapshotVersion uint64, nowMicros int64) []ScanResult {
	sh := s.shardFor(branch, false)
	if sh == nil {
		return nil
	}
	sh.mu.RLock()
	type hit struct {
		key entitykey.Key
		c   *Chain
	}
	var hits []hit
	for enc, c := range sh.chains {
		k, ok := entitykey.Decode([]byte(enc))
		if !ok {
			continue
		}
		if entitykey.HasPrefix(k, branch, typ, prefix) {
			hits = append(hits, hit{key: k, c: c})
		}
	}
	sh.mu.RUnlock()

	results := make([]ScanResult, 0, len(hits))
	for _, h := range hits {
		vv, ok := h.c.visibleAt(snapshotVersion, nowMicros)
		if !ok {
			continue
		}
		results = append(results, ScanResult{Key: h.key, Value: vv})
	}
	sortResults(results)
	return results
}

// ScanResult is one row of a prefix scan.
type ScanResult struct {
	Key   entitykey.Key
	Value value.VersionedValue
}

func sortResults(r []ScanResult) {
	// Insertion sort: scans are bounded by a single branch/type prefix
	// and expected to be small relative to the whole store.
	for i := 1; i < len(r); i++ {
		j := i
		for j > 0 && entitykey.Compare(r[j-1].Key, r[j].Key) > 0 {
			r[j-1], r[j] = r[j], r[j-1]
			j--
		}
	}
}

// Branches returns every branch id that currently has a shard
// (including branches whose live keys have all been tombstoned but
// whose shard hasn't been cleared), used by snapshot writing and
// derived-state rebuild to know which branches to walk.
func (s *Store) Branches() [][16]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([][16]byte, 0, len(s.shards))
	for b := range s.shards {
		out = append(out, b)
	}
	return out
}

// ClearBranch drops every chain belonging to branch. Used when a
// branch is deleted; it does not touch the WAL or manifest.
func (s *Store) ClearBranch(branch [16]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.shards, branch)
}

// GC compacts every chain in the store: versions above minVersion and
// the newest version at or below it are kept, older ones are dropped.
// Invoked only from Database.Compact (an explicit,
// caller-triggered operation — spec excludes background compaction).
func (s *Store) GC(minVersion uint64) {
	s.mu.RLock()
	shards := make([]*shard, 0, len(s.shards))
	for _, sh := range s.shards {
		shards = append(shards, sh)
	}
	s.mu.RUnlock()

	for _, sh := range shards {
		sh.mu.RLock()
		chains := make([]*Chain, 0, len(sh.chains))
		for _, c := range sh.chains {
			chains = append(chains, c)
		}
		sh.mu.RUnlock()
		for _, c := range chains {
			c.gc(minVersion)
		}
	}
}
