package txn

import (
	"errors"
	"sync"
	"sync/atomic"

	"strata/internal/obslog"
	"strata/pkg/entitykey"
	"strata/pkg/store"
	"strata/pkg/value"
)

var (
	// ErrAborted is returned by Commit when validation fails: a read
	// key changed since the snapshot, or a cas precondition no longer
	// holds. The caller must retry the whole transaction.
	ErrAborted = errors.New("txn: validation failed, transaction aborted")
	// ErrDeadlineExceeded is returned when an operation is attempted
	// past the context's recorded deadline.
	ErrDeadlineExceeded = errors.New("txn: context budget exceeded")
	// ErrNotActive is returned by any operation on a context that has
	// already committed or aborted.
	ErrNotActive = errors.New("txn: context is not active")
)

// WalAppend is the durability hook the coordinator calls, inside the
// branch commit lock, after validation succeeds and before applying
// writes to the store. Implemented by pkg/durability/wal.Writer; kept
// as an interface here so pkg/txn does not import the WAL package.
type WalAppend interface {
	Append(rec Record) error
}

// Mutation is one write within a committing transaction's record, in
// the uniform shape the WAL codec and the store both consume. Ver is
// resolved once, at commit time, from the buffered write's override
// (or the record's commit_version if it had none) and travels with
// the mutation from there on — the WAL persists it verbatim and
// recovery applies it as-is, so a version is allocated exactly once
// and never recomputed on replay.
type Mutation struct {
	Key       entitykey.Key
	Tombstone bool
	Value     value.Value
	TTL       *int64
	Ver       value.Version
}

// Record is everything the durability engine needs to persist one
// committed transaction: identity, the branch it ran against, the
// commit_version it was assigned, and its mutations in apply order.
type Record struct {
	TxnID         uint64
	Branch        [16]byte
	CommitVersion uint64
	CommitTimeMicros int64
	Mutations     []Mutation
}

// NowMicros is overridden by callers (Database) with a monotonic wall
// clock source; txn itself never calls time.Now so tests can drive it
// deterministically.
type NowMicros func() int64

// Coordinator runs the commit protocol: validate, allocate a
// commit_version, persist to the WAL, apply to the store, all inside
// a per-branch mutex that serializes commits on the same branch
// (transactions against different branches commit independently).
type Coordinator struct {
	store *store.Store
	wal   WalAppend
	now   NowMicros

	mu          sync.Mutex
	branchLocks map[[16]byte]*sync.Mutex
	nextTxnID   uint64
}

// NewCoordinator builds a Coordinator over st, persisting committed
// records through wal. now supplies commit timestamps.
func NewCoordinator(st *store.Store, wal WalAppend, now NowMicros) *Coordinator {
	return &Coordinator{
		store:       st,
		wal:         wal,
		now:         now,
		branchLocks: make(map[[16]byte]*sync.Mutex),
	}
}

func (co *Coordinator) lockFor(branch [16]byte) *sync.Mutex {
	co.mu.Lock()
	defer co.mu.Unlock()
	l := co.branchLocks[branch]
	if l == nil {
		l = &sync.Mutex{}
		co.branchLocks[branch] = l
	}
	return l
}

// DropBranchLock removes a branch's commit mutex once the branch is
// deleted, so the map doesn't grow unbounded across a long-lived
// database's lifetime.
func (co *Coordinator) DropBranchLock(branch [16]byte) {
	co.mu.Lock()
	defer co.mu.Unlock()
	delete(co.branchLocks, branch)
}

// Begin starts a new transaction context against branch, snapshotting
// the store's current commit_version as the read boundary.
func (co *Coordinator) Begin(branch [16]byte, deadlineAt int64) *Context {
	id := atomic.AddUint64(&co.nextTxnID, 1)
	snap := co.store.CurrentCommitVersion()
	c := Acquire(id, branch, snap)
	c.DeadlineAt = deadlineAt
	return c
}

// CheckDeadline reports ErrDeadlineExceeded if nowMicros has passed
// c's recorded deadline. Primitives call this before buffering each
// operation so a stalled caller fails fast rather than holding a long
// read snapshot.
func (c *Context) CheckDeadline(nowMicros int64) error {
	if c.status != StatusActive {
		return ErrNotActive
	}
	if c.DeadlineAt != 0 && nowMicros >= c.DeadlineAt {
		return ErrDeadlineExceeded
	}
	return nil
}

// Abort marks c aborted. Buffered writes are simply discarded; they
// were never applied to the store.
func (co *Coordinator) Abort(c *Context) {
	c.status = StatusAborted
}

// Commit runs the eight-step OCC protocol:
//  1. Re-validate every key in the read set still has the commit
//     version observed at read time (no intervening commit touched it).
//  2. Re-validate every cas precondition still holds against current
//     store state.
//  3. Allocate a new commit_version.
//  4. Build the durable Record from the buffered writes.
//  5. Append the record through the WAL writer (blocks until the
//     configured durability mode is satisfied).
//  6. Apply every mutation to the store.
//  7. Mark the context committed.
//  8. Return the commit_version to the caller.
//
// All of this runs under the branch's commit mutex, so only one
// transaction per branch can be mid-commit at a time; transactions on
// different branches proceed fully in parallel.
func (co *Coordinator) Commit(c *Context) (uint64, error) {
	if c.status != StatusActive {
		return 0, ErrNotActive
	}

	lock := co.lockFor(c.Branch)
	lock.Lock()
	defer lock.Unlock()

	log := obslog.WithComponent("txn")

	// Step 1: validate read set.
	for enc, observed := range c.reads {
		k, ok := entitykey.Decode([]byte(enc))
		if !ok {
			continue
		}
		// A tombstoned head counts as absent (0), the same way Read
		// records a miss.
		cur, deleted, found := co.store.CurrentVersion(k)
		curNum := uint64(0)
		if found && !deleted {
			curNum = cur.Number()
		}
		if curNum != observed {
			c.status = StatusAborted
			log.Debug().Uint64("txn_id", c.ID).Msg("read set validation failed")
			return 0, ErrAborted
		}
	}

	// Step 2: validate cas set.
	for _, chk := range c.casChks {
		cur, deleted, found := co.store.CurrentVersion(chk.key)
		switch {
		case !chk.hadValue && found && !deleted:
			c.status = StatusAborted
			return 0, ErrAborted
		case chk.hadValue && (!found || deleted):
			c.status = StatusAborted
			return 0, ErrAborted
		case chk.hadValue && found && !cur.Equal(chk.expected):
			c.status = StatusAborted
			return 0, ErrAborted
		}
	}

	// Step 3: allocate commit_version.
	commitVer := co.store.NextCommitVersion()
	nowMicros := co.now()

	// Step 4: build the durable record. Each write's Version defaults to
	// Txn(commit_version) unless the primitive requested a different
	// kind via BufferPutVersioned.
	muts := make([]Mutation, 0, len(c.writes))
	for _, w := range c.writes {
		ver := value.Txn(commitVer)
		if w.verOverride != nil {
			ver = *w.verOverride
		}
		muts = append(muts, Mutation{Key: w.key, Tombstone: w.tombstone, Value: w.val, TTL: w.ttl, Ver: ver})
	}
	rec := Record{
		TxnID:            c.ID,
		Branch:           c.Branch,
		CommitVersion:    commitVer,
		CommitTimeMicros: nowMicros,
		Mutations:        muts,
	}

	// Step 5: persist.
	if co.wal != nil {
		if err := co.wal.Append(rec); err != nil {
			c.status = StatusAborted
			return 0, err
		}
	}

	// Step 6: apply to the store.
	applyRecord(co.store, rec)

	// Step 7-8.
	c.status = StatusCommitted
	return commitVer, nil
}

// applyRecord writes every mutation in rec to st, used identically by
// Coordinator.Commit and by recovery replay so the two paths can never
// diverge in how a record becomes store state.
func applyRecord(st *store.Store, rec Record) {
	for _, m := range rec.Mutations {
		if m.Tombstone {
			st.ApplyTombstone(m.Key, m.Ver, rec.CommitTimeMicros, rec.CommitVersion)
			continue
		}
		st.Apply(m.Key, value.VersionedValue{
			Value:         m.Val(),
			Ver:           m.Ver,
			CreatedAt:     rec.CommitTimeMicros,
			TTL:           m.TTL,
			CommitVersion: rec.CommitVersion,
		})
	}
}

// Val returns m's payload value; named to read naturally at the call
// site above without shadowing the Value field.
func (m Mutation) Val() value.Value { return m.Value }

// ApplyRecord re-applies a previously durable Record to st without
// going through the commit protocol: recovery's only path back into
// store state, reusing the exact same mutation semantics Commit uses.
func ApplyRecord(st *store.Store, rec Record) {
	applyRecord(st, rec)
}
