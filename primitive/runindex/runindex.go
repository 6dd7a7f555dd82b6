// Package runindex implements three closely related reserved-namespace
// primitives that share one file because none is large enough to earn
// its own package: the run index itself (type tag 0x10, an ordinary
// per-branch key space for workflow/agent run records), the branch
// name→id table (reserved tag 0xF0), and the retention-policy record
// (reserved tag 0xF1, letting retention be configured as ordinary
// versioned data rather than a static setting). The latter two are
// core metadata that rides the same storage/WAL machinery as
// primitive data without being exposed through the primitive API
// surface — pkg/database is their only caller. Grounded on the
// teacher's pkg/catalog name registry (name validation, duplicate
// rejection) generalized onto the shared entity-key/txn machinery.
package runindex

import (
	"errors"

	"strata/pkg/entitykey"
	"strata/pkg/primitive"
	"strata/pkg/store"
	"strata/pkg/txn"
	"strata/pkg/value"
)

// SystemBranch is the reserved all-zero branch id the branch name
// table lives under: it describes branches themselves, so it cannot
// be scoped to any one of them.
var SystemBranch [16]byte

// ErrBranchNameTaken is returned by RegisterBranch when the name is
// already registered to a (possibly different) branch id.
var ErrBranchNameTaken = errors.New("runindex: branch name already registered")

// retentionUserKey is the single fixed key each branch's retention
// policy record lives at; there is exactly one per branch.
var retentionUserKey = []byte{0x01}

// Primitive wires the run index, branch name table, and retention
// policy record onto a shared store.
type Primitive struct {
	store *store.Store
}

// New returns a runindex primitive backed by core, registered with reg
// under all three type tags it owns. All three are materialized store
// state, not derived — no Rebuild hook is needed.
func New(core *store.Store, reg *primitive.Registry) *Primitive {
	reg.Register(primitive.Registration{
		Name: "runindex",
		TypeTags: []entitykey.TypeTag{
			entitykey.TypeRunIndex,
			entitykey.TypeBranchName,
			entitykey.TypeRetentionPolicy,
		},
	})
	return &Primitive{store: core}
}

// --- Run index (type tag 0x10) ---

func runKey(branch [16]byte, runID []byte) (entitykey.Key, error) {
	return entitykey.New(branch, entitykey.TypeRunIndex, runID)
}

// PutRun writes a run record, creating or overwriting it.
func (p *Primitive) PutRun(c *txn.Context, runID []byte, v value.Value) error {
	k, err := runKey(c.Branch, runID)
	if err != nil {
		return err
	}
	c.BufferPut(k, v, nil)
	return nil
}

// GetRun reads one run record, if present.
func (p *Primitive) GetRun(c *txn.Context, runID []byte, nowMicros int64) (value.Value, bool, error) {
	k, err := runKey(c.Branch, runID)
	if err != nil {
		return value.Value{}, false, err
	}
	vv, ok := txn.Read(p.store, c, k, nowMicros)
	if !ok {
		return value.Value{}, false, nil
	}
	return vv.Value, true, nil
}

// RunEntry is one row of a ScanRuns result.
type RunEntry struct {
	RunID []byte
	Value value.Value
}

// ScanRuns lists every run in branch whose id starts with prefix.
func ScanRuns(core *store.Store, branch [16]byte, prefix []byte, snapshotVersion uint64, nowMicros int64) []RunEntry {
	rows := core.ScanPrefix(branch, entitykey.TypeRunIndex, prefix, snapshotVersion, nowMicros)
	out := make([]RunEntry, len(rows))
	for i, r := range rows {
		out[i] = RunEntry{RunID: r.Key.UserKey, Value: r.Value.Value}
	}
	return out
}

// --- Branch name table (reserved type tag 0xF0) ---

func branchNameKey(name string) (entitykey.Key, error) {
	return entitykey.New(SystemBranch, entitykey.TypeBranchName, []byte(name))
}

// RegisterBranch binds name to branchID. It fails with
// ErrBranchNameTaken if this context observes the name already
// registered, and stages a cas-absent precondition so two concurrent
// registrations of the same name can't both succeed.
func (p *Primitive) RegisterBranch(c *txn.Context, name string, branchID [16]byte) error {
	k, err := branchNameKey(name)
	if err != nil {
		return err
	}
	if _, ok := txn.Read(p.store, c, k, 0); ok {
		return ErrBranchNameTaken
	}
	c.RequireVersion(k, value.Version{}, false)
	c.BufferPut(k, value.Bytes(branchID[:]), nil)
	return nil
}

// ResolveBranch looks up the branch id registered to name.
func (p *Primitive) ResolveBranch(c *txn.Context, name string, nowMicros int64) ([16]byte, bool, error) {
	k, err := branchNameKey(name)
	if err != nil {
		return [16]byte{}, false, err
	}
	vv, ok := txn.Read(p.store, c, k, nowMicros)
	if !ok {
		return [16]byte{}, false, nil
	}
	var id [16]byte
	copy(id[:], vv.Value.Blob())
	return id, true, nil
}

// DropBranchName removes name's registration, used when a branch is
// deleted.
func (p *Primitive) DropBranchName(c *txn.Context, name string) error {
	k, err := branchNameKey(name)
	if err != nil {
		return err
	}
	c.BufferDelete(k)
	return nil
}

// BranchNameEntry is one row of a ListBranchNames result.
type BranchNameEntry struct {
	Name     string
	BranchID [16]byte
}

// ListBranchNames returns every registered branch name, in name order.
func ListBranchNames(core *store.Store, snapshotVersion uint64, nowMicros int64) []BranchNameEntry {
	rows := core.ScanPrefix(SystemBranch, entitykey.TypeBranchName, nil, snapshotVersion, nowMicros)
	out := make([]BranchNameEntry, len(rows))
	for i, r := range rows {
		var id [16]byte
		copy(id[:], r.Value.Value.Blob())
		out[i] = BranchNameEntry{Name: string(r.Key.UserKey), BranchID: id}
	}
	return out
}

// --- Retention policy record (reserved type tag 0xF1) ---

func retentionKey(branch [16]byte) (entitykey.Key, error) {
	return entitykey.New(branch, entitykey.TypeRetentionPolicy, retentionUserKey)
}

// RetentionPolicy is a per-branch retention configuration record: how
// many snapshot files to keep, and a hint for the lowest version GC
// should prune below. The engine does not read it: Database.Checkpoint
// takes its retention count from Config and Database.Compact works
// from the snapshot watermark.
type RetentionPolicy struct {
	SnapshotRetentionCount int64
	GCMinVersionHint       uint64
}

// SetRetentionPolicy writes pol for c's branch, as an ordinary
// versioned value like any user data — no manifest involvement.
func (p *Primitive) SetRetentionPolicy(c *txn.Context, pol RetentionPolicy) error {
	k, err := retentionKey(c.Branch)
	if err != nil {
		return err
	}
	v := value.Map([]value.Entry{
		{Key: "snapshot_retention_count", Val: value.Int(pol.SnapshotRetentionCount)},
		{Key: "gc_min_version_hint", Val: value.Int(int64(pol.GCMinVersionHint))},
	})
	c.BufferPut(k, v, nil)
	return nil
}

// GetRetentionPolicy reads c's branch's retention policy, if one has
// been set.
func (p *Primitive) GetRetentionPolicy(c *txn.Context, nowMicros int64) (RetentionPolicy, bool, error) {
	k, err := retentionKey(c.Branch)
	if err != nil {
		return RetentionPolicy{}, false, err
	}
	vv, ok := txn.Read(p.store, c, k, nowMicros)
	if !ok {
		return RetentionPolicy{}, false, nil
	}
	var pol RetentionPolicy
	for _, e := range vv.Value.Entries() {
		switch e.Key {
		case "snapshot_retention_count":
			pol.SnapshotRetentionCount = e.Val.Int()
		case "gc_min_version_hint":
			pol.GCMinVersionHint = uint64(e.Val.Int())
		}
	}
	return pol, true, nil
}
