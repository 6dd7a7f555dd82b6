package database

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"strata/internal/obslog"
	"strata/pkg/durability/fsyncdir"
	"strata/pkg/durability/manifest"
	"strata/pkg/durability/recovery"
	"strata/pkg/durability/snapshot"
	"strata/pkg/durability/wal"
	"strata/pkg/entitykey"
	"strata/pkg/primitive"
	"strata/pkg/store"
	"strata/pkg/txn"
	"strata/primitive/eventlog"
	"strata/primitive/jsondoc"
	"strata/primitive/kv"
	"strata/primitive/runindex"
	"strata/primitive/statecell"
	"strata/primitive/trace"
	"strata/primitive/vectorindex"
)

// EnvDataDir is the conventional (not required) environment variable
// naming a default database directory.
const EnvDataDir = "STRATA_DATA_DIR"

const defaultVectorDimension = 128

// Config configures Open, following the teacher's turdb.Options /
// pager.Options pattern: a plain struct of zero-valued fields with
// DefaultConfig filling in the gaps rather than env-var magic.
type Config struct {
	// DurabilityMode selects Cache/Buffered/Strict WAL behavior.
	DurabilityMode wal.Mode
	// SegmentMaxBytes bounds one WAL segment before rotation (default 64 MiB).
	SegmentMaxBytes int64
	// BatchSize, ByteThreshold, IntervalMillis configure ModeBuffered's
	// overdue-sync thresholds; ignored in other modes.
	BatchSize      int
	ByteThreshold  int64
	IntervalMillis int64
	// CodecID identifies the value/mutation wire format. An existing
	// database opened with a different CodecID fails with
	// CodeCodecMismatch.
	CodecID uint8
	// SnapshotRetentionCount bounds how many snapshot files Checkpoint
	// keeps (default 2).
	SnapshotRetentionCount int
	// VectorDimension and VectorMetric configure the one shared vector
	// collection space this database's vectorindex primitive serves.
	VectorDimension int
	VectorMetric    vectorindex.DistanceMetric
	// TxnBudgetMicros bounds how long a transaction context may stay
	// Active before the next operation on it aborts with
	// TransactionAborted. Zero means no deadline.
	TxnBudgetMicros int64
	// Now supplies commit timestamps and deadlines; defaults to the
	// wall clock. Tests override it for deterministic timestamps.
	Now func() int64
	// LogLevel and LogOutput configure internal/obslog. Zero value
	// (LevelDebug omitted) plus nil Output leaves obslog's own default
	// (info level to stderr) untouched.
	LogLevel zerolog.Level
	LogOutput io.Writer
}

// DefaultConfig returns Strict-durability defaults suitable for a
// single-process embedded deployment.
func DefaultConfig() Config {
	return Config{
		DurabilityMode:         wal.ModeStrict,
		SegmentMaxBytes:        64 << 20,
		BatchSize:              100,
		ByteThreshold:          4 << 20,
		IntervalMillis:         1000,
		CodecID:                0,
		SnapshotRetentionCount: 2,
		VectorDimension:        defaultVectorDimension,
		VectorMetric:           vectorindex.DistanceCosine,
	}
}

func (cfg Config) withDefaults() Config {
	if cfg.SegmentMaxBytes <= 0 {
		cfg.SegmentMaxBytes = 64 << 20
	}
	if cfg.SnapshotRetentionCount <= 0 {
		cfg.SnapshotRetentionCount = 2
	}
	if cfg.VectorDimension <= 0 {
		cfg.VectorDimension = defaultVectorDimension
	}
	return cfg
}

func (cfg Config) nowFn() func() int64 {
	if cfg.Now != nil {
		return cfg.Now
	}
	return func() int64 { return time.Now().UnixMicro() }
}

// lockFileName is the advisory single-open lock held for the
// database directory's lifetime, separate from MANIFEST so a reader
// can inspect MANIFEST without contending for the lock.
const lockFileName = "LOCK"

// Database is the facade over one store, one coordinator, and one
// durability engine: Open/Close/Checkpoint/Compact/Transaction, plus
// branch name-to-id resolution and the per-branch commit-lock cleanup
// that goes with dropping a branch.
type Database struct {
	dir        string
	cfg        Config
	databaseID uuid.UUID
	lockFile   *os.File

	store       *store.Store
	coordinator *txn.Coordinator
	wal         *wal.Writer
	registry    *primitive.Registry
	now         func() int64

	kv          *kv.Primitive
	eventLog    *eventlog.Primitive
	stateCell   *statecell.Primitive
	trace       *trace.Primitive
	runIndex    *runindex.Primitive
	jsonDoc     *jsondoc.Primitive
	vectorIndex *vectorindex.Primitive

	mu       sync.RWMutex
	manifest manifest.Manifest
	closed   bool

	checkpointMu sync.Mutex
}

// Open opens (or initializes) a database at dir. An empty or
// nonexistent dir initializes a fresh database; an existing one is
// recovered before Open returns.
func Open(dir string, cfg Config) (*Database, error) {
	cfg = cfg.withDefaults()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, classify(err)
	}

	lockFile, err := fsyncdir.Lock(filepath.Join(dir, lockFileName))
	if err != nil {
		return nil, classify(err)
	}

	if cfg.LogOutput != nil {
		obslog.Init(obslog.Config{Level: cfg.LogLevel, Output: cfg.LogOutput})
	}

	st := store.New()
	reg := primitive.NewRegistry()

	kvP := kv.New(st)
	reg.Register(primitive.Registration{Name: "kv", TypeTags: []entitykey.TypeTag{entitykey.TypeKV}})
	eventP := eventlog.New(st, reg)
	stateP := statecell.New(st, reg)
	traceP := trace.New(st, reg)
	runP := runindex.New(st, reg)
	jsonP := jsondoc.New(st, reg)
	vecCfg := vectorindex.DefaultConfig(cfg.VectorDimension, cfg.VectorMetric)
	vecP := vectorindex.New(st, reg, vecCfg)

	result, recErr := recovery.Recover(dir, st, reg)

	var man manifest.Manifest
	var dbID uuid.UUID
	fresh := false
	var segNum uint64 = 1
	var segSize int64

	switch {
	case recErr == nil:
		man = result.Manifest
		if man.CodecID != cfg.CodecID {
			fsyncdir.Unlock(lockFile)
			return nil, newErr(CodeCodecMismatch, "configured codec does not match database's stored codec", nil)
		}
		dbID = man.DatabaseID
		segNum = result.NextSegment
		segSize = result.NextSegmentSize
	case errors.Is(recErr, recovery.ErrNoManifest):
		fresh = true
		dbID = uuid.New()
		man = manifest.Manifest{DatabaseID: dbID, CodecID: cfg.CodecID, ActiveSegment: segNum}
	default:
		fsyncdir.Unlock(lockFile)
		return nil, classify(recErr)
	}

	walDir := filepath.Join(dir, recovery.WalDirName)
	w, err := wal.OpenWriter(wal.Options{
		Dir:             walDir,
		DatabaseID:      dbID,
		Mode:            cfg.DurabilityMode,
		SegmentMaxBytes: cfg.SegmentMaxBytes,
		BatchSize:       cfg.BatchSize,
		ByteThreshold:   cfg.ByteThreshold,
		IntervalMillis:  cfg.IntervalMillis,
	}, segNum, segSize)
	if err != nil {
		fsyncdir.Unlock(lockFile)
		return nil, classify(err)
	}

	if fresh {
		man.ActiveSegment = w.SegmentNumber()
		if err := manifest.Save(dir, man); err != nil {
			w.Close()
			fsyncdir.Unlock(lockFile)
			return nil, classify(err)
		}
	}

	nowFn := cfg.nowFn()
	co := txn.NewCoordinator(st, w, nowFn)

	db := &Database{
		dir:         dir,
		cfg:         cfg,
		databaseID:  dbID,
		lockFile:    lockFile,
		store:       st,
		coordinator: co,
		wal:         w,
		registry:    reg,
		now:         nowFn,
		kv:          kvP,
		eventLog:    eventP,
		stateCell:   stateP,
		trace:       traceP,
		runIndex:    runP,
		jsonDoc:     jsonP,
		vectorIndex: vecP,
		manifest:    man,
	}

	obslog.WithComponent("database").Info().
		Str("dir", dir).
		Str("database_id", dbID.String()).
		Bool("fresh", fresh).
		Msg("database open")

	return db, nil
}

// OpenDefault opens a database rooted at STRATA_DATA_DIR, falling
// back to "./strata-data" if the environment variable is unset.
func OpenDefault(cfg Config) (*Database, error) {
	dir := os.Getenv(EnvDataDir)
	if dir == "" {
		dir = "./strata-data"
	}
	return Open(dir, cfg)
}

// DatabaseID returns this database's stable identity, stamped into
// every WAL segment header and snapshot header.
func (d *Database) DatabaseID() uuid.UUID { return d.databaseID }

// CurrentVersion returns the store's last allocated commit_version.
func (d *Database) CurrentVersion() uint64 { return d.store.CurrentCommitVersion() }

// Store exposes the underlying sharded store for the package-level
// Scan helpers each primitive package provides (kv.Scan,
// eventlog.Scan, and so on), which read directly against it rather
// than through a transaction.
func (d *Database) Store() *store.Store { return d.store }

// KV, EventLog, StateCell, Trace, RunIndex, JSONDoc, and VectorIndex
// expose the seven primitive APIs. Every write they buffer must be
// run inside a Transaction to become durable.
func (d *Database) KV() *kv.Primitive                   { return d.kv }
func (d *Database) EventLog() *eventlog.Primitive       { return d.eventLog }
func (d *Database) StateCell() *statecell.Primitive     { return d.stateCell }
func (d *Database) Trace() *trace.Primitive             { return d.trace }
func (d *Database) RunIndex() *runindex.Primitive       { return d.runIndex }
func (d *Database) JSONDoc() *jsondoc.Primitive         { return d.jsonDoc }
func (d *Database) VectorIndex() *vectorindex.Primitive { return d.vectorIndex }

func (d *Database) isClosed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}

// Transaction runs fn against a fresh TxnContext on branch, committing
// on a nil return and aborting (discarding every buffered write) on a
// non-nil return or a panic. It returns the allocated commit_version
// on success.
func (d *Database) Transaction(branch [16]byte, fn func(c *txn.Context) error) (uint64, error) {
	if d.isClosed() {
		return 0, newErr(CodeIO, "database is closed", nil)
	}

	var deadline int64
	if d.cfg.TxnBudgetMicros > 0 {
		deadline = d.now() + d.cfg.TxnBudgetMicros
	}

	c := d.coordinator.Begin(branch, deadline)
	defer txn.Release(c)

	runErr := runTxnFunc(fn, c)
	if runErr != nil {
		d.coordinator.Abort(c)
		return 0, classify(runErr)
	}

	ver, err := d.coordinator.Commit(c)
	if err != nil {
		return 0, classify(err)
	}

	// The vector index's HNSW graph is a read-path accelerator derived
	// from, not part of, committed state; any commit on this branch may
	// have touched it, so mark it dirty unconditionally rather than
	// inspecting the writeset for vectorindex-tagged keys.
	d.vectorIndex.MarkDirty(branch)

	return ver, nil
}

// runTxnFunc recovers a panic from fn as an error so Transaction can
// still abort cleanly and release c back to the pool; a primitive
// closure panicking mid-transaction must not leak a held commit lock
// or a context stuck in StatusActive.
func runTxnFunc(fn func(c *txn.Context) error, c *txn.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("database: transaction closure panicked: %v", r)
		}
	}()
	return fn(c)
}

// CreateBranch generates a fresh branch identity, registers name to
// it in the reserved branch-name table, and returns the new id.
func (d *Database) CreateBranch(name string) ([16]byte, error) {
	id := uuid.New()
	var arr [16]byte
	copy(arr[:], id[:])

	_, err := d.Transaction(runindex.SystemBranch, func(c *txn.Context) error {
		return d.runIndex.RegisterBranch(c, name, arr)
	})
	if err != nil {
		return [16]byte{}, err
	}
	return arr, nil
}

// ResolveBranch looks up the branch id registered to name.
func (d *Database) ResolveBranch(name string) ([16]byte, error) {
	var id [16]byte
	var found bool

	_, err := d.Transaction(runindex.SystemBranch, func(c *txn.Context) error {
		var rerr error
		id, found, rerr = d.runIndex.ResolveBranch(c, name, d.now())
		return rerr
	})
	if err != nil {
		return [16]byte{}, err
	}
	if !found {
		return [16]byte{}, newErr(CodeBranchNotFound, fmt.Sprintf("branch %q not found", name), ErrBranchNotFound)
	}
	return id, nil
}

// DeleteBranch drops name's registration and clears every entity in
// the branch's shard, including dropping its commit-lock entry so the
// coordinator's branch-lock map doesn't grow unbounded as branches
// come and go.
func (d *Database) DeleteBranch(name string) error {
	id, err := d.ResolveBranch(name)
	if err != nil {
		return err
	}

	if _, err := d.Transaction(runindex.SystemBranch, func(c *txn.Context) error {
		return d.runIndex.DropBranchName(c, name)
	}); err != nil {
		return err
	}

	d.store.ClearBranch(id)
	d.coordinator.DropBranchLock(id)
	return nil
}

// ListBranches returns every registered branch name and id, in name order.
func (d *Database) ListBranches() []runindex.BranchNameEntry {
	return runindex.ListBranchNames(d.store, d.store.CurrentCommitVersion(), d.now())
}

// Close flushes the WAL, persists a final manifest, and releases the
// directory lock. It is an error to call Close more than once.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return newErr(CodeIO, "database already closed", nil)
	}
	d.closed = true

	segNum := d.wal.SegmentNumber()

	if err := d.wal.Flush(); err != nil {
		return classify(err)
	}
	if err := d.wal.Close(); err != nil {
		return classify(err)
	}

	d.manifest.ActiveSegment = segNum
	if err := manifest.Save(d.dir, d.manifest); err != nil {
		return classify(err)
	}

	if err := fsyncdir.Unlock(d.lockFile); err != nil {
		return classify(err)
	}

	obslog.WithComponent("database").Info().Str("dir", d.dir).Msg("database closed")
	return nil
}

// CheckpointResult reports what Checkpoint produced.
type CheckpointResult struct {
	SnapshotID   uuid.UUID
	WatermarkTxn uint64
}

// Checkpoint synchronously materializes every registered primitive's
// current state into a new snapshot file, publishes it through the
// manifest, flushes the WAL so the snapshot and the WAL agree on a
// durable point, and applies snapshot retention. It serializes against
// concurrent checkpoints (not against ordinary transactions, which
// read through the store's own snapshot isolation while this runs).
func (d *Database) Checkpoint() (CheckpointResult, error) {
	if d.isClosed() {
		return CheckpointResult{}, newErr(CodeIO, "database is closed", nil)
	}

	d.checkpointMu.Lock()
	defer d.checkpointMu.Unlock()

	watermark := d.store.CurrentCommitVersion()
	now := d.now()

	var sections []snapshot.Section
	for _, reg := range d.registry.All() {
		for _, tag := range reg.TypeTags {
			sections = append(sections, primitive.EncodeSection(d.store, tag, watermark, now))
		}
	}

	snapID := uuid.New()
	snapDir := filepath.Join(d.dir, recovery.SnapshotDirName)
	hdr := snapshot.Header{
		SnapshotID:    snapID,
		WatermarkTxn:  watermark,
		CreatedAtUnix: now / 1_000_000,
		DatabaseID:    d.databaseID,
		CodecID:       d.cfg.CodecID,
	}
	if err := snapshot.Write(snapDir, hdr, sections); err != nil {
		return CheckpointResult{}, classify(err)
	}

	if err := d.wal.Flush(); err != nil {
		return CheckpointResult{}, classify(err)
	}

	d.mu.Lock()
	d.manifest.SnapshotID = snapID
	d.manifest.SnapshotWatermark = watermark
	d.manifest.HasSnapshot = true
	d.manifest.ActiveSegment = d.wal.SegmentNumber()
	man := d.manifest
	d.mu.Unlock()

	if err := manifest.Save(d.dir, man); err != nil {
		return CheckpointResult{}, classify(err)
	}

	if err := snapshot.Retention(snapDir, d.cfg.SnapshotRetentionCount); err != nil {
		return CheckpointResult{}, classify(err)
	}

	obslog.WithComponent("database").Info().
		Str("snapshot_id", snapID.String()).
		Uint64("watermark", watermark).
		Msg("checkpoint complete")

	return CheckpointResult{SnapshotID: snapID, WatermarkTxn: watermark}, nil
}

// CompactMode selects Compact's scope.
type CompactMode int

const (
	// CompactWalOnly removes WAL segments entirely covered by the
	// latest snapshot's watermark.
	CompactWalOnly CompactMode = iota
	// CompactFull additionally runs version-chain GC down to the
	// watermark.
	CompactFull
)

// Compact removes WAL segments made redundant by the latest
// checkpoint and, in CompactFull mode, prunes version-chain history
// below the snapshot watermark. It is a no-op (not an error) if no
// checkpoint has ever run, since there is no watermark to compact
// against yet.
func (d *Database) Compact(mode CompactMode) error {
	if d.isClosed() {
		return newErr(CodeIO, "database is closed", nil)
	}

	d.mu.RLock()
	hasSnapshot := d.manifest.HasSnapshot
	watermark := d.manifest.SnapshotWatermark
	d.mu.RUnlock()

	if !hasSnapshot {
		return nil
	}

	activeSeg := d.wal.SegmentNumber()
	walDir := filepath.Join(d.dir, recovery.WalDirName)
	segs, err := wal.ListSegments(walDir)
	if err != nil {
		return classify(err)
	}

	log := obslog.WithComponent("database")
	for _, segNum := range segs {
		if segNum >= activeSeg {
			continue
		}
		highest, err := highestCommitInSegment(walDir, segNum, d.databaseID)
		if err != nil {
			return classify(err)
		}
		if highest <= watermark {
			if err := os.Remove(wal.SegmentFilePath(walDir, segNum)); err != nil {
				return classify(err)
			}
			log.Info().Uint64("segment", segNum).Msg("compacted WAL segment entirely below watermark")
		}
	}

	if mode == CompactFull {
		d.store.GC(watermark)
		log.Info().Uint64("watermark", watermark).Msg("compacted version chains below watermark")
	}

	return nil
}

// highestCommitInSegment scans segment segNum end to end and returns
// the highest commit_version it contains, used by Compact to decide
// whether the whole segment is redundant with the current snapshot.
func highestCommitInSegment(walDir string, segNum uint64, dbID uuid.UUID) (uint64, error) {
	r, err := wal.OpenReader(walDir, segNum, dbID)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	var highest uint64
	for {
		rec, ok, reason, err := r.Next()
		if err != nil {
			return highest, err
		}
		if !ok {
			if reason == wal.StopEndOfData {
				return highest, nil
			}
			return highest, fmt.Errorf("database: segment %d ended with %v before compaction could trust it", segNum, reason)
		}
		if rec.CommitVersion > highest {
			highest = rec.CommitVersion
		}
	}
}
