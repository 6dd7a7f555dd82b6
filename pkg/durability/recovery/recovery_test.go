package recovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"strata/pkg/durability/manifest"
	"strata/pkg/durability/snapshot"
	"strata/pkg/durability/wal"
	"strata/pkg/entitykey"
	"strata/pkg/primitive"
	"strata/primitive/kv"
	"strata/pkg/store"
	"strata/pkg/txn"
	"strata/pkg/value"
)

func setup(t *testing.T) (dir string, dbID uuid.UUID) {
	dir = t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, WalDirName), 0755))
	dbID = uuid.New()
	return dir, dbID
}

func newWriter(t *testing.T, dir string, dbID uuid.UUID) *wal.Writer {
	w, err := wal.OpenWriter(wal.Options{
		Dir:        filepath.Join(dir, WalDirName),
		DatabaseID: dbID,
		Mode:       wal.ModeStrict,
	}, 0, 0)
	require.NoError(t, err)
	return w
}

func TestRecoverNoManifestReturnsSentinel(t *testing.T) {
	dir := t.TempDir()
	st := store.New()
	reg := primitive.NewRegistry()
	_, err := Recover(dir, st, reg)
	require.ErrorIs(t, err, ErrNoManifest)
}

func TestRecoverReplaysWalFromZero(t *testing.T) {
	dir, dbID := setup(t)
	st := store.New()
	w := newWriter(t, dir, dbID)
	co := txn.NewCoordinator(st, w, func() int64 { return 1000 })
	p := kv.New(st)
	var branch [16]byte

	c := co.Begin(branch, 0)
	require.NoError(t, p.Put(c, []byte("a"), value.String("1"), nil))
	_, err := co.Commit(c)
	require.NoError(t, err)

	c = co.Begin(branch, 0)
	require.NoError(t, p.Put(c, []byte("b"), value.String("2"), nil))
	commitVer, err := co.Commit(c)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.NoError(t, manifest.Save(dir, manifest.Manifest{
		DatabaseID:    dbID,
		ActiveSegment: w.SegmentNumber(),
	}))

	freshSt := store.New()
	reg := primitive.NewRegistry()
	kv.New(freshSt)
	res, err := Recover(dir, freshSt, reg)
	require.NoError(t, err)
	require.Equal(t, commitVer, res.HighestCommitVersion)

	entries := kv.Scan(freshSt, branch, nil, freshSt.CurrentCommitVersion(), 2000)
	require.Len(t, entries, 2)
	require.Equal(t, "a", string(entries[0].Key))
	require.Equal(t, "b", string(entries[1].Key))
}

func TestRecoverAppliesSnapshotThenTailOnly(t *testing.T) {
	dir, dbID := setup(t)
	st := store.New()
	w := newWriter(t, dir, dbID)
	co := txn.NewCoordinator(st, w, func() int64 { return 1000 })
	p := kv.New(st)
	var branch [16]byte

	c := co.Begin(branch, 0)
	require.NoError(t, p.Put(c, []byte("a"), value.String("1"), nil))
	watermarkVer, err := co.Commit(c)
	require.NoError(t, err)

	snapDir := filepath.Join(dir, SnapshotDirName)
	section := primitive.EncodeSection(st, entitykey.TypeKV, watermarkVer, 2000)
	snapID := uuid.New()
	require.NoError(t, snapshot.Write(snapDir, snapshot.Header{
		SnapshotID:   snapID,
		WatermarkTxn: watermarkVer,
		DatabaseID:   dbID,
	}, []snapshot.Section{section}))

	c = co.Begin(branch, 0)
	require.NoError(t, p.Put(c, []byte("b"), value.String("2"), nil))
	commitVer, err := co.Commit(c)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.NoError(t, manifest.Save(dir, manifest.Manifest{
		DatabaseID:        dbID,
		ActiveSegment:     w.SegmentNumber(),
		HasSnapshot:       true,
		SnapshotID:        snapID,
		SnapshotWatermark: watermarkVer,
	}))

	freshSt := store.New()
	reg := primitive.NewRegistry()
	reg.Register(primitive.Registration{Name: "kv", TypeTags: []entitykey.TypeTag{entitykey.TypeKV}})
	kv.New(freshSt)
	res, err := Recover(dir, freshSt, reg)
	require.NoError(t, err)
	require.Equal(t, commitVer, res.HighestCommitVersion)

	entries := kv.Scan(freshSt, branch, nil, freshSt.CurrentCommitVersion(), 2000)
	require.Len(t, entries, 2)
}

func TestRecoverTruncatesTornTail(t *testing.T) {
	dir, dbID := setup(t)
	st := store.New()
	w := newWriter(t, dir, dbID)
	co := txn.NewCoordinator(st, w, func() int64 { return 1000 })
	p := kv.New(st)
	var branch [16]byte

	c := co.Begin(branch, 0)
	require.NoError(t, p.Put(c, []byte("a"), value.String("1"), nil))
	commitVer, err := co.Commit(c)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	segPath := wal.SegmentFilePath(filepath.Join(dir, WalDirName), w.SegmentNumber())
	f, err := os.OpenFile(segPath, os.O_RDWR|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0x09, 0x00, 0x00, 0x00, 0x01, 0x02})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	info, err := os.Stat(segPath)
	require.NoError(t, err)
	tornSize := info.Size()

	require.NoError(t, manifest.Save(dir, manifest.Manifest{
		DatabaseID:    dbID,
		ActiveSegment: w.SegmentNumber(),
	}))

	freshSt := store.New()
	reg := primitive.NewRegistry()
	kv.New(freshSt)
	res, err := Recover(dir, freshSt, reg)
	require.NoError(t, err)
	require.Equal(t, commitVer, res.HighestCommitVersion)

	info, err = os.Stat(segPath)
	require.NoError(t, err)
	require.Less(t, info.Size(), tornSize)
}
