// Package recovery rebuilds an in-memory Store back to its last
// durable state: load the manifest, apply the newest valid snapshot
// (falling back to a full WAL replay from the beginning if the
// snapshot is missing or corrupt), then replay whatever WAL history
// comes after the snapshot's watermark. A torn tail on the last
// segment — the expected shape of a crash mid-append — is truncated
// rather than treated as an error; any other corruption is not.
// Grounded in the teacher's startup recovery pass (replay-then-open),
// generalized from one B-tree WAL to Strata's segmented log plus
// section-tagged snapshots.
package recovery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"strata/internal/obslog"
	"strata/pkg/durability/manifest"
	"strata/pkg/durability/snapshot"
	"strata/pkg/durability/wal"
	"strata/pkg/entitykey"
	"strata/pkg/primitive"
	"strata/pkg/store"
	"strata/pkg/txn"
)

// WalDirName and SnapshotDirName are the fixed subdirectory names
// under a database's root directory.
const (
	WalDirName      = "WAL"
	SnapshotDirName = "SNAPSHOTS"
)

// ErrNoManifest is returned by Recover when dir has never held a
// database: the caller should initialize a fresh one instead of
// treating this as a failure.
var ErrNoManifest = errors.New("recovery: no manifest in directory, nothing to recover")

// Result reports what recovery found, so Database.Open knows where to
// resume issuing commit versions and appending WAL records.
type Result struct {
	Manifest manifest.Manifest
	// NextSegment is the WAL segment number the writer should resume
	// appending to.
	NextSegment uint64
	// NextSegmentSize is the current on-disk length of NextSegment's
	// file (SegmentHeaderSize if the segment was never opened before),
	// so the writer knows where within it to continue appending.
	NextSegmentSize int64
	// HighestCommitVersion is the highest commit_version recovery
	// observed, across the snapshot watermark and every replayed
	// record, so the store's counter can resume from exactly there.
	HighestCommitVersion uint64
}

// Recover loads dir's manifest and reconstructs st's contents from the
// most recent snapshot plus any WAL history after it. reg's Rebuild
// hooks run once at the end, over every branch the store now holds,
// to reconstruct derived state (the vector index's HNSW graphs).
func Recover(dir string, st *store.Store, reg *primitive.Registry) (Result, error) {
	m, err := manifest.Load(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{}, ErrNoManifest
		}
		return Result{}, fmt.Errorf("recovery: load manifest: %w", err)
	}

	log := obslog.WithComponent("recovery")
	watermark := uint64(0)

	if m.HasSnapshot {
		snapDir := filepath.Join(dir, SnapshotDirName)
		hdr, sections, err := snapshot.Read(snapDir, m.SnapshotID)
		if err != nil {
			log.Warn().Err(err).Str("snapshot_id", m.SnapshotID.String()).
				Msg("snapshot unreadable or corrupt, falling back to full WAL replay")
		} else {
			for _, sec := range sections {
				if _, ok := reg.Owner(entitykey.TypeTag(sec.Type)); !ok {
					log.Warn().Uint8("type_tag", sec.Type).Msg("snapshot section has no registered owner, skipping")
					continue
				}
				if err := primitive.DecodeSection(st, sec); err != nil {
					return Result{}, fmt.Errorf("recovery: decode snapshot section %#x: %w", sec.Type, err)
				}
			}
			watermark = hdr.WatermarkTxn
		}
	}

	highest := watermark
	walDir := filepath.Join(dir, WalDirName)
	segs, err := wal.ListSegments(walDir)
	if err != nil {
		return Result{}, fmt.Errorf("recovery: list WAL segments: %w", err)
	}

	for i, segNum := range segs {
		isLast := i == len(segs)-1
		h, err := replaySegment(walDir, segNum, m.DatabaseID, st, watermark, isLast)
		if err != nil {
			return Result{}, fmt.Errorf("recovery: replay segment %d: %w", segNum, err)
		}
		if h > highest {
			highest = h
		}
	}

	st.RestoreCommitVersion(highest)

	if err := reg.RebuildAll(st, st.Branches()); err != nil {
		return Result{}, fmt.Errorf("recovery: rebuild derived state: %w", err)
	}

	nextSegment := m.ActiveSegment
	nextSize := int64(wal.SegmentHeaderSize)
	if len(segs) > 0 {
		nextSegment = segs[len(segs)-1]
		if info, err := os.Stat(wal.SegmentFilePath(walDir, nextSegment)); err == nil {
			nextSize = info.Size()
		}
	}

	log.Info().
		Uint64("watermark", watermark).
		Uint64("resumed_commit_version", highest).
		Int("segments_replayed", len(segs)).
		Msg("recovery complete")

	return Result{
		Manifest:             m,
		NextSegment:          nextSegment,
		NextSegmentSize:      nextSize,
		HighestCommitVersion: highest,
	}, nil
}

// replaySegment applies every record in segment segNum whose
// commit_version is above watermark, returning the highest
// commit_version it applied. A torn tail is only tolerated on the
// last segment in the WAL directory; the same condition on an earlier
// segment means the log itself is corrupt, which recovery cannot
// repair.
func replaySegment(walDir string, segNum uint64, dbID uuid.UUID, st *store.Store, watermark uint64, isLast bool) (uint64, error) {
	r, err := wal.OpenReader(walDir, segNum, dbID)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	log := obslog.WithComponent("recovery")
	highest := uint64(0)

	for {
		rec, ok, reason, err := r.Next()
		if err != nil {
			return highest, err
		}
		if !ok {
			if reason == wal.StopEndOfData {
				return highest, nil
			}
			if !isLast {
				return highest, fmt.Errorf("non-tail segment %d ended with %v at offset %d", segNum, reason, r.Offset())
			}
			log.Warn().Uint64("segment", segNum).Int64("offset", r.Offset()).
				Msg("truncating torn WAL tail")
			if err := truncateSegment(wal.SegmentFilePath(walDir, segNum), r.Offset()); err != nil {
				return highest, err
			}
			return highest, nil
		}

		if rec.CommitVersion > watermark {
			txn.ApplyRecord(st, rec)
			if rec.CommitVersion > highest {
				highest = rec.CommitVersion
			}
		}
	}
}

func truncateSegment(path string, offset int64) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Truncate(offset); err != nil {
		return err
	}
	return f.Sync()
}
