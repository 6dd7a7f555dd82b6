package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"strata/internal/obslog"
	"strata/pkg/durability/fsyncdir"
	"strata/pkg/txn"
)

// Mode controls when Append's fsync happens relative to the write
// returning to the caller.
type Mode int

const (
	// ModeCache writes nothing to disk: no segment file is opened and
	// Append and Flush are no-ops, so committed data lives only in
	// memory. Fastest, weakest guarantee.
	ModeCache Mode = iota
	// ModeBuffered batches fsyncs: an Append syncs once BatchSize
	// records or ByteThreshold bytes have accumulated since the last
	// sync, or once IntervalMillis has elapsed, whichever comes first.
	// The check runs only inside Append; no timer syncs a pending tail
	// while no appends arrive. Appends
	// always flush the OS write buffer so a reader within this
	// process sees its own writes; only the fsync is deferred.
	ModeBuffered
	// ModeStrict fsyncs after every single Append, returning only
	// once the record is durable. Slowest, strongest guarantee.
	ModeStrict
)

// Options configures a Writer.
type Options struct {
	Dir             string
	DatabaseID      uuid.UUID
	Mode            Mode
	SegmentMaxBytes int64 // default 64 MiB
	BatchSize       int   // ModeBuffered: records per sync
	ByteThreshold   int64 // ModeBuffered: bytes per sync
	IntervalMillis  int64 // ModeBuffered: max staleness before a sync is overdue
}

const defaultSegmentMaxBytes = 64 << 20

// Writer appends records to the active segment, rotating to a new
// segment file once SegmentMaxBytes is exceeded, and fsyncing
// according to Mode.
type Writer struct {
	opts Options

	mu           sync.Mutex
	file         *os.File
	segNum       uint64
	segBytes     int64
	pendingSince time.Time
	pendingCount int
	pendingBytes int64
}

// OpenWriter opens (or creates) the active segment in opts.Dir and
// returns a Writer ready to Append. segNum/existingSize let the
// database resume appending to the segment recovery determined was
// still open, rather than always starting a fresh one.
//
// In ModeCache no file is ever opened and Append/Flush are no-ops:
// writes stay in memory only, with no WAL file created at all.
func OpenWriter(opts Options, segNum uint64, existingSize int64) (*Writer, error) {
	if opts.SegmentMaxBytes <= 0 {
		opts.SegmentMaxBytes = defaultSegmentMaxBytes
	}
	if opts.Mode == ModeCache {
		return &Writer{opts: opts, segNum: segNum, pendingSince: time.Now()}, nil
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, err
	}
	path := segmentPath(opts.Dir, segNum)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		if err := writeSegmentHeader(f, segNum, opts.DatabaseID); err != nil {
			f.Close()
			return nil, err
		}
		if err := fsyncdir.Sync(opts.Dir); err != nil {
			f.Close()
			return nil, err
		}
		existingSize = SegmentHeaderSize
	}
	w := &Writer{
		opts:         opts,
		file:         f,
		segNum:       segNum,
		segBytes:     existingSize,
		pendingSince: time.Now(),
	}
	return w, nil
}

// Append encodes rec and writes it to the active segment, rotating
// first if it would overflow SegmentMaxBytes, then syncing per Mode.
// Satisfies txn.WalAppend.
func (w *Writer) Append(rec txn.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.opts.Mode == ModeCache {
		return nil
	}

	framed := EncodeRecord(rec)
	if w.segBytes+int64(len(framed)) > w.opts.SegmentMaxBytes {
		if err := w.rotateLocked(); err != nil {
			return err
		}
	}

	n, err := w.file.WriteAt(framed, w.segBytes)
	if err != nil {
		return err
	}
	w.segBytes += int64(n)
	w.pendingCount++
	w.pendingBytes += int64(n)

	return w.syncIfNeededLocked()
}

func (w *Writer) syncIfNeededLocked() error {
	switch w.opts.Mode {
	case ModeCache:
		return nil
	case ModeStrict:
		return w.file.Sync()
	case ModeBuffered:
		overdue := w.opts.IntervalMillis > 0 &&
			time.Since(w.pendingSince) >= time.Duration(w.opts.IntervalMillis)*time.Millisecond
		thresholdHit := (w.opts.BatchSize > 0 && w.pendingCount >= w.opts.BatchSize) ||
			(w.opts.ByteThreshold > 0 && w.pendingBytes >= w.opts.ByteThreshold)
		// Every Buffered append re-checks staleness even when no
		// threshold fired, so a slow trickle of writes is synced at
		// the first append after IntervalMillis has passed instead of
		// waiting for a batch that never fills. Records written before
		// a pause stay unsynced until the next Append, Flush or Close.
		if thresholdHit || overdue {
			if err := w.file.Sync(); err != nil {
				return err
			}
			w.pendingCount = 0
			w.pendingBytes = 0
			w.pendingSince = time.Now()
		}
		return nil
	default:
		return fmt.Errorf("wal: unknown durability mode %d", w.opts.Mode)
	}
}

// Flush forces a sync of the active segment in Buffered and Strict
// modes (it is a no-op in ModeCache), called from Database.Checkpoint
// and Database.Close so operators can force durability of a
// Buffered-mode database on demand.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.opts.Mode == ModeCache {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	w.pendingCount = 0
	w.pendingBytes = 0
	w.pendingSince = time.Now()
	return nil
}

func (w *Writer) rotateLocked() error {
	if err := w.file.Sync(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	w.segNum++
	path := segmentPath(w.opts.Dir, w.segNum)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if err := writeSegmentHeader(f, w.segNum, w.opts.DatabaseID); err != nil {
		f.Close()
		return err
	}
	if err := fsyncdir.Sync(w.opts.Dir); err != nil {
		f.Close()
		return err
	}
	w.file = f
	w.segBytes = SegmentHeaderSize
	obslog.WithComponent("wal").Debug().Uint64("segment", w.segNum).Msg("rotated WAL segment")
	return nil
}

// SegmentNumber returns the active segment's number, for the manifest.
func (w *Writer) SegmentNumber() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.segNum
}

// Close flushes and closes the active segment.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.opts.Mode == ModeCache {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// ListSegments returns every segment number present in dir, ascending.
func ListSegments(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var nums []uint64
	for _, e := range entries {
		var n uint64
		if _, err := fmt.Sscanf(e.Name(), "wal-%06d.seg", &n); err == nil {
			nums = append(nums, n)
		}
	}
	for i := 1; i < len(nums); i++ {
		j := i
		for j > 0 && nums[j-1] > nums[j] {
			nums[j-1], nums[j] = nums[j], nums[j-1]
			j--
		}
	}
	return nums, nil
}

// SegmentFilePath exposes the on-disk path for a segment number, used
// by recovery to open segments directly for replay.
func SegmentFilePath(dir string, n uint64) string {
	return filepath.Join(dir, segmentName(n))
}
