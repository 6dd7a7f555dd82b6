package wal

import (
	"io"
	"os"

	"github.com/google/uuid"

	"strata/pkg/txn"
)

// Reader sequentially decodes records from a single segment file,
// starting just past its header.
type Reader struct {
	f      *os.File
	offset int64
	buf    []byte
}

// OpenReader opens segment n in dir for sequential replay, validating
// its header against dbID (pass uuid.Nil to skip that check).
func OpenReader(dir string, n uint64, dbID uuid.UUID) (*Reader, error) {
	f, err := os.Open(SegmentFilePath(dir, n))
	if err != nil {
		return nil, err
	}
	if _, err := readSegmentHeader(f, dbID); err != nil {
		f.Close()
		return nil, err
	}
	return &Reader{f: f, offset: SegmentHeaderSize}, nil
}

// Offset returns the byte offset of the next record to be read,
// which after a StopPartialRecord or StopChecksumMismatch stop is
// exactly the point recovery should truncate the segment to.
func (r *Reader) Offset() int64 { return r.offset }

// Close closes the underlying file.
func (r *Reader) Close() error { return r.f.Close() }

// Next decodes the next record. On a clean end of file it returns
// (Record{}, false, StopEndOfData, nil). On a torn or corrupt tail it
// returns ok=false with the relevant ReadStopReason and a nil error;
// a non-nil error means an I/O failure unrelated to record framing.
func (r *Reader) Next() (txn.Record, bool, ReadStopReason, error) {
	head := make([]byte, 4)
	n, err := r.f.ReadAt(head, r.offset)
	if err != nil && err != io.EOF {
		return txn.Record{}, false, StopEndOfData, err
	}
	if n == 0 {
		return txn.Record{}, false, StopEndOfData, nil
	}
	if n < 4 {
		return txn.Record{}, false, StopPartialRecord, nil
	}

	recordLength := le32(head)
	total := 4 + int(recordLength)
	chunk := make([]byte, total)
	n, err = r.f.ReadAt(chunk, r.offset)
	if err != nil && err != io.EOF {
		return txn.Record{}, false, StopEndOfData, err
	}
	if n < total {
		return txn.Record{}, false, StopPartialRecord, nil
	}

	rec, consumed, ok, reason := DecodeRecord(chunk)
	if !ok {
		return txn.Record{}, false, reason, nil
	}
	r.offset += int64(consumed)
	return rec, true, StopEndOfData, nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
