package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// SegmentHeaderSize is the fixed 32-byte header every segment file
// starts with: magic, format version, segment number, database id.
const SegmentHeaderSize = 32

var segmentMagic = [4]byte{'S', 'T', 'R', 'A'}

var (
	ErrBadMagic    = errors.New("wal: segment has bad magic number")
	ErrBadDatabase = errors.New("wal: segment belongs to a different database")
)

// SegmentFormatVersion is the segment header layout version.
const SegmentFormatVersion = 1

// segmentName returns the on-disk file name for segment number n,
// matching the teacher's zero-padded numeric naming convention used
// for its own generation-numbered files.
func segmentName(n uint64) string {
	return fmt.Sprintf("wal-%06d.seg", n)
}

func segmentPath(dir string, n uint64) string {
	return filepath.Join(dir, segmentName(n))
}

func writeSegmentHeader(f *os.File, segNum uint64, dbID uuid.UUID) error {
	buf := make([]byte, SegmentHeaderSize)
	copy(buf[0:4], segmentMagic[:])
	binary.LittleEndian.PutUint32(buf[4:8], SegmentFormatVersion)
	binary.LittleEndian.PutUint64(buf[8:16], segNum)
	copy(buf[16:32], dbID[:])
	if _, err := f.WriteAt(buf, 0); err != nil {
		return err
	}
	return f.Sync()
}

type segmentHeader struct {
	formatVersion uint32
	segNum        uint64
	dbID          uuid.UUID
}

func readSegmentHeader(f *os.File, wantDB uuid.UUID) (segmentHeader, error) {
	buf := make([]byte, SegmentHeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return segmentHeader{}, err
	}
	if string(buf[0:4]) != string(segmentMagic[:]) {
		return segmentHeader{}, ErrBadMagic
	}
	h := segmentHeader{
		formatVersion: binary.LittleEndian.Uint32(buf[4:8]),
		segNum:        binary.LittleEndian.Uint64(buf[8:16]),
	}
	copy(h.dbID[:], buf[16:32])
	if wantDB != uuid.Nil && h.dbID != wantDB {
		return segmentHeader{}, ErrBadDatabase
	}
	return h, nil
}
