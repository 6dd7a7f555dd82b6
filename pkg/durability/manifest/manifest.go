// Package manifest implements the MANIFEST file: the single small
// record naming which WAL segment is active and, once one exists,
// which snapshot supersedes everything before its watermark. Every
// update follows the teacher's dbfile header discipline (fixed-offset
// binary layout, trailing checksum) combined with a write-tmp,
// fsync, rename, fsync-parent-dir sequence so a crash mid-update can
// never leave a torn manifest on disk.
package manifest

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"strata/pkg/durability/fsyncdir"
)

// FileName is the manifest's fixed name within a database directory.
const FileName = "MANIFEST"

// FormatVersion is the manifest layout version.
const FormatVersion = 1

var magic = [4]byte{'M', 'A', 'N', 'F'}

// Size is the manifest's fixed on-disk size.
const Size = 4 + 4 + 16 + 1 + 8 + 8 + 16 + 1 + 4

var (
	ErrBadMagic    = errors.New("manifest: bad magic number")
	ErrBadChecksum = errors.New("manifest: checksum mismatch")
)

// Manifest is the durable pointer every recovery starts from.
type Manifest struct {
	DatabaseID uuid.UUID
	// CodecID identifies the value/mutation wire format in effect,
	// guarding against opening a database written by an incompatible
	// build.
	CodecID uint8
	// ActiveSegment is the WAL segment number currently being
	// appended to.
	ActiveSegment uint64
	// SnapshotWatermark is the highest commit_version fully captured
	// in SnapshotID, if any. Records at or below this version never
	// need WAL replay.
	SnapshotWatermark uint64
	SnapshotID        uuid.UUID
	HasSnapshot        bool
}

func encode(m Manifest) []byte {
	buf := make([]byte, Size)
	copy(buf[0:4], magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], FormatVersion)
	copy(buf[8:24], m.DatabaseID[:])
	buf[24] = m.CodecID
	binary.LittleEndian.PutUint64(buf[25:33], m.ActiveSegment)
	binary.LittleEndian.PutUint64(buf[33:41], m.SnapshotWatermark)
	copy(buf[41:57], m.SnapshotID[:])
	if m.HasSnapshot {
		buf[57] = 1
	}
	crc := crc32.ChecksumIEEE(buf[:58])
	binary.LittleEndian.PutUint32(buf[58:62], crc)
	return buf
}

func decode(buf []byte) (Manifest, error) {
	if len(buf) != Size {
		return Manifest{}, ErrBadMagic
	}
	if string(buf[0:4]) != string(magic[:]) {
		return Manifest{}, ErrBadMagic
	}
	storedCRC := binary.LittleEndian.Uint32(buf[58:62])
	if crc32.ChecksumIEEE(buf[:58]) != storedCRC {
		return Manifest{}, ErrBadChecksum
	}
	var m Manifest
	copy(m.DatabaseID[:], buf[8:24])
	m.CodecID = buf[24]
	m.ActiveSegment = binary.LittleEndian.Uint64(buf[25:33])
	m.SnapshotWatermark = binary.LittleEndian.Uint64(buf[33:41])
	copy(m.SnapshotID[:], buf[41:57])
	m.HasSnapshot = buf[57] != 0
	return m, nil
}

// Load reads and validates the manifest in dir. Returns os.ErrNotExist
// (wrapped) if no manifest has ever been written there.
func Load(dir string) (Manifest, error) {
	buf, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return Manifest{}, err
	}
	return decode(buf)
}

// Save atomically replaces the manifest in dir: write to MANIFEST.tmp,
// fsync it, rename over MANIFEST, then fsync dir so the rename
// itself is durable.
func Save(dir string, m Manifest) error {
	path := filepath.Join(dir, FileName)
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(encode(m)); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	return fsyncdir.Sync(dir)
}
