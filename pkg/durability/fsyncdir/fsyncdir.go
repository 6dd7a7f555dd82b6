// Package fsyncdir holds two small durability primitives every
// segment, manifest and snapshot write needs: fsync of the containing
// directory after a rename (so the rename itself survives a crash),
// and an advisory single-process-open lock on the database directory.
// Adapted from the teacher's pkg/turdb lock_unix.go/lock_windows.go
// platform split.
package fsyncdir

import (
	"errors"
	"os"
)

// ErrLocked is returned by Lock when another process already holds
// the database's advisory lock.
var ErrLocked = errors.New("fsyncdir: database directory is already locked by another process")

// Sync opens dir and fsyncs it, durably persisting any rename or
// create/delete of entries within it. Call this after every atomic
// rename-into-place (manifest swap, segment rotation, snapshot
// publish) per the write-tmp/fsync/rename/fsync-parent-dir protocol.
func Sync(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
