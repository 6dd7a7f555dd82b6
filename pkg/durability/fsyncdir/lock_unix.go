//go:build !windows

package fsyncdir

import (
	"os"

	"golang.org/x/sys/unix"
)

// Lock acquires an exclusive, advisory, non-blocking lock on path
// (Database.Open passes the "LOCK" file inside the database directory), returning
// ErrLocked if another process holds it already and the open handle
// otherwise. The caller should keep the returned file open for the
// database's lifetime and call Unlock at close.
func Lock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ErrLocked
		}
		return nil, err
	}
	return f, nil
}

// Unlock releases a lock acquired by Lock and closes the handle.
func Unlock(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
