//go:build windows

package fsyncdir

import "os"

// Lock acquires the database directory lock file exclusively via
// plain O_EXCL create-based locking; Windows file locking semantics
// differ enough from flock that this is a best-effort fallback, not a
// target platform for this database.
func Lock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrLocked
		}
		return nil, err
	}
	return f, nil
}

// Unlock closes and removes the lock file.
func Unlock(f *os.File) error {
	name := f.Name()
	if err := f.Close(); err != nil {
		return err
	}
	return os.Remove(name)
}
