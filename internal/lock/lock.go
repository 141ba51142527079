package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

type Lock struct {
	file *flock.Flock
	path string
}

// New returns an unlocked advisory lock backed by the file at path.
func New(path string) *Lock {
	return &Lock{file: flock.New(path), path: path}
}

// DefaultPath is the process lock used when none is configured.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), "trvs.lock")
}

// Acquire obtains the process lock that keeps two mutating trvs commands
// from running against the same device at once.
func Acquire(path string) (*Lock, error) {
	if path == "" {
		path = DefaultPath()
	}
	l := New(path)
	ok, err := l.file.TryLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("another trvs command is already modifying the device (lock: %s)", path)
	}
	return l, nil
}

// Lock blocks until the lock is held.
func (l *Lock) Lock() error {
	if err := l.file.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", l.path, err)
	}
	return nil
}

// Unlock releases a lock taken with Lock.
func (l *Lock) Unlock() error {
	return l.file.Unlock()
}

// Release frees the lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Unlock()
}
