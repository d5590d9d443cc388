package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

const lockFile = "progd.lock"

// ErrLocked is returned when another process holds the data directory
var ErrLocked = errors.New("data directory is locked by another process")

// DirLock is an exclusive cross-process lock on a data directory
type DirLock struct {
	flock  *flock.Flock
	locked bool
}

// LockDir acquires the lock on dir without blocking
func LockDir(dir string) (*DirLock, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	l := &DirLock{flock: flock.New(filepath.Join(dir, lockFile))}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return nil, ErrLocked
	}
	l.locked = true
	return l, nil
}

// Unlock releases the lock. It is safe to call more than once.
func (l *DirLock) Unlock() error {
	if l == nil || !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
