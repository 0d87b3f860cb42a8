package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const (
	lockFileSuffix = ".lock"
	lockRetryDelay = 500 * time.Millisecond
)

// ErrLocked is returned when another run of the same venue holds the lock past the deadline.
var ErrLocked = errors.New("another run of this venue is in progress")

// RunLock serialises runs of one venue. The lock file sits next to the venue's snapshot file.
type RunLock struct {
	lock *flock.Flock
	path string
}

// NewRunLock creates a new lock for the given snapshot path.
func NewRunLock(snapshotPath string) (*RunLock, error) {
	absPath, err := filepath.Abs(snapshotPath)
	if err != nil {
		return nil, fmt.Errorf("could not get absolute snapshot path: %w", err)
	}
	lockPath := absPath + lockFileSuffix
	return &RunLock{
		lock: flock.New(lockPath),
		path: lockPath,
	}, nil
}

// Lock acquires the venue lock, waiting until ctx is done.
// It will print a message if it has to wait.
func (l *RunLock) Lock(ctx context.Context) error {
	locked, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", l.path, err)
	}
	if locked {
		return nil
	}

	fmt.Fprintf(os.Stderr, "Another slotwatch process is running this venue, waiting for it to finish...\n")
	locked, err = l.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return ErrLocked
		}
		return fmt.Errorf("failed to acquire lock on %s after waiting: %w", l.path, err)
	}
	if !locked {
		return ErrLocked
	}
	return nil
}

// Unlock releases the venue lock.
func (l *RunLock) Unlock() error {
	if err := l.lock.Unlock(); err != nil {
		// Suppress error if the lock file doesn't exist, as it means we don't hold the lock.
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}
	return nil
}
