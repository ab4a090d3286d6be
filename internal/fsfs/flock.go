// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package fsfs

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// errLockBusy marks a lock-acquisition failure caused by the lock
// already being held (EWOULDBLOCK on a non-blocking flock), as
// distinct from any other I/O error.
var errLockBusy = errors.New("fsfs: lock busy")

// IsLockBusy reports whether err indicates a flock was already held
// by another file descriptor, rather than some other failure.
func IsLockBusy(err error) bool { return errors.Is(err, errLockBusy) }

// FileLock is a non-blocking exclusive advisory lock (flock(2)) on a
// sentinel file, used for the proto-rev lock, the repo write lock,
// and txn-current-lock (spec.md §4.1, §5, §9 "cross-process file
// locking"). Lock inheritance across process boundaries is never
// relied upon — each cooperating process acquires its own FileLock.
type FileLock struct {
	file *os.File
}

// LockFile opens path (creating it if absent) and attempts a
// non-blocking exclusive flock. On contention the returned error
// wraps errLockBusy (use IsLockBusy to detect it and translate to the
// caller's RepBeingWritten/LockFailed flavor).
func LockFile(path string) (*FileLock, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("fsfs: opening lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("fsfs: lock %s held by another process: %w", path, errLockBusy)
		}
		return nil, fmt.Errorf("fsfs: locking %s: %w", path, err)
	}

	return &FileLock{file: file}, nil
}

// File returns the underlying file descriptor, e.g. to write a
// diagnostic cookie value into it.
func (l *FileLock) File() *os.File { return l.file }

// Unlock releases the advisory lock and closes the file descriptor.
// Safe to call more than once; calls after the first are no-ops.
func (l *FileLock) Unlock() error {
	if l == nil || l.file == nil {
		return nil
	}
	unlockErr := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if unlockErr != nil {
		return fmt.Errorf("fsfs: unlocking: %w", unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("fsfs: closing lock file: %w", closeErr)
	}
	return nil
}
