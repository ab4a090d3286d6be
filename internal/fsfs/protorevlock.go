// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package fsfs

import (
	"fmt"
	"os"
)

// ProtoRevWriter holds exclusive write access to one transaction's
// proto-rev file (spec.md §4.4, §5): an in-process registry entry
// backed by a cross-process flock(2) on the proto-rev lock file. It
// is acquired once and reused across every representation the
// mutation or commit pipeline appends, then released exactly once.
type ProtoRevWriter struct {
	registry *Registry
	txn      TxnId
	lock     *FileLock
	file     *os.File
}

// AcquireProtoRevWriter acquires the proto-rev writer for txn: first
// an in-process marker (so a second goroutine in this process gets a
// clean ErrRepBeingWrittenInProcess instead of blocking on flock), then
// the cross-process advisory lock on the proto-rev lock file, then
// opens the proto-rev file itself for appending.
func (r *Registry) AcquireProtoRevWriter(layout Layout, txn TxnId) (*ProtoRevWriter, error) {
	w := &ProtoRevWriter{registry: r, txn: txn}

	if err := r.beginWrite(txn, w); err != nil {
		return nil, err
	}

	lock, err := LockFile(layout.TxnProtoRevLockPath(txn))
	if err != nil {
		r.endWrite(txn)
		if IsLockBusy(err) {
			return nil, newRepBeingWrittenInOtherProcess(txn)
		}
		return nil, err
	}

	file, err := os.OpenFile(layout.TxnProtoRevPath(txn), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		lock.Unlock()
		r.endWrite(txn)
		return nil, fmt.Errorf("fsfs: opening proto-rev for %s: %w", txn, err)
	}

	w.lock = lock
	w.file = file
	return w, nil
}

// File returns the open proto-rev file descriptor for appending.
func (w *ProtoRevWriter) File() *os.File { return w.file }

// Offset returns the proto-rev file's current write offset, i.e. the
// byte offset a representation started now would begin at.
func (w *ProtoRevWriter) Offset() (int64, error) {
	return w.file.Seek(0, os.SEEK_CUR)
}

// Release closes the proto-rev file and drops both the cross-process
// flock and the in-process marker, once every representation the
// caller acquired it for has been written.
func (w *ProtoRevWriter) Release() error {
	var firstErr error
	if err := w.file.Close(); err != nil {
		firstErr = fmt.Errorf("fsfs: closing proto-rev for %s: %w", w.txn, err)
	}
	if err := w.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	w.registry.endWrite(w.txn)
	return firstErr
}

// ReleaseLockOnly drops the cross-process flock and the in-process
// marker but leaves the proto-rev file descriptor open; closing the
// file is then up to the caller. Commit does not use it: it releases
// its writer with Release.
func (w *ProtoRevWriter) ReleaseLockOnly() error {
	err := w.lock.Unlock()
	w.registry.endWrite(w.txn)
	return err
}

// ReleaseAndTruncate releases the writer after truncating the
// proto-rev file back to offset, used when a commit attempt fails
// partway through and must discard everything written since the
// writer was acquired (spec.md §4.7's abort-on-failure path).
func (w *ProtoRevWriter) ReleaseAndTruncate(offset int64) error {
	truncErr := w.file.Truncate(offset)
	closeErr := w.file.Close()
	unlockErr := w.lock.Unlock()
	w.registry.endWrite(w.txn)

	if truncErr != nil {
		return fmt.Errorf("fsfs: truncating proto-rev for %s: %w", w.txn, truncErr)
	}
	if closeErr != nil {
		return fmt.Errorf("fsfs: closing proto-rev for %s: %w", w.txn, closeErr)
	}
	return unlockErr
}
