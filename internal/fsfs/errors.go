// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package fsfs

import (
	"errors"
	"fmt"
)

// Sentinel errors for the boundary error codes of spec.md §6. Wrap
// these with fmt.Errorf("%w: ...", ...) for context; check with
// errors.Is.
var (
	ErrTxnOutOfDate          = errors.New("fsfs: transaction out of date")
	ErrCorrupt               = errors.New("fsfs: repository corrupt")
	ErrNoSuchTransaction     = errors.New("fsfs: no such transaction")
	ErrUniqueNamesExhausted  = errors.New("fsfs: unique transaction names exhausted")
	ErrBadDate               = errors.New("fsfs: invalid date")
	ErrLockFailed            = errors.New("fsfs: lock verification failed")
	ErrInvalidChangeOrdering = errors.New("fsfs: invalid change ordering")
	ErrCancelled             = errors.New("fsfs: operation cancelled")

	// ErrRepBeingWrittenInProcess and ErrRepBeingWrittenInOtherProcess
	// are the two flavors of spec.md §4.1's RepBeingWritten. Both
	// satisfy RepBeingWritten so callers that only care whether a
	// retry might succeed can test for the interface instead of
	// checking both sentinels individually.
	ErrRepBeingWrittenInProcess      = errors.New("fsfs: representation already being written by this process")
	ErrRepBeingWrittenInOtherProcess = errors.New("fsfs: representation being written by another process")
)

// RepBeingWritten is satisfied by both "being written" error flavors.
type RepBeingWritten interface {
	error
	repBeingWritten()
}

type repBeingWrittenError struct{ error }

func (repBeingWrittenError) repBeingWritten() {}
func (e repBeingWrittenError) Unwrap() error  { return e.error }

func newRepBeingWrittenInProcess(txnId TxnId) error {
	return repBeingWrittenError{fmt.Errorf("%w: txn %s", ErrRepBeingWrittenInProcess, txnId)}
}

func newRepBeingWrittenInOtherProcess(txnId TxnId) error {
	return repBeingWrittenError{fmt.Errorf("%w: txn %s", ErrRepBeingWrittenInOtherProcess, txnId)}
}

// IsRetryable reports whether err indicates a transient condition a
// caller may retry after backing off (spec.md §7's "transient" kind):
// proto-rev contention, either in-process or cross-process.
func IsRetryable(err error) bool {
	var rbw RepBeingWritten
	return errors.As(err, &rbw)
}
