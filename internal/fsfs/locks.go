// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package fsfs

import (
	"context"
	"fmt"
)

// VerifyLocks checks that user holds every lock a commit's changed
// paths require (spec.md §4.8): a plain add/modify/delete of path
// needs a lock on path itself; a delete of a directory additionally
// needs the committer to hold locks on every currently locked path
// beneath it, since the delete removes them all in one step.
func VerifyLocks(ctx context.Context, locks LockProvider, user string, changes []Change) error {
	for _, c := range changes {
		switch c.Kind {
		case ChangeDelete, ChangeReplace:
			if c.NodeKind == KindDir {
				ok, err := locks.OwnsRecursiveLock(ctx, user, c.Path)
				if err != nil {
					return fmt.Errorf("fsfs: checking recursive lock on %s: %w", c.Path, err)
				}
				if !ok {
					return fmt.Errorf("fsfs: %s is locked by another user beneath %s: %w", user, c.Path, ErrLockFailed)
				}
				continue
			}
			fallthrough
		default:
			ok, err := locks.OwnsLock(ctx, user, c.Path)
			if err != nil {
				return fmt.Errorf("fsfs: checking lock on %s: %w", c.Path, err)
			}
			if !ok {
				return fmt.Errorf("fsfs: %s does not hold the lock on %s: %w", user, c.Path, ErrLockFailed)
			}
		}
	}
	return nil
}
