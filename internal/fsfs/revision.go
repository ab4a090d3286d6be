// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package fsfs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// CurrentState is the parsed contents of the repository's `current`
// file (spec.md §6): the youngest committed revision, and, for legacy
// (FormatLegacyNodeIds) repositories, the global node-id and copy-id
// counters that format stores alongside it.
type CurrentState struct {
	Youngest    Rev
	NextNodeId  int64 // legacy format only
	NextCopyId  int64 // legacy format only
}

// ReadCurrent reads and parses the repository's `current` file.
// Modern-format repositories store only the revision number; legacy
// repositories store "rev node-id copy-id" (both counters base-36).
func ReadCurrent(layout Layout) (CurrentState, error) {
	data, err := os.ReadFile(layout.CurrentPath())
	if err != nil {
		return CurrentState{}, fmt.Errorf("fsfs: reading current: %w", err)
	}
	return parseCurrent(string(data))
}

func parseCurrent(s string) (CurrentState, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return CurrentState{}, fmt.Errorf("fsfs: current file is empty: %w", ErrCorrupt)
	}

	rev, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return CurrentState{}, fmt.Errorf("fsfs: current file has malformed revision %q: %w", fields[0], ErrCorrupt)
	}
	state := CurrentState{Youngest: Rev(rev)}

	if len(fields) >= 3 {
		nodeId, err := strconv.ParseInt(fields[1], 36, 64)
		if err != nil {
			return CurrentState{}, fmt.Errorf("fsfs: current file has malformed node-id counter %q: %w", fields[1], ErrCorrupt)
		}
		copyId, err := strconv.ParseInt(fields[2], 36, 64)
		if err != nil {
			return CurrentState{}, fmt.Errorf("fsfs: current file has malformed copy-id counter %q: %w", fields[2], ErrCorrupt)
		}
		state.NextNodeId = nodeId
		state.NextCopyId = copyId
	}

	return state, nil
}

// formatCurrent renders state back to the `current` file's text
// format, matching modernNodeIds' field count.
func formatCurrent(state CurrentState, modernNodeIds bool) string {
	if modernNodeIds {
		return fmt.Sprintf("%d\n", int64(state.Youngest))
	}
	return fmt.Sprintf("%d %s %s\n",
		int64(state.Youngest),
		strconv.FormatInt(state.NextNodeId, 36),
		strconv.FormatInt(state.NextCopyId, 36))
}

// BumpCurrent atomically advances the repository's `current` file to
// next (spec.md §4.7 step 10's final, irrevocable step): the new
// contents are written to a temp file in the same directory and
// renamed into place, so a reader never observes a partially written
// `current`.
func BumpCurrent(layout Layout, next CurrentState, modernNodeIds bool) error {
	return atomicWriteString(layout.CurrentPath(), formatCurrent(next, modernNodeIds))
}

// EnsureShardDirs creates the revs/ and revprops/ shard directories
// that will hold rev's files, a no-op once those directories already
// exist (spec.md §4.7 step 9's "shard directory creation on
// shard-boundary crossings").
func EnsureShardDirs(layout Layout, rev Rev, maxFilesPerDir int) error {
	if err := os.MkdirAll(layout.RevShardDir(rev, maxFilesPerDir), 0755); err != nil {
		return fmt.Errorf("fsfs: creating revs shard dir for r%d: %w", rev, err)
	}
	if err := os.MkdirAll(layout.RevPropsShardDir(rev, maxFilesPerDir), 0755); err != nil {
		return fmt.Errorf("fsfs: creating revprops shard dir for r%d: %w", rev, err)
	}
	return nil
}

// atomicWriteString writes contents to path via a temp file in the
// same directory followed by a rename, the standard atomic-replace
// idiom the top-level repository files current, txn-current and
// format are written with.
func atomicWriteString(path, contents string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("fsfs: creating temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	w := bufio.NewWriter(tmp)
	if _, err := w.WriteString(contents); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("fsfs: writing %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("fsfs: flushing %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("fsfs: syncing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("fsfs: closing %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("fsfs: renaming into %s: %w", path, err)
	}
	return nil
}
