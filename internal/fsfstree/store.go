// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

// Package fsfstree is a minimal concrete implementation of the
// fsfs.NodeStore and fsfs.MutableTree collaborator interfaces: the
// node/directory tree traversal API spec.md §1 treats as out of
// scope for the commit core itself. It reads committed node-revs
// straight out of revision files (following the same offset
// conventions internal/fsfs's commit pipeline writes) and keeps an
// open transaction's mutable tree entirely in memory.
package fsfstree

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"fsfscore/internal/fsfs"
	"fsfscore/lib/codec"
)

// Store reads committed node-revs out of a repository's revision
// files. It implements fsfs.NodeStore.
type Store struct {
	Layout fsfs.Layout
	Params fsfs.Params
}

// NewStore returns a Store for the repository at layout/params.
func NewStore(layout fsfs.Layout, params fsfs.Params) *Store {
	return &Store{Layout: layout, Params: params}
}

// Root returns the root directory node-rev of a committed revision,
// located via the revision file's trailer line (spec.md §6).
func (s *Store) Root(ctx context.Context, rev fsfs.Rev) (*fsfs.NodeRev, error) {
	path := s.Layout.RevPath(rev, s.Params.MaxFilesPerDir)
	rootOffset, _, err := readTrailer(path)
	if err != nil {
		return nil, err
	}
	return s.readNodeRevAt(path, rootOffset)
}

// NodeRev resolves a committed node-rev occurrence by its (revision,
// offset) location. id must not be Mutable (in-flight transaction
// node-revs are never persisted to a revision file).
func (s *Store) NodeRev(ctx context.Context, id fsfs.NodeRevId) (*fsfs.NodeRev, error) {
	if id.Mutable() {
		return nil, fmt.Errorf("fsfstree: cannot resolve mutable node-rev %s from committed storage", id)
	}
	path := s.Layout.RevPath(id.Rev, s.Params.MaxFilesPerDir)
	return s.readNodeRevAt(path, id.Offset)
}

func (s *Store) readNodeRevAt(path string, offset int64) (*fsfs.NodeRev, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fsfstree: opening %s: %w", path, err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("fsfstree: seeking %s:%d: %w", path, offset, err)
	}

	var nr fsfs.NodeRev
	if err := codec.NewDecoder(file).Decode(&nr); err != nil {
		return nil, fmt.Errorf("fsfstree: decoding node-rev at %s:%d: %w", path, offset, err)
	}
	return &nr, nil
}

// readTrailer reads a revision file's final line, "<rootOffset>
// <changedPathsOffset>\n", without reading the whole file.
func readTrailer(path string) (rootOffset, changedPathsOffset int64, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("fsfstree: opening %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return 0, 0, fmt.Errorf("fsfstree: stat %s: %w", path, err)
	}

	const tailSize = 4096
	size := info.Size()
	readSize := int64(tailSize)
	if size < readSize {
		readSize = size
	}
	buf := make([]byte, readSize)
	if _, err := file.ReadAt(buf, size-readSize); err != nil {
		return 0, 0, fmt.Errorf("fsfstree: reading trailer of %s: %w", path, err)
	}

	text := strings.TrimRight(string(buf), "\n")
	if idx := strings.LastIndexByte(text, '\n'); idx >= 0 {
		text = text[idx+1:]
	}
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("fsfstree: malformed trailer in %s: %w", path, fsfs.ErrCorrupt)
	}
	rootOffset, err1 := strconv.ParseInt(fields[0], 10, 64)
	changedPathsOffset, err2 := strconv.ParseInt(fields[1], 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, fmt.Errorf("fsfstree: malformed trailer offsets in %s: %w", path, fsfs.ErrCorrupt)
	}
	return rootOffset, changedPathsOffset, nil
}

// ReadDirEntries returns a committed directory node-rev's children,
// keyed by name. It is readChildren's exported counterpart, useful to
// administrative tooling that walks a revision's tree without going
// through a Tree.
func ReadDirEntries(store *Store, dir *fsfs.NodeRev) (map[string]fsfs.NodeRevId, error) {
	return readChildren(store, dir)
}

// ReadChangedPaths reads and decodes a committed revision's published
// changed-paths block (already folded when the revision was committed) (spec.md §4.5), primarily useful for
// administrative dump/verify tooling.
func ReadChangedPaths(layout fsfs.Layout, params fsfs.Params, rev fsfs.Rev) ([]fsfs.Change, error) {
	path := layout.RevPath(rev, params.MaxFilesPerDir)
	rootOffset, changedPathsOffset, err := readTrailer(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fsfstree: opening %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("fsfstree: stat %s: %w", path, err)
	}

	trailerText := fmt.Sprintf("\n%d %d\n", rootOffset, changedPathsOffset)
	blockLen := info.Size() - changedPathsOffset - int64(len(trailerText))
	if blockLen < 0 {
		return nil, fmt.Errorf("fsfstree: malformed changed-paths block in %s: %w", path, fsfs.ErrCorrupt)
	}

	block := make([]byte, blockLen)
	if _, err := file.ReadAt(block, changedPathsOffset); err != nil {
		return nil, fmt.Errorf("fsfstree: reading changed-paths block in %s: %w", path, err)
	}

	dec := codec.NewDecoder(bytes.NewReader(block))
	var changes []fsfs.Change
	for {
		var c fsfs.Change
		if err := dec.Decode(&c); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("fsfstree: decoding changed-paths block in %s: %w", path, err)
		}
		changes = append(changes, c)
	}
	return changes, nil
}
