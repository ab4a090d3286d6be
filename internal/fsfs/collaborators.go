// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package fsfs

import (
	"context"
	"io"
)

// This file names the external-collaborator interfaces spec.md §1
// treats as out of scope: the node/directory tree traversal API, the
// pristine-text hashing primitives, and lock ownership. See
// DESIGN.md's Open Question Decisions for why each is shaped this
// way; internal/fsfstree provides one concrete NodeStore/MutableTree
// implementation.

// TextSource supplies the pristine content for a file's data
// representation. The out-of-scope pristine-text hashing primitives
// are modeled as this thin streaming interface — the representation
// writer only needs bytes, not how the caller produced them.
type TextSource interface {
	io.Reader
}

// TreeEntry is one (name, node-rev) pair in a directory listing.
type TreeEntry struct {
	Name string
	Node *NodeRev
}

// MutableTree is the external collaborator (spec.md §1's "node/
// directory tree traversal API") the commit pipeline drives
// depth-first to finalize every node-rev touched by a transaction.
type MutableTree interface {
	// Root returns the transaction's mutable root node-rev.
	Root(ctx context.Context) (*NodeRev, error)

	// Children returns a directory node-rev's entries. Order is not
	// significant — the commit pipeline sorts them lexicographically
	// itself (spec.md §4.7 step 5).
	Children(ctx context.Context, dir *NodeRev) ([]TreeEntry, error)

	// SetFinalized records that a node-rev previously keyed by oldId
	// has been rewritten to a permanent id with final rep offsets, so
	// subsequent reads of ancestor directories see the updated child.
	SetFinalized(ctx context.Context, oldId NodeRevId, final *NodeRev) error

	// DirectoryEntriesText serializes a directory's (possibly just
	// finalized) entries into the on-disk representation payload.
	DirectoryEntriesText(ctx context.Context, dir *NodeRev, entries []TreeEntry) (io.Reader, error)

	// PropertiesText serializes a node-rev's property hash into the
	// on-disk representation payload.
	PropertiesText(ctx context.Context, node *NodeRev) (io.Reader, error)

	// FileText returns the pristine content of a file node-rev, read
	// only when its DataRep is mutable and needs (re)writing.
	FileText(ctx context.Context, file *NodeRev) (TextSource, error)
}

// NodeStore resolves committed node-revs — the read side of the
// out-of-scope node/directory tree API. The delta-base chooser uses
// it (via PredecessorLookup) to walk predecessor chains; the commit
// pipeline uses it to read the base revision's root for the
// predecessor-count sanity check (spec.md §4.7 step 5, root-only).
type NodeStore interface {
	NodeRev(ctx context.Context, id NodeRevId) (*NodeRev, error)
	Root(ctx context.Context, rev Rev) (*NodeRev, error)
}

// LockProvider answers path-lock ownership queries for commit-time
// lock verification (spec.md §4.8). Both methods return true when
// there is nothing stopping user's commit: either no lock exists at
// all, or every lock that does exist is held by user.
type LockProvider interface {
	// OwnsLock reports whether path is unlocked or locked by user.
	OwnsLock(ctx context.Context, user, path string) (bool, error)

	// OwnsRecursiveLock reports whether path and every
	// currently-existing descendant path is either unlocked or locked
	// by user.
	OwnsRecursiveLock(ctx context.Context, user, path string) (bool, error)
}
