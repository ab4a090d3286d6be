// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package fsfs

import (
	"path/filepath"
	"strconv"
)

// Layout computes canonical on-disk paths for a repository rooted at
// Root, per spec.md §6's layout table. All path construction for the
// commit core goes through a Layout rather than ad hoc
// filepath.Joins, so the legacy/modern format split (rev-lock inside
// the txn dir vs. out-of-tree txn-protorevs/) lives in one place.
type Layout struct {
	Root   string
	Format int
}

// NewLayout returns a Layout for a repository at root using format.
func NewLayout(root string, format int) Layout {
	return Layout{Root: root, Format: format}
}

func (l Layout) outOfTreeProtorevs() bool { return l.Format >= FormatModernTxnIds }

func (l Layout) FormatPath() string          { return filepath.Join(l.Root, "format") }
func (l Layout) CurrentPath() string         { return filepath.Join(l.Root, "current") }
func (l Layout) TxnCurrentPath() string      { return filepath.Join(l.Root, "txn-current") }
func (l Layout) TxnCurrentLockPath() string  { return filepath.Join(l.Root, "txn-current-lock") }
func (l Layout) WriteLockPath() string       { return filepath.Join(l.Root, "write-lock") }
func (l Layout) RepCachePath() string        { return filepath.Join(l.Root, "rep-cache.db") }

// shardDir returns the directory holding base's files for rev, sharded
// into base/<rev/maxFilesPerDir>/ when maxFilesPerDir is positive.
func (l Layout) shardDir(base string, rev Rev, maxFilesPerDir int) string {
	if maxFilesPerDir <= 0 {
		return filepath.Join(l.Root, base)
	}
	shard := int64(rev) / int64(maxFilesPerDir)
	return filepath.Join(l.Root, base, strconv.FormatInt(shard, 10))
}

// RevShardDir returns the shard directory revs/<rev/max> (or revs/
// itself, unsharded) containing rev's revision file.
func (l Layout) RevShardDir(rev Rev, maxFilesPerDir int) string {
	return l.shardDir("revs", rev, maxFilesPerDir)
}

// RevPropsShardDir is RevShardDir's counterpart under revprops/.
func (l Layout) RevPropsShardDir(rev Rev, maxFilesPerDir int) string {
	return l.shardDir("revprops", rev, maxFilesPerDir)
}

// RevPath returns the path of the immutable revision file for rev.
func (l Layout) RevPath(rev Rev, maxFilesPerDir int) string {
	return filepath.Join(l.RevShardDir(rev, maxFilesPerDir), rev.String())
}

// RevPropsPath returns the path of rev's serialized revision property
// hash.
func (l Layout) RevPropsPath(rev Rev, maxFilesPerDir int) string {
	return filepath.Join(l.RevPropsShardDir(rev, maxFilesPerDir), rev.String())
}

// TxnDir returns the transaction workspace directory for txn.
func (l Layout) TxnDir(txn TxnId) string {
	return filepath.Join(l.Root, "txns", string(txn)+".txn")
}

func (l Layout) TxnPropsPath(txn TxnId) string    { return filepath.Join(l.TxnDir(txn), "props") }
func (l Layout) TxnNextIdsPath(txn TxnId) string  { return filepath.Join(l.TxnDir(txn), "next-ids") }
func (l Layout) TxnChangesPath(txn TxnId) string  { return filepath.Join(l.TxnDir(txn), "changes") }

// TxnProtoRevPath returns the per-txn proto-rev append file: inside
// the txn directory for legacy formats, under txn-protorevs/ for
// modern ones (spec.md §6).
func (l Layout) TxnProtoRevPath(txn TxnId) string {
	if l.outOfTreeProtorevs() {
		return filepath.Join(l.Root, "txn-protorevs", string(txn)+".rev")
	}
	return filepath.Join(l.TxnDir(txn), "rev")
}

// TxnProtoRevLockPath is TxnProtoRevPath's advisory-lock counterpart.
func (l Layout) TxnProtoRevLockPath(txn TxnId) string {
	if l.outOfTreeProtorevs() {
		return filepath.Join(l.Root, "txn-protorevs", string(txn)+".rev-lock")
	}
	return filepath.Join(l.TxnDir(txn), "rev-lock")
}

// TxnSha1SidecarPath returns the intra-txn sha1 -> rep sidecar file
// path for sha1Hex (spec.md §3, §4.4 step 4).
func (l Layout) TxnSha1SidecarPath(txn TxnId, sha1Hex string) string {
	return filepath.Join(l.TxnDir(txn), sha1Hex)
}
