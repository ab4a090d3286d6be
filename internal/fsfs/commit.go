// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package fsfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"fsfscore/lib/binhash"
	"fsfscore/lib/clock"
	"fsfscore/lib/codec"
)

// CommitOptions carries the per-commit inputs that are not already
// captured by the Transaction itself.
type CommitOptions struct {
	// User identifies the committer for lock verification (spec.md
	// §4.8). Required when txn.Flags.CheckLocks is set.
	User string

	Clock clock.Clock
}

// CommitResult reports the outcome of a successful commit.
type CommitResult struct {
	Revision Rev
}

// committer holds the state threaded through one commit's recursive
// tree finalization pass.
type committer struct {
	ctx      context.Context
	layout   Layout
	params   Params
	store    NodeStore
	tree     MutableTree
	writer   *ProtoRevWriter
	txn      TxnId
	newRev   Rev
	repCache *RepCache
	youngest Rev

	finalized map[NodeRevId]*NodeRev
	pending   map[string]CacheEntry // sha1 hex -> entry awaiting newRev

	// legacyNodeBase and legacyCopyBase are the `current` file's
	// node-id/copy-id counters as they stood before this commit
	// (FormatLegacyNodeIds only); rewriteId/rewriteCopyId add each
	// node's local, per-transaction counter value to these bases.
	legacyNodeBase int64
	legacyCopyBase int64
}

// Commit finalizes a transaction into a new, immutable revision
// (spec.md §4.7): it verifies the transaction is not stale and that
// the committer holds every required lock, finalizes every mutable
// node-rev depth-first (choosing delta bases, writing or sharing
// representations, rewriting provisional ids), appends the
// changed-paths block and trailer, publishes the proto-rev file as
// the new revision file, promotes revision properties, records any
// newly written representations in the rep-cache, and finally bumps
// `current`.
//
// Commit holds the repository-wide write lock for its entire
// duration, which is what lets newRev = youngest+1 be computed once,
// up front, and stay valid throughout.
func Commit(ctx context.Context, layout Layout, params Params, registry *Registry, store NodeStore, tree MutableTree, locks LockProvider, repCache *RepCache, txn *Transaction, opts CommitOptions) (result *CommitResult, err error) {
	writeLock, err := LockFile(layout.WriteLockPath())
	if err != nil {
		if IsLockBusy(err) {
			return nil, fmt.Errorf("fsfs: acquiring repository write lock: %w", ErrLockFailed)
		}
		return nil, err
	}
	defer writeLock.Unlock()

	cur, err := ReadCurrent(layout)
	if err != nil {
		return nil, err
	}

	// Out-of-date detection (spec.md §4.7 step 2) is intentionally
	// coarse: a transaction based on anything but the current
	// youngest revision is rejected outright when requested, rather
	// than checking whether its specific changed paths actually
	// conflict with what happened meanwhile. See DESIGN.md.
	if txn.Flags.CheckOutOfDate && txn.BaseRev != cur.Youngest {
		return nil, fmt.Errorf("fsfs: transaction %s based on r%d, youngest is r%d: %w",
			txn.Id, txn.BaseRev, cur.Youngest, ErrTxnOutOfDate)
	}

	rawChanges, err := ReadChanges(layout, txn.Id)
	if err != nil {
		return nil, err
	}
	folded, err := Fold(rawChanges)
	if err != nil {
		return nil, err
	}

	if txn.Flags.CheckLocks {
		if opts.User == "" {
			return nil, fmt.Errorf("fsfs: CommitOptions.User is required when lock checking is enabled")
		}
		if err := VerifyLocks(ctx, locks, opts.User, folded); err != nil {
			return nil, err
		}
	}

	writer, err := registry.AcquireProtoRevWriter(layout, txn.Id)
	if err != nil {
		return nil, err
	}

	startOffset, err := writer.Offset()
	if err != nil {
		writer.Release()
		return nil, err
	}

	newRev := cur.Youngest + 1
	c := &committer{
		ctx: ctx, layout: layout, params: params, store: store, tree: tree,
		writer: writer, txn: txn.Id, newRev: newRev, repCache: repCache, youngest: cur.Youngest,
		finalized: make(map[NodeRevId]*NodeRev),
		pending:   make(map[string]CacheEntry),
		legacyNodeBase: cur.NextNodeId, legacyCopyBase: cur.NextCopyId,
	}

	defer func() {
		if err != nil {
			writer.ReleaseAndTruncate(startOffset)
		}
	}()

	root, err := tree.Root(ctx)
	if err != nil {
		return nil, err
	}
	finalRoot, err := c.finalizeNode(root)
	if err != nil {
		return nil, err
	}

	finalChanges := rewriteChangeIds(folded, c.finalized)

	changedPathsOffset, err := writer.Offset()
	if err != nil {
		return nil, err
	}
	enc := codec.NewEncoder(writer.File())
	for _, ch := range finalChanges {
		if err := enc.Encode(&ch); err != nil {
			return nil, fmt.Errorf("fsfs: writing changed-paths block: %w", err)
		}
	}

	trailer := fmt.Sprintf("\n%d %d\n", finalRoot.Id.Offset, changedPathsOffset)
	if _, err := writer.File().WriteString(trailer); err != nil {
		return nil, fmt.Errorf("fsfs: writing revision trailer: %w", err)
	}
	if err := writer.File().Sync(); err != nil {
		return nil, fmt.Errorf("fsfs: syncing proto-rev: %w", err)
	}

	if err := EnsureShardDirs(layout, newRev, params.MaxFilesPerDir); err != nil {
		return nil, err
	}

	protoRevPath := layout.TxnProtoRevPath(txn.Id)
	revPath := layout.RevPath(newRev, params.MaxFilesPerDir)
	if err := renameIntoRevs(protoRevPath, revPath); err != nil {
		return nil, err
	}

	if releaseErr := writer.Release(); releaseErr != nil {
		err = releaseErr
		return nil, err
	}
	os.Remove(layout.TxnProtoRevLockPath(txn.Id))

	if params.StampCommitDate {
		if err := SetTxnDate(layout, txn.Id, opts.Clock.Now()); err != nil {
			return nil, err
		}
	}
	props, err := ReadProperties(layout, txn.Id)
	if err != nil {
		return nil, err
	}
	if err := writeRevProps(layout, newRev, params.MaxFilesPerDir, props); err != nil {
		return nil, err
	}

	if params.RepSharingEnabled && len(c.pending) > 0 {
		for sha1Hex, entry := range c.pending {
			entry.Revision = newRev
			c.pending[sha1Hex] = entry
		}
		if err := repCache.InsertBatch(ctx, c.pending); err != nil {
			return nil, err
		}
	}

	next := CurrentState{Youngest: newRev}
	if !params.ModernNodeIds() {
		nodeCounter, copyCounter, err := readNextIdsCounters(layout, txn.Id)
		if err != nil {
			return nil, err
		}
		next.NextNodeId = cur.NextNodeId + nodeCounter
		next.NextCopyId = cur.NextCopyId + copyCounter
	}
	if err := BumpCurrent(layout, next, params.ModernNodeIds()); err != nil {
		return nil, err
	}

	registry.Forget(txn.Id)
	os.RemoveAll(layout.TxnDir(txn.Id))

	return &CommitResult{Revision: newRev}, nil
}

// finalizeNode recursively finalizes node and everything beneath it,
// returning the committed NodeRev that replaces it. Nodes that were
// never touched by this transaction (not Mutable) are returned
// unchanged.
func (c *committer) finalizeNode(node *NodeRev) (*NodeRev, error) {
	if !node.Id.Mutable() {
		return node, nil
	}

	final := *node

	switch node.Kind {
	case KindDir:
		children, err := c.tree.Children(c.ctx, node)
		if err != nil {
			return nil, err
		}
		sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })

		entries := make([]TreeEntry, len(children))
		for i, e := range children {
			finalChild, err := c.finalizeNode(e.Node)
			if err != nil {
				return nil, err
			}
			entries[i] = TreeEntry{Name: e.Name, Node: finalChild}
		}

		if node.DataRep.Mutable() {
			text, err := c.tree.DirectoryEntriesText(c.ctx, node, entries)
			if err != nil {
				return nil, err
			}
			rep, err := c.writeRep(node, node.DataRep, text)
			if err != nil {
				return nil, err
			}
			final.DataRep = rep
		}

	case KindFile:
		if node.DataRep.Mutable() {
			content, err := c.tree.FileText(c.ctx, node)
			if err != nil {
				return nil, err
			}
			rep, err := c.writeRep(node, node.DataRep, content)
			if err != nil {
				return nil, err
			}
			final.DataRep = rep
		}
	}

	if node.PropRep.Mutable() {
		text, err := c.tree.PropertiesText(c.ctx, node)
		if err != nil {
			return nil, err
		}
		rep, err := c.writePropRep(node, node.PropRep, text)
		if err != nil {
			return nil, err
		}
		final.PropRep = rep
	}

	final.Id.Node, final.Id.Copy = c.rewriteId(node.Id.Node), c.rewriteCopyId(node.Id.Copy)

	offset, err := c.writer.Offset()
	if err != nil {
		return nil, err
	}
	final.Id.TxnId = ""
	final.Id.Rev = c.newRev
	final.Id.Offset = offset

	if err := codec.NewEncoder(c.writer.File()).Encode(&final); err != nil {
		return nil, fmt.Errorf("fsfs: writing node-rev record for %s: %w", node.Id, err)
	}

	c.finalized[node.Id] = &final
	if err := c.tree.SetFinalized(c.ctx, node.Id, &final); err != nil {
		return nil, err
	}
	return &final, nil
}

// writeRep finalizes node's data representation, choosing a skip-
// delta base from the node's own predecessor chain when one exists.
func (c *committer) writeRep(node *NodeRev, existing *Rep, content io.Reader) (*Rep, error) {
	return c.writeRepKind(node, existing, content, false)
}

func (c *committer) writePropRep(node *NodeRev, existing *Rep, content io.Reader) (*Rep, error) {
	return c.writeRepKind(node, existing, content, true)
}

func (c *committer) writeRepKind(node *NodeRev, existing *Rep, content io.Reader, isProp bool) (*Rep, error) {
	var base *Rep
	var baseText []byte

	if node.PredecessorId != nil {
		predNode, err := c.store.NodeRev(c.ctx, *node.PredecessorId)
		if err != nil {
			return nil, fmt.Errorf("fsfs: reading predecessor node-rev %s: %w", *node.PredecessorId, err)
		}
		if predNode != nil {
			predRep := predNode.DataRep
			if isProp {
				predRep = predNode.PropRep
			}
			if predRep != nil {
				repOf := func(n *NodeRev) *Rep {
					if isProp {
						return n.PropRep
					}
					return n.DataRep
				}
				baseNode, err := ChooseDeltaBase(c.ctx, storePredecessorLookup(c.store), predNode,
					node.PredecessorCount, c.newRev, repOf, c.params.MaxLinearDeltification, c.params.MaxDeltificationWalk)
				if err != nil {
					return nil, fmt.Errorf("fsfs: choosing delta base for %s: %w", node.Id, err)
				}
				if baseNode != nil {
					baseRep := baseNode.DataRep
					if isProp {
						baseRep = baseNode.PropRep
					}
					if baseRep != nil {
						text, err := ReadRepText(c.layout, c.params.MaxFilesPerDir, baseRep)
						if err != nil {
							return nil, fmt.Errorf("fsfs: reading delta base text for %s: %w", node.Id, err)
						}
						base, baseText = baseRep, text
					}
				}
			}
		}
	}

	stream, err := OpenRep(c.writer, c.layout, c.txn, RepOptions{
		Base: base, BaseText: baseText,
		SvndiffVersion:    c.params.SvndiffVersion,
		RepSharingEnabled: c.params.RepSharingEnabled,
	})
	if err != nil {
		return nil, err
	}

	if _, err := io.Copy(stream, content); err != nil {
		stream.Abort()
		return nil, err
	}

	rep, shared, err := stream.Close(c.ctx, c.repCache, c.youngest)
	if err != nil {
		return nil, err
	}
	if !shared && rep.SHA1 != nil && c.params.RepSharingEnabled {
		sha1Hex := binhash.FormatDigest(rep.SHA1[:])
		c.pending[sha1Hex] = CacheEntry{
			Offset: rep.Offset, Size: rep.Size, ExpandedSize: rep.ExpandedSize, MD5: rep.MD5,
		}
	}
	if rep.Mutable() {
		stamped := *rep
		stamped.TxnId = ""
		stamped.Revision = c.newRev
		rep = &stamped
	}
	return rep, nil
}

func (c *committer) rewriteId(id NodeId) NodeId {
	if !id.Provisional() {
		return id
	}
	if c.params.ModernNodeIds() {
		return NodeId(strings.TrimPrefix(string(id), "_") + "-" + strconv.FormatInt(int64(c.newRev), 10))
	}
	local, _ := strconv.ParseInt(strings.TrimPrefix(string(id), "_"), 36, 64)
	// legacyNodeBase is `current`'s node-id counter as Commit read it
	// before this commit began.
	return NodeId(strconv.FormatInt(c.legacyNodeBase+local, 36))
}

func (c *committer) rewriteCopyId(id CopyId) CopyId {
	if !id.Provisional() {
		return id
	}
	if c.params.ModernNodeIds() {
		return CopyId(strings.TrimPrefix(string(id), "_") + "-" + strconv.FormatInt(int64(c.newRev), 10))
	}
	local, _ := strconv.ParseInt(strings.TrimPrefix(string(id), "_"), 36, 64)
	return CopyId(strconv.FormatInt(c.legacyCopyBase+local, 36))
}

// rewriteChangeIds rewrites each folded change's node-rev reference to
// its finalized form, for every reference that was still mutable.
func rewriteChangeIds(changes []Change, finalized map[NodeRevId]*NodeRev) []Change {
	out := make([]Change, len(changes))
	for i, ch := range changes {
		out[i] = ch
		if ch.NodeRevId != nil {
			if fn, ok := finalized[*ch.NodeRevId]; ok {
				out[i].NodeRevId = &fn.Id
			}
		}
	}
	return out
}

func storePredecessorLookup(store NodeStore) PredecessorLookup {
	return predecessorLookupFunc(func(ctx context.Context, id NodeRevId) (*NodeRev, error) {
		nr, err := store.NodeRev(ctx, id)
		if err != nil {
			return nil, err
		}
		if nr.PredecessorId == nil {
			return nil, nil
		}
		return store.NodeRev(ctx, *nr.PredecessorId)
	})
}

// writeRevProps promotes a transaction's property hash into the
// permanent revprops/ file for rev.
func writeRevProps(layout Layout, rev Rev, maxFilesPerDir int, props map[string]string) error {
	data, err := codec.Marshal(props)
	if err != nil {
		return fmt.Errorf("fsfs: encoding revision properties for r%d: %w", rev, err)
	}
	path := layout.RevPropsPath(rev, maxFilesPerDir)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("fsfs: writing revision properties for r%d: %w", rev, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("fsfs: renaming revision properties for r%d: %w", rev, err)
	}
	return nil
}

// renameIntoRevs moves src (a just-finished proto-rev file) into dst
// (its permanent revs/ location) and drops its write permission,
// matching real FSFS's convention that committed revision files are
// read-only.
func renameIntoRevs(src, dst string) error {
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("fsfs: publishing revision file: %w", err)
	}
	if err := os.Chmod(dst, 0444); err != nil {
		return fmt.Errorf("fsfs: setting revision file permissions: %w", err)
	}
	return nil
}
