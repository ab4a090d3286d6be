// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package fsfstree

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"fsfscore/internal/fsfs"
	"fsfscore/lib/codec"
)

// dirEntry is the on-disk shape of one directory entry, serialized as
// part of a directory node-rev's data representation.
type dirEntry struct {
	Name string
	Node fsfs.NodeRevId
}

// mutableNode is the in-memory bookkeeping Tree keeps for every
// node-rev that has been touched (or created) within the open
// transaction.
type mutableNode struct {
	rev      *fsfs.NodeRev
	children map[string]fsfs.NodeRevId // KindDir only
	text     []byte                    // KindFile only, pending content
	props    map[string]string         // pending property hash
}

// Tree is an in-memory, copy-on-write working tree for one open
// transaction: it implements fsfs.MutableTree, answering reads from
// its overlay of touched nodes and falling back to committed
// revisions (via Store) for everything else. It is the concrete
// collaborator internal/fsfs's commit pipeline drives.
type Tree struct {
	store   *Store
	layout  fsfs.Layout
	params  fsfs.Params
	txn     fsfs.TxnId
	baseRev fsfs.Rev

	nodes  map[fsfs.NodeRevId]*mutableNode
	rootId fsfs.NodeRevId
}

// NewTree opens a fresh mutable working tree based on baseRev's root,
// ready to receive MakeDir/PutFile/SetProperty/Delete calls against
// txn.
func NewTree(ctx context.Context, store *Store, layout fsfs.Layout, params fsfs.Params, txn fsfs.TxnId, baseRev fsfs.Rev) (*Tree, error) {
	baseRoot, err := store.Root(ctx, baseRev)
	if err != nil {
		return nil, fmt.Errorf("fsfstree: reading base root at r%d: %w", baseRev, err)
	}

	rootId := fsfs.NodeRevId{Node: baseRoot.Id.Node, Copy: baseRoot.Id.Copy, TxnId: txn}
	root := &fsfs.NodeRev{
		Id:               rootId,
		Kind:             fsfs.KindDir,
		PredecessorId:    &baseRoot.Id,
		PredecessorCount: baseRoot.PredecessorCount + 1,
		CreatedPath:      "/",
		CopyRoot:         fsfs.PathRev{Path: "/", Rev: baseRev},
		DataRep:          &fsfs.Rep{TxnId: txn},
		PropRep:          baseRoot.PropRep,
		FreshTxnRoot:     true,
	}

	children, err := readChildren(store, baseRoot)
	if err != nil {
		return nil, err
	}

	t := &Tree{store: store, layout: layout, params: params, txn: txn, baseRev: baseRev, rootId: rootId,
		nodes: make(map[fsfs.NodeRevId]*mutableNode)}
	t.nodes[rootId] = &mutableNode{rev: root, children: children}
	return t, nil
}

func readChildren(store *Store, dir *fsfs.NodeRev) (map[string]fsfs.NodeRevId, error) {
	children := make(map[string]fsfs.NodeRevId)
	if dir.DataRep == nil {
		return children, nil
	}
	text, err := fsfs.ReadRepText(store.Layout, store.Params.MaxFilesPerDir, dir.DataRep)
	if err != nil {
		return nil, fmt.Errorf("fsfstree: reading directory entries for %s: %w", dir.Id, err)
	}
	var entries []dirEntry
	if err := codec.Unmarshal(text, &entries); err != nil {
		return nil, fmt.Errorf("fsfstree: decoding directory entries for %s: %w", dir.Id, err)
	}
	for _, e := range entries {
		children[e.Name] = e.Node
	}
	return children, nil
}

// Root implements fsfs.MutableTree.
func (t *Tree) Root(ctx context.Context) (*fsfs.NodeRev, error) {
	return t.nodes[t.rootId].rev, nil
}

// Children implements fsfs.MutableTree.
func (t *Tree) Children(ctx context.Context, dir *fsfs.NodeRev) ([]fsfs.TreeEntry, error) {
	mn, ok := t.nodes[dir.Id]
	if !ok {
		return nil, fmt.Errorf("fsfstree: %s is not part of this transaction's working tree", dir.Id)
	}

	names := make([]string, 0, len(mn.children))
	for name := range mn.children {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]fsfs.TreeEntry, 0, len(names))
	for _, name := range names {
		childId := mn.children[name]
		child, err := t.resolve(ctx, childId)
		if err != nil {
			return nil, err
		}
		entries = append(entries, fsfs.TreeEntry{Name: name, Node: child})
	}
	return entries, nil
}

func (t *Tree) resolve(ctx context.Context, id fsfs.NodeRevId) (*fsfs.NodeRev, error) {
	if mn, ok := t.nodes[id]; ok {
		return mn.rev, nil
	}
	return t.store.NodeRev(ctx, id)
}

// SetFinalized implements fsfs.MutableTree: it updates this tree's own
// bookkeeping after the commit pipeline finalizes a node, so any
// further queries against this (about-to-be-discarded) Tree see
// consistent state.
func (t *Tree) SetFinalized(ctx context.Context, old fsfs.NodeRevId, final *fsfs.NodeRev) error {
	if mn, ok := t.nodes[old]; ok {
		mn.rev = final
		t.nodes[final.Id] = mn
	}
	return nil
}

// DirectoryEntriesText implements fsfs.MutableTree.
func (t *Tree) DirectoryEntriesText(ctx context.Context, dir *fsfs.NodeRev, entries []fsfs.TreeEntry) (io.Reader, error) {
	out := make([]dirEntry, len(entries))
	for i, e := range entries {
		out[i] = dirEntry{Name: e.Name, Node: e.Node.Id}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	data, err := codec.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("fsfstree: encoding directory entries for %s: %w", dir.Id, err)
	}
	return bytes.NewReader(data), nil
}

// PropertiesText implements fsfs.MutableTree.
func (t *Tree) PropertiesText(ctx context.Context, node *fsfs.NodeRev) (io.Reader, error) {
	mn, ok := t.nodes[node.Id]
	props := map[string]string{}
	if ok && mn.props != nil {
		props = mn.props
	}
	data, err := codec.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("fsfstree: encoding properties for %s: %w", node.Id, err)
	}
	return bytes.NewReader(data), nil
}

// FileText implements fsfs.MutableTree.
func (t *Tree) FileText(ctx context.Context, node *fsfs.NodeRev) (fsfs.TextSource, error) {
	mn, ok := t.nodes[node.Id]
	if !ok {
		return nil, fmt.Errorf("fsfstree: %s is not part of this transaction's working tree", node.Id)
	}
	return bytes.NewReader(mn.text), nil
}

// MakeDir creates an empty mutable directory at path, cloning every
// ancestor along the way into a fresh mutable copy-on-write revision
// (the classic FSFS "make path mutable" walk).
func (t *Tree) MakeDir(ctx context.Context, changes *fsfs.ChangesWriter, p string) error {
	return t.mutate(ctx, changes, p, func(parent *mutableNode, name string) error {
		if _, exists := parent.children[name]; exists {
			return fmt.Errorf("fsfstree: %s already exists", p)
		}
		nodeId, err := fsfs.ReserveNodeId(t.layout, t.txn)
		if err != nil {
			return err
		}
		id := fsfs.NodeRevId{Node: nodeId, Copy: parent.rev.Id.Copy, TxnId: t.txn}
		nr := &fsfs.NodeRev{Id: id, Kind: fsfs.KindDir, CreatedPath: p, DataRep: &fsfs.Rep{TxnId: t.txn}}
		t.nodes[id] = &mutableNode{rev: nr, children: map[string]fsfs.NodeRevId{}, props: map[string]string{}}
		parent.children[name] = id
		return changes.Append(fsfs.Change{Path: p, Kind: fsfs.ChangeAdd, NodeRevId: &id, NodeKind: fsfs.KindDir})
	})
}

// PutFile creates or overwrites a file's content at path.
func (t *Tree) PutFile(ctx context.Context, changes *fsfs.ChangesWriter, p string, content []byte) error {
	return t.mutate(ctx, changes, p, func(parent *mutableNode, name string) error {
		existingId, exists := parent.children[name]

		var id fsfs.NodeRevId
		var nr *fsfs.NodeRev
		kind := fsfs.ChangeAdd
		if exists {
			existing, err := t.resolve(ctx, existingId)
			if err != nil {
				return err
			}
			if existing.Id.Mutable() {
				id = existing.Id
				nr = existing
			} else {
				id = fsfs.NodeRevId{Node: existing.Id.Node, Copy: existing.Id.Copy, TxnId: t.txn}
				nr = &fsfs.NodeRev{Id: id, Kind: fsfs.KindFile, CreatedPath: p,
					PredecessorId: &existing.Id, PredecessorCount: existing.PredecessorCount + 1,
					CopyRoot: existing.CopyRoot, PropRep: existing.PropRep}
			}
			kind = fsfs.ChangeModify
		} else {
			nodeId, err := fsfs.ReserveNodeId(t.layout, t.txn)
			if err != nil {
				return err
			}
			id = fsfs.NodeRevId{Node: nodeId, Copy: parent.rev.Id.Copy, TxnId: t.txn}
			nr = &fsfs.NodeRev{Id: id, Kind: fsfs.KindFile, CreatedPath: p}
		}

		nr.DataRep = &fsfs.Rep{TxnId: t.txn}
		if nr.PropRep == nil {
			nr.PropRep = &fsfs.Rep{TxnId: t.txn}
		}

		mn, ok := t.nodes[id]
		if !ok {
			mn = &mutableNode{props: map[string]string{}}
			t.nodes[id] = mn
		}
		mn.rev = nr
		mn.text = content
		parent.children[name] = id

		return changes.Append(fsfs.Change{Path: p, Kind: kind, NodeRevId: &id, TextMod: true, NodeKind: fsfs.KindFile})
	})
}

// Delete removes the node at path from its parent directory.
func (t *Tree) Delete(ctx context.Context, changes *fsfs.ChangesWriter, p string) error {
	parentPath, name := path.Split(strings.TrimSuffix(p, "/"))
	parent, err := t.makeMutable(ctx, changes, strings.TrimSuffix(parentPath, "/"))
	if err != nil {
		return err
	}
	childId, exists := parent.children[name]
	if !exists {
		return fmt.Errorf("fsfstree: %s does not exist", p)
	}
	child, err := t.resolve(ctx, childId)
	if err != nil {
		return err
	}
	delete(parent.children, name)
	return changes.Append(fsfs.Change{Path: p, Kind: fsfs.ChangeDelete, NodeRevId: &childId, NodeKind: child.Kind})
}

// SetProperty sets a property on the node at path.
func (t *Tree) SetProperty(ctx context.Context, changes *fsfs.ChangesWriter, p, key, value string) error {
	return t.mutate(ctx, changes, p, func(parent *mutableNode, name string) error {
		childId, exists := parent.children[name]
		if !exists {
			return fmt.Errorf("fsfstree: %s does not exist", p)
		}
		child, err := t.resolve(ctx, childId)
		if err != nil {
			return err
		}

		id := childId
		if !child.Id.Mutable() {
			id = fsfs.NodeRevId{Node: child.Id.Node, Copy: child.Id.Copy, TxnId: t.txn}
			clone := *child
			clone.Id = id
			clone.PredecessorId = &child.Id
			clone.PredecessorCount = child.PredecessorCount + 1
			t.nodes[id] = &mutableNode{rev: &clone, props: map[string]string{}}
			if child.Kind == fsfs.KindDir {
				children, err := readChildren(t.store, child)
				if err != nil {
					return err
				}
				t.nodes[id].children = children
			}
			parent.children[name] = id
		}

		mn := t.nodes[id]
		if mn.props == nil {
			mn.props = map[string]string{}
		}
		mn.props[key] = value
		mn.rev.PropRep = &fsfs.Rep{TxnId: t.txn}

		return changes.Append(fsfs.Change{Path: p, Kind: fsfs.ChangeModify, NodeRevId: &id, PropMod: true, NodeKind: mn.rev.Kind})
	})
}

// mutate clones every ancestor directory of path into a mutable
// copy-on-write version, then invokes fn against the (now mutable)
// parent directory and the leaf's name.
func (t *Tree) mutate(ctx context.Context, changes *fsfs.ChangesWriter, p string, fn func(parent *mutableNode, name string) error) error {
	clean := strings.TrimSuffix(p, "/")
	parentPath, name := path.Split(clean)
	parent, err := t.makeMutable(ctx, changes, strings.TrimSuffix(parentPath, "/"))
	if err != nil {
		return err
	}
	return fn(parent, name)
}

// makeMutable returns dirPath's mutable node, cloning it (and every
// ancestor above it) from its committed predecessor if it is not
// already mutable.
func (t *Tree) makeMutable(ctx context.Context, changes *fsfs.ChangesWriter, dirPath string) (*mutableNode, error) {
	if dirPath == "" || dirPath == "/" {
		return t.nodes[t.rootId], nil
	}

	parentPath, name := path.Split(strings.TrimSuffix(dirPath, "/"))
	parent, err := t.makeMutable(ctx, changes, strings.TrimSuffix(parentPath, "/"))
	if err != nil {
		return nil, err
	}

	childId, exists := parent.children[name]
	if !exists {
		return nil, fmt.Errorf("fsfstree: directory %s does not exist", dirPath)
	}
	if mn, ok := t.nodes[childId]; ok {
		return mn, nil
	}

	committed, err := t.store.NodeRev(ctx, childId)
	if err != nil {
		return nil, err
	}
	if committed.Kind != fsfs.KindDir {
		return nil, fmt.Errorf("fsfstree: %s is not a directory", dirPath)
	}

	children, err := readChildren(t.store, committed)
	if err != nil {
		return nil, err
	}

	id := fsfs.NodeRevId{Node: committed.Id.Node, Copy: committed.Id.Copy, TxnId: t.txn}
	clone := *committed
	clone.Id = id
	clone.PredecessorId = &committed.Id
	clone.PredecessorCount = committed.PredecessorCount + 1
	clone.DataRep = &fsfs.Rep{TxnId: t.txn}

	mn := &mutableNode{rev: &clone, children: children, props: map[string]string{}}
	t.nodes[id] = mn
	parent.children[name] = id

	if err := changes.Append(fsfs.Change{Path: dirPath, Kind: fsfs.ChangeModify, NodeRevId: &id, NodeKind: fsfs.KindDir}); err != nil {
		return nil, err
	}
	return mn, nil
}
