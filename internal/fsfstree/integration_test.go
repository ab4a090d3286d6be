// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package fsfstree_test

import (
	"context"
	"testing"

	"fsfscore/internal/fsfs"
	"fsfscore/internal/fsfstree"
	"fsfscore/lib/clock"
)

type allowAllLocks struct{}

func (allowAllLocks) OwnsLock(ctx context.Context, user, path string) (bool, error) { return true, nil }
func (allowAllLocks) OwnsRecursiveLock(ctx context.Context, user, path string) (bool, error) {
	return true, nil
}

type testRepo struct {
	t        *testing.T
	layout   fsfs.Layout
	params   fsfs.Params
	registry *fsfs.Registry
	repCache *fsfs.RepCache
	store    *fsfstree.Store
}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()
	ctx := context.Background()
	params := fsfs.DefaultParams()

	layout, err := fsfs.Create(ctx, t.TempDir(), params, clock.Real())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	repCache, err := fsfs.OpenRepCache(ctx, layout)
	if err != nil {
		t.Fatalf("OpenRepCache: %v", err)
	}
	t.Cleanup(func() { repCache.Close() })

	return &testRepo{
		t: t, layout: layout, params: params,
		registry: fsfs.NewRegistry(),
		repCache: repCache,
		store:    fsfstree.NewStore(layout, params),
	}
}

// commit begins a fresh transaction against youngest, applies fn
// against its working tree, and commits it, returning the resulting
// revision.
func (r *testRepo) commit(author string, fn func(ctx context.Context, tree *fsfstree.Tree, changes *fsfs.ChangesWriter)) fsfs.Rev {
	r.t.Helper()
	ctx := context.Background()

	txn, err := fsfs.Begin(r.layout, clock.Real(), fsfs.TxnFlags{})
	if err != nil {
		r.t.Fatalf("Begin: %v", err)
	}
	if err := fsfs.WriteProperties(r.layout, txn.Id, map[string]string{fsfs.PropAuthor: author}); err != nil {
		r.t.Fatalf("WriteProperties: %v", err)
	}

	tree, err := fsfstree.NewTree(ctx, r.store, r.layout, r.params, txn.Id, txn.BaseRev)
	if err != nil {
		r.t.Fatalf("NewTree: %v", err)
	}
	changes, err := fsfs.OpenChangesWriter(r.layout, txn.Id)
	if err != nil {
		r.t.Fatalf("OpenChangesWriter: %v", err)
	}

	fn(ctx, tree, changes)

	if err := changes.Close(); err != nil {
		r.t.Fatalf("changes.Close: %v", err)
	}

	result, err := fsfs.Commit(ctx, r.layout, r.params, r.registry, r.store, tree, allowAllLocks{}, r.repCache, txn, fsfs.CommitOptions{
		User: author, Clock: clock.Real(),
	})
	if err != nil {
		r.t.Fatalf("Commit: %v", err)
	}
	return result.Revision
}

func TestCreateBootstrapsEmptyRevisionZero(t *testing.T) {
	repo := newTestRepo(t)
	cur, err := fsfs.ReadCurrent(repo.layout)
	if err != nil {
		t.Fatalf("ReadCurrent: %v", err)
	}
	if cur.Youngest != 0 {
		t.Fatalf("Youngest = %d, want 0", cur.Youngest)
	}

	root, err := repo.store.Root(context.Background(), 0)
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if root.Kind != fsfs.KindDir {
		t.Fatalf("root kind = %v, want KindDir", root.Kind)
	}
}

func TestFirstCommitAddsDirectoryAndFile(t *testing.T) {
	repo := newTestRepo(t)

	rev := repo.commit("alice", func(ctx context.Context, tree *fsfstree.Tree, changes *fsfs.ChangesWriter) {
		if err := tree.MakeDir(ctx, changes, "/trunk"); err != nil {
			t.Fatalf("MakeDir: %v", err)
		}
		if err := tree.PutFile(ctx, changes, "/trunk/README.txt", []byte("hello world\n")); err != nil {
			t.Fatalf("PutFile: %v", err)
		}
	})
	if rev != 1 {
		t.Fatalf("Revision = %d, want 1", rev)
	}

	node, err := findPath(t, repo.store, rev, "/trunk/README.txt")
	if err != nil {
		t.Fatalf("findPath: %v", err)
	}
	text, err := fsfs.ReadRepText(repo.layout, repo.params.MaxFilesPerDir, node.DataRep)
	if err != nil {
		t.Fatalf("ReadRepText: %v", err)
	}
	if string(text) != "hello world\n" {
		t.Fatalf("file content = %q, want %q", text, "hello world\n")
	}

	changes, err := fsfstree.ReadChangedPaths(repo.layout, repo.params, rev)
	if err != nil {
		t.Fatalf("ReadChangedPaths: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("ReadChangedPaths returned %d entries, want 2 (/trunk, /trunk/README.txt)", len(changes))
	}
}

func TestSecondRevisionSeesFirstRevisionsTree(t *testing.T) {
	repo := newTestRepo(t)

	repo.commit("alice", func(ctx context.Context, tree *fsfstree.Tree, changes *fsfs.ChangesWriter) {
		tree.MakeDir(ctx, changes, "/trunk")
		tree.PutFile(ctx, changes, "/trunk/a.txt", []byte("one"))
	})
	rev2 := repo.commit("bob", func(ctx context.Context, tree *fsfstree.Tree, changes *fsfs.ChangesWriter) {
		if err := tree.PutFile(ctx, changes, "/trunk/b.txt", []byte("two")); err != nil {
			t.Fatalf("PutFile: %v", err)
		}
	})

	a, err := findPath(t, repo.store, rev2, "/trunk/a.txt")
	if err != nil {
		t.Fatalf("findPath a.txt: %v", err)
	}
	textA, err := fsfs.ReadRepText(repo.layout, repo.params.MaxFilesPerDir, a.DataRep)
	if err != nil {
		t.Fatalf("ReadRepText a.txt: %v", err)
	}
	if string(textA) != "one" {
		t.Fatalf("a.txt content = %q, want %q (must survive r2's unrelated commit)", textA, "one")
	}

	b, err := findPath(t, repo.store, rev2, "/trunk/b.txt")
	if err != nil {
		t.Fatalf("findPath b.txt: %v", err)
	}
	textB, err := fsfs.ReadRepText(repo.layout, repo.params.MaxFilesPerDir, b.DataRep)
	if err != nil {
		t.Fatalf("ReadRepText b.txt: %v", err)
	}
	if string(textB) != "two" {
		t.Fatalf("b.txt content = %q, want %q", textB, "two")
	}
}

func TestRepSharingReusesIdenticalContentAcrossRevisions(t *testing.T) {
	repo := newTestRepo(t)
	content := []byte("duplicate content, byte for byte")

	repo.commit("alice", func(ctx context.Context, tree *fsfstree.Tree, changes *fsfs.ChangesWriter) {
		tree.MakeDir(ctx, changes, "/trunk")
		tree.PutFile(ctx, changes, "/trunk/a.txt", content)
	})
	rev2 := repo.commit("alice", func(ctx context.Context, tree *fsfstree.Tree, changes *fsfs.ChangesWriter) {
		tree.PutFile(ctx, changes, "/trunk/b.txt", content)
	})

	a, err := findPath(t, repo.store, rev2, "/trunk/a.txt")
	if err != nil {
		t.Fatalf("findPath a.txt: %v", err)
	}
	b, err := findPath(t, repo.store, rev2, "/trunk/b.txt")
	if err != nil {
		t.Fatalf("findPath b.txt: %v", err)
	}
	if b.DataRep.Revision != a.DataRep.Revision || b.DataRep.Offset != a.DataRep.Offset {
		t.Fatalf("b.txt's rep %+v does not point at the same rep a.txt shares (%+v)", b.DataRep, a.DataRep)
	}
}

func TestCommitOutOfDateRejectsStaleTransaction(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	txn, err := fsfs.Begin(repo.layout, clock.Real(), fsfs.TxnFlags{CheckOutOfDate: true})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	// Someone else commits in the meantime, advancing youngest past
	// what this transaction was based on.
	repo.commit("bob", func(ctx context.Context, tree *fsfstree.Tree, changes *fsfs.ChangesWriter) {
		tree.MakeDir(ctx, changes, "/branches")
	})

	tree, err := fsfstree.NewTree(ctx, repo.store, repo.layout, repo.params, txn.Id, txn.BaseRev)
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	changes, err := fsfs.OpenChangesWriter(repo.layout, txn.Id)
	if err != nil {
		t.Fatalf("OpenChangesWriter: %v", err)
	}
	if err := tree.MakeDir(ctx, changes, "/tags"); err != nil {
		t.Fatalf("MakeDir: %v", err)
	}
	changes.Close()

	_, err = fsfs.Commit(ctx, repo.layout, repo.params, repo.registry, repo.store, tree, allowAllLocks{}, repo.repCache, txn, fsfs.CommitOptions{
		User: "alice", Clock: clock.Real(),
	})
	if err == nil {
		t.Fatal("expected Commit to reject an out-of-date transaction")
	}
}

func findPath(t *testing.T, store *fsfstree.Store, rev fsfs.Rev, treePath string) (*fsfs.NodeRev, error) {
	t.Helper()
	ctx := context.Background()
	node, err := store.Root(ctx, rev)
	if err != nil {
		return nil, err
	}

	segments := splitPath(treePath)
	for _, name := range segments {
		entries, err := fsfstree.ReadDirEntries(store, node)
		if err != nil {
			return nil, err
		}
		id, ok := entries[name]
		if !ok {
			t.Fatalf("%s: no such path (missing %q)", treePath, name)
		}
		node, err = store.NodeRev(ctx, id)
		if err != nil {
			return nil, err
		}
	}
	return node, nil
}

func splitPath(p string) []string {
	var segments []string
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				segments = append(segments, p[start:i])
			}
			start = i + 1
		}
	}
	return segments
}
