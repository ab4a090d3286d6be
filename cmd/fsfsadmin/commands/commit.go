// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"fsfscore/internal/fsfs"
	"fsfscore/internal/fsfstree"

	"fsfscore/internal/cli"
	"fsfscore/lib/clock"
)

// commitCommand begins a transaction, applies the mutations named by
// its flags against an in-memory working tree, and commits — all
// within a single process. fsfstree.Tree keeps its overlay of touched
// nodes only in memory (spec.md §1 leaves the tree collaborator out
// of scope), so unlike a real svn client's separate checkout/add/
// commit steps, fsfsadmin's mutation and commit steps cannot be split
// across invocations; see DESIGN.md.
func commitCommand() *cli.Command {
	var author, message string
	var mkdirs, puts, removes, setprops []string
	var checkOutOfDate, checkLocks bool

	flags := func() *pflag.FlagSet {
		fs := pflag.NewFlagSet("commit", pflag.ContinueOnError)
		fs.StringVar(&author, "author", "", "svn:author property for the new revision")
		fs.StringVar(&message, "message", "", "svn:log property for the new revision")
		fs.StringArrayVar(&mkdirs, "mkdir", nil, "create an empty directory at <path> (repeatable)")
		fs.StringArrayVar(&puts, "put", nil, "write a file, formatted <path>=<local-file> (repeatable)")
		fs.StringArrayVar(&removes, "rm", nil, "delete <path> (repeatable)")
		fs.StringArrayVar(&setprops, "setprop", nil, "set a property, formatted <path>:<key>=<value> (repeatable)")
		fs.BoolVar(&checkOutOfDate, "check-ood", false, "reject the commit if the repository has moved on since begin")
		fs.BoolVar(&checkLocks, "check-locks", false, "verify the author holds every lock the commit touches")
		return fs
	}

	return &cli.Command{
		Name:    "commit",
		Summary: "Apply mutations and commit a new revision",
		Usage:   "fsfsadmin commit [flags] <path>",
		Flags:   flags,
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("commit requires exactly one <path> argument")
			}
			return runCommit(args[0], commitInputs{
				author: author, message: message,
				mkdirs: mkdirs, puts: puts, removes: removes, setprops: setprops,
				checkOutOfDate: checkOutOfDate, checkLocks: checkLocks,
			})
		},
	}
}

type commitInputs struct {
	author, message            string
	mkdirs, puts, removes      []string
	setprops                   []string
	checkOutOfDate, checkLocks bool
}

func runCommit(root string, in commitInputs) error {
	ctx := context.Background()
	layout, params, err := openLayout(root)
	if err != nil {
		return err
	}

	registry := fsfs.NewRegistry()
	repCache, err := fsfs.OpenRepCache(ctx, layout)
	if err != nil {
		return err
	}
	defer repCache.Close()

	store := fsfstree.NewStore(layout, params)

	txn, err := fsfs.Begin(layout, clock.Real(), fsfs.TxnFlags{CheckOutOfDate: in.checkOutOfDate, CheckLocks: in.checkLocks})
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if !committed {
			fsfs.Abort(layout, registry, txn.Id)
		}
	}()

	props, err := fsfs.ReadProperties(layout, txn.Id)
	if err != nil {
		return err
	}
	if in.author != "" {
		props[fsfs.PropAuthor] = in.author
	}
	if in.message != "" {
		props[fsfs.PropLog] = in.message
	}
	if err := fsfs.WriteProperties(layout, txn.Id, props); err != nil {
		return err
	}

	tree, err := fsfstree.NewTree(ctx, store, layout, params, txn.Id, txn.BaseRev)
	if err != nil {
		return err
	}

	changes, err := fsfs.OpenChangesWriter(layout, txn.Id)
	if err != nil {
		return err
	}
	if err := applyMutations(ctx, tree, changes, in); err != nil {
		changes.Close()
		return err
	}
	if err := changes.Close(); err != nil {
		return err
	}

	locks := noLocks{}
	result, err := fsfs.Commit(ctx, layout, params, registry, store, tree, locks, repCache, txn, fsfs.CommitOptions{
		User:  in.author,
		Clock: clock.Real(),
	})
	if err != nil {
		return err
	}
	committed = true

	fmt.Printf("committed r%d\n", int64(result.Revision))
	return nil
}

func applyMutations(ctx context.Context, tree *fsfstree.Tree, changes *fsfs.ChangesWriter, in commitInputs) error {
	for _, p := range in.mkdirs {
		if err := tree.MakeDir(ctx, changes, p); err != nil {
			return fmt.Errorf("mkdir %s: %w", p, err)
		}
	}
	for _, spec := range in.puts {
		path, localFile, ok := strings.Cut(spec, "=")
		if !ok {
			return fmt.Errorf("--put %q must be formatted <path>=<local-file>", spec)
		}
		content, err := os.ReadFile(localFile)
		if err != nil {
			return fmt.Errorf("reading %s: %w", localFile, err)
		}
		if err := tree.PutFile(ctx, changes, path, content); err != nil {
			return fmt.Errorf("put %s: %w", path, err)
		}
	}
	for _, p := range in.removes {
		if err := tree.Delete(ctx, changes, p); err != nil {
			return fmt.Errorf("rm %s: %w", p, err)
		}
	}
	for _, spec := range in.setprops {
		path, rest, ok := strings.Cut(spec, ":")
		if !ok {
			return fmt.Errorf("--setprop %q must be formatted <path>:<key>=<value>", spec)
		}
		key, value, ok := strings.Cut(rest, "=")
		if !ok {
			return fmt.Errorf("--setprop %q must be formatted <path>:<key>=<value>", spec)
		}
		if err := tree.SetProperty(ctx, changes, path, key, value); err != nil {
			return fmt.Errorf("setprop %s: %w", path, err)
		}
	}
	return nil
}

// noLocks is the zero-configuration LockProvider for fsfsadmin: no
// path is ever locked, so commits with --check-locks always pass.
// A deployment backing locks with a real lock table implements
// fsfs.LockProvider itself.
type noLocks struct{}

func (noLocks) OwnsLock(ctx context.Context, user, path string) (bool, error)          { return true, nil }
func (noLocks) OwnsRecursiveLock(ctx context.Context, user, path string) (bool, error) { return true, nil }
