// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"fsfscore/internal/cli"
	"fsfscore/internal/fsfs"
	"fsfscore/internal/fsfstree"
	"fsfscore/lib/codec"
)

func youngestCommand() *cli.Command {
	return &cli.Command{
		Name:    "youngest",
		Summary: "Print the youngest committed revision",
		Usage:   "fsfsadmin youngest <path>",
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("youngest requires exactly one <path> argument")
			}
			layout, _, err := openLayout(args[0])
			if err != nil {
				return err
			}
			cur, err := fsfs.ReadCurrent(layout)
			if err != nil {
				return err
			}
			fmt.Println(int64(cur.Youngest))
			return nil
		},
	}
}

func logCommand() *cli.Command {
	return &cli.Command{
		Name:    "log",
		Summary: "Print a revision's properties and changed paths",
		Usage:   "fsfsadmin log <path> <rev>",
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("log requires <path> and <rev> arguments")
			}
			layout, params, err := openLayout(args[0])
			if err != nil {
				return err
			}
			rev, err := parseRev(args[1])
			if err != nil {
				return err
			}

			props, err := readRevProps(layout, params, rev)
			if err != nil {
				return err
			}
			fmt.Printf("r%d\n", int64(rev))
			fmt.Printf("author: %s\n", props[fsfs.PropAuthor])
			fmt.Printf("date: %s\n", props[fsfs.PropDate])
			fmt.Printf("log: %s\n", props[fsfs.PropLog])

			changes, err := fsfstree.ReadChangedPaths(layout, params, rev)
			if err != nil {
				return err
			}
			fmt.Println("changed paths:")
			for _, c := range changes {
				fmt.Printf("  %s %s\n", changeMarker(c.Kind), c.Path)
			}
			return nil
		},
	}
}

func catCommand() *cli.Command {
	return &cli.Command{
		Name:    "cat",
		Summary: "Print a file's content at a revision",
		Usage:   "fsfsadmin cat <path> <rev> <tree-path>",
		Run: func(args []string) error {
			if len(args) != 3 {
				return fmt.Errorf("cat requires <path>, <rev>, and <tree-path> arguments")
			}
			layout, params, err := openLayout(args[0])
			if err != nil {
				return err
			}
			rev, err := parseRev(args[1])
			if err != nil {
				return err
			}

			store := fsfstree.NewStore(layout, params)
			node, err := findPath(context.Background(), store, rev, args[2])
			if err != nil {
				return err
			}
			if node.Kind != fsfs.KindFile {
				return fmt.Errorf("%s is a directory", args[2])
			}
			if node.DataRep == nil {
				return nil
			}
			text, err := fsfs.ReadRepText(layout, params.MaxFilesPerDir, node.DataRep)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(text)
			return err
		},
	}
}

func parseRev(s string) (fsfs.Rev, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid revision %q: %w", s, err)
	}
	return fsfs.Rev(v), nil
}

func readRevProps(layout fsfs.Layout, params fsfs.Params, rev fsfs.Rev) (map[string]string, error) {
	data, err := os.ReadFile(layout.RevPropsPath(rev, params.MaxFilesPerDir))
	if err != nil {
		return nil, fmt.Errorf("reading properties for r%d: %w", rev, err)
	}
	props := map[string]string{}
	if err := codec.Unmarshal(data, &props); err != nil {
		return nil, fmt.Errorf("decoding properties for r%d: %w", rev, err)
	}
	return props, nil
}

// findPath walks dir entries from rev's root to resolve treePath,
// the administrative counterpart of fsfstree.Tree's in-transaction
// path resolution.
func findPath(ctx context.Context, store *fsfstree.Store, rev fsfs.Rev, treePath string) (*fsfs.NodeRev, error) {
	node, err := store.Root(ctx, rev)
	if err != nil {
		return nil, err
	}
	clean := strings.Trim(path.Clean(treePath), "/")
	if clean == "" || clean == "." {
		return node, nil
	}
	for _, name := range strings.Split(clean, "/") {
		if node.Kind != fsfs.KindDir {
			return nil, fmt.Errorf("%s is not a directory", name)
		}
		entries, err := fsfstree.ReadDirEntries(store, node)
		if err != nil {
			return nil, err
		}
		childId, ok := entries[name]
		if !ok {
			return nil, fmt.Errorf("%s: no such path", treePath)
		}
		node, err = store.NodeRev(ctx, childId)
		if err != nil {
			return nil, err
		}
	}
	return node, nil
}

func changeMarker(kind fsfs.ChangeKind) string {
	switch kind {
	case fsfs.ChangeAdd:
		return "A"
	case fsfs.ChangeDelete:
		return "D"
	case fsfs.ChangeReplace:
		return "R"
	case fsfs.ChangeModify:
		return "M"
	default:
		return "?"
	}
}
