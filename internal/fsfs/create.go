// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package fsfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"fsfscore/lib/clock"
	"fsfscore/lib/codec"
)

// Create bootstraps a brand-new repository at root: it lays out the
// directory skeleton (spec.md §6), writes the params file, publishes
// a bootstrapped revision 0 (an empty root directory with no
// properties), and opens the rep-cache database so it exists from the
// first commit onward. It is an error for root to already contain a
// repository.
func Create(ctx context.Context, root string, params Params, clk clock.Clock) (Layout, error) {
	if err := params.Validate(); err != nil {
		return Layout{}, err
	}
	layout := NewLayout(root, params.Format)

	if _, err := os.Stat(layout.CurrentPath()); err == nil {
		return Layout{}, fmt.Errorf("fsfs: repository already exists at %s", root)
	}

	for _, dir := range []string{root, filepath.Join(root, "revs"), filepath.Join(root, "revprops"), filepath.Join(root, "txns")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Layout{}, fmt.Errorf("fsfs: creating %s: %w", dir, err)
		}
	}
	if params.OutOfTreeProtoRevs() {
		if err := os.MkdirAll(filepath.Join(root, "txn-protorevs"), 0755); err != nil {
			return Layout{}, fmt.Errorf("fsfs: creating txn-protorevs: %w", err)
		}
	}

	formatData, err := yaml.Marshal(params)
	if err != nil {
		return Layout{}, fmt.Errorf("fsfs: encoding params: %w", err)
	}
	if err := atomicWriteString(layout.FormatPath(), string(formatData)); err != nil {
		return Layout{}, err
	}

	if err := EnsureShardDirs(layout, 0, params.MaxFilesPerDir); err != nil {
		return Layout{}, err
	}
	if err := writeBootstrapRevision(layout, params); err != nil {
		return Layout{}, err
	}

	revProps := map[string]string{
		PropDate:   clk.Now().UTC().Format(time.RFC3339Nano),
		PropAuthor: "",
		PropLog:    "",
	}
	if err := writeRevProps(layout, 0, params.MaxFilesPerDir, revProps); err != nil {
		return Layout{}, err
	}

	initial := CurrentState{Youngest: 0, NextNodeId: 1, NextCopyId: 1}
	if err := BumpCurrent(layout, initial, params.ModernNodeIds()); err != nil {
		return Layout{}, err
	}

	repCache, err := OpenRepCache(ctx, layout)
	if err != nil {
		return Layout{}, err
	}
	if err := repCache.Close(); err != nil {
		return Layout{}, err
	}

	return layout, nil
}

// rootNodeId is the permanent (node, copy) id of every repository's
// root directory. Unlike every other node, the root's id is never
// provisional and never rewritten at commit — it is the same across
// all revisions (spec.md §3).
const (
	rootNodeId = NodeId("0")
	rootCopyId = CopyId("0")
)

// writeBootstrapRevision publishes revision 0: a single root
// directory node-rev with no entries and no properties, followed by
// an empty changed-paths block and the usual trailer line.
func writeBootstrapRevision(layout Layout, params Params) error {
	path := layout.RevPath(0, params.MaxFilesPerDir)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("fsfs: creating bootstrap revision: %w", err)
	}
	defer file.Close()

	root := NodeRev{
		Id:          NodeRevId{Node: rootNodeId, Copy: rootCopyId, Rev: 0, Offset: 0},
		Kind:        KindDir,
		CreatedPath: "/",
		CopyRoot:    PathRev{Path: "/", Rev: 0},
	}
	if err := codec.NewEncoder(file).Encode(&root); err != nil {
		return fmt.Errorf("fsfs: writing bootstrap root node-rev: %w", err)
	}

	changedPathsOffset, err := file.Seek(0, os.SEEK_CUR)
	if err != nil {
		return fmt.Errorf("fsfs: seeking bootstrap revision: %w", err)
	}

	trailer := fmt.Sprintf("\n%d %d\n", 0, changedPathsOffset)
	if _, err := file.WriteString(trailer); err != nil {
		return fmt.Errorf("fsfs: writing bootstrap revision trailer: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("fsfs: syncing bootstrap revision: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("fsfs: closing bootstrap revision: %w", err)
	}
	return os.Chmod(path, 0444)
}
