// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package fsfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"fsfscore/lib/clock"
)

func TestCreateLaysOutRepositorySkeleton(t *testing.T) {
	root := t.TempDir()
	params := DefaultParams()

	layout, err := Create(context.Background(), root, params, clock.Real())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for _, dir := range []string{"revs", "revprops", "txns"} {
		if fi, err := os.Stat(filepath.Join(root, dir)); err != nil || !fi.IsDir() {
			t.Fatalf("expected directory %s to exist: %v", dir, err)
		}
	}
	if _, err := os.Stat(layout.FormatPath()); err != nil {
		t.Fatalf("format file missing: %v", err)
	}
	if _, err := os.Stat(layout.RepCachePath()); err != nil {
		t.Fatalf("rep-cache database missing: %v", err)
	}
}

func TestCreateSeedsCurrentAndRevisionZero(t *testing.T) {
	root := t.TempDir()
	layout, err := Create(context.Background(), root, DefaultParams(), clock.Real())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	cur, err := ReadCurrent(layout)
	if err != nil {
		t.Fatalf("ReadCurrent: %v", err)
	}
	if cur.Youngest != 0 || cur.NextNodeId != 0 || cur.NextCopyId != 0 {
		t.Fatalf("CurrentState = %+v, want Youngest=0 and no id counters (modern format)", cur)
	}

	revPath := layout.RevPath(0, DefaultParams().MaxFilesPerDir)
	if fi, err := os.Stat(revPath); err != nil {
		t.Fatalf("revision 0 file missing: %v", err)
	} else if fi.Mode().Perm()&0222 != 0 {
		t.Fatalf("revision 0 file should be read-only once published, mode=%v", fi.Mode())
	}
}

func TestCreateRejectsExistingRepository(t *testing.T) {
	root := t.TempDir()
	if _, err := Create(context.Background(), root, DefaultParams(), clock.Real()); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := Create(context.Background(), root, DefaultParams(), clock.Real()); err == nil {
		t.Fatal("expected second Create against the same root to fail")
	}
}

func TestCreateValidatesParams(t *testing.T) {
	bad := DefaultParams()
	bad.SvndiffVersion = 5
	if _, err := Create(context.Background(), t.TempDir(), bad, clock.Real()); err == nil {
		t.Fatal("expected Create to reject invalid params")
	}
}
