// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package fsfs

import (
	"os"
	"testing"
	"time"

	"fsfscore/lib/clock"
)

func newTestRepo(t *testing.T) Layout {
	t.Helper()
	root := t.TempDir()
	layout := NewLayout(root, FormatModernTxnIds)
	if err := os.MkdirAll(root, 0755); err != nil {
		t.Fatalf("creating repo root: %v", err)
	}
	if err := BumpCurrent(layout, CurrentState{Youngest: 0}, true); err != nil {
		t.Fatalf("BumpCurrent: %v", err)
	}
	return layout
}

func TestBeginAssignsTxnIdBasedOnYoungest(t *testing.T) {
	layout := newTestRepo(t)
	clk := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	txn, err := Begin(layout, clk, TxnFlags{})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if txn.BaseRev != 0 {
		t.Fatalf("BaseRev = %d, want 0", txn.BaseRev)
	}
	base, err := txn.Id.BaseRev()
	if err != nil {
		t.Fatalf("txn.Id.BaseRev: %v", err)
	}
	if base != 0 {
		t.Fatalf("txn id %q encodes base revision %d, want 0", txn.Id, base)
	}

	props, err := ReadProperties(layout, txn.Id)
	if err != nil {
		t.Fatalf("ReadProperties: %v", err)
	}
	if props[PropDate] == "" {
		t.Fatal("Begin did not seed svn:date")
	}
}

func TestBeginTwiceProducesDistinctTxnIds(t *testing.T) {
	layout := newTestRepo(t)
	clk := clock.Real()

	txn1, err := Begin(layout, clk, TxnFlags{})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	txn2, err := Begin(layout, clk, TxnFlags{})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if txn1.Id == txn2.Id {
		t.Fatalf("two Begin calls produced the same txn id %q", txn1.Id)
	}
}

func TestReserveNodeAndCopyIdsAreProvisionalAndIncrement(t *testing.T) {
	layout := newTestRepo(t)
	txn, err := Begin(layout, clock.Real(), TxnFlags{})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	n1, err := ReserveNodeId(layout, txn.Id)
	if err != nil {
		t.Fatalf("ReserveNodeId: %v", err)
	}
	n2, err := ReserveNodeId(layout, txn.Id)
	if err != nil {
		t.Fatalf("ReserveNodeId: %v", err)
	}
	if !n1.Provisional() || !n2.Provisional() {
		t.Fatalf("reserved ids must be provisional: %q, %q", n1, n2)
	}
	if n1 == n2 {
		t.Fatalf("ReserveNodeId returned the same id twice: %q", n1)
	}

	c1, err := ReserveCopyId(layout, txn.Id)
	if err != nil {
		t.Fatalf("ReserveCopyId: %v", err)
	}
	if !c1.Provisional() {
		t.Fatalf("reserved copy id must be provisional: %q", c1)
	}
}

func TestAbortRemovesTransactionWorkspace(t *testing.T) {
	layout := newTestRepo(t)
	registry := NewRegistry()
	txn, err := Begin(layout, clock.Real(), TxnFlags{})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	if err := Abort(layout, registry, txn.Id); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if _, err := os.Stat(layout.TxnDir(txn.Id)); !os.IsNotExist(err) {
		t.Fatalf("txn dir still exists after Abort: %v", err)
	}
}

func TestSetTxnDateOverwritesDate(t *testing.T) {
	layout := newTestRepo(t)
	txn, err := Begin(layout, clock.Real(), TxnFlags{})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	when := time.Date(2030, 6, 15, 12, 0, 0, 0, time.UTC)
	if err := SetTxnDate(layout, txn.Id, when); err != nil {
		t.Fatalf("SetTxnDate: %v", err)
	}
	props, err := ReadProperties(layout, txn.Id)
	if err != nil {
		t.Fatalf("ReadProperties: %v", err)
	}
	want := when.UTC().Format(time.RFC3339Nano)
	if props[PropDate] != want {
		t.Fatalf("svn:date = %q, want %q", props[PropDate], want)
	}
}
