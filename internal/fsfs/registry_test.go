// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package fsfs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRegistryTrackForget(t *testing.T) {
	r := NewRegistry()
	r.Track("0-0")
	r.Track("0-0") // idempotent
	r.Forget("0-0")
	r.Forget("0-0") // idempotent
}

func TestRegistryBeginWriteDetectsInProcessContention(t *testing.T) {
	r := NewRegistry()
	writer := &ProtoRevWriter{}

	if err := r.beginWrite("0-0", writer); err != nil {
		t.Fatalf("first beginWrite: %v", err)
	}
	err := r.beginWrite("0-0", writer)
	if err == nil {
		t.Fatal("expected second beginWrite for the same txn to fail")
	}
	if !IsRetryable(err) {
		t.Fatalf("beginWrite contention error should be retryable, got %v", err)
	}

	r.endWrite("0-0")
	if err := r.beginWrite("0-0", writer); err != nil {
		t.Fatalf("beginWrite after endWrite: %v", err)
	}
}

func TestAcquireProtoRevWriterDetectsCrossProcessContention(t *testing.T) {
	layout := NewLayout(t.TempDir(), FormatModernTxnIds)
	txn := TxnId("0-0")
	if err := os.MkdirAll(filepath.Dir(layout.TxnProtoRevLockPath(txn)), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	r1 := NewRegistry()
	w1, err := r1.AcquireProtoRevWriter(layout, txn)
	if err != nil {
		t.Fatalf("first AcquireProtoRevWriter: %v", err)
	}
	defer w1.Release()

	// A second, independent registry simulates a second process: the
	// in-process marker can't help it, so it must fail on the
	// cross-process flock instead.
	r2 := NewRegistry()
	_, err = r2.AcquireProtoRevWriter(layout, txn)
	if err == nil {
		t.Fatal("expected second AcquireProtoRevWriter to fail while the first holds the lock")
	}
	if !IsRetryable(err) {
		t.Fatalf("cross-process contention error should be retryable, got %v", err)
	}
}

func TestProtoRevWriterOffsetAdvancesAsItWrites(t *testing.T) {
	layout := NewLayout(t.TempDir(), FormatModernTxnIds)
	txn := TxnId("0-0")
	if err := os.MkdirAll(filepath.Dir(layout.TxnProtoRevLockPath(txn)), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	r := NewRegistry()
	w, err := r.AcquireProtoRevWriter(layout, txn)
	if err != nil {
		t.Fatalf("AcquireProtoRevWriter: %v", err)
	}
	defer w.Release()

	start, err := w.Offset()
	if err != nil {
		t.Fatalf("Offset: %v", err)
	}
	if start != 0 {
		t.Fatalf("Offset = %d, want 0 for a fresh proto-rev", start)
	}

	if _, err := w.File().WriteString("hello"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	after, err := w.Offset()
	if err != nil {
		t.Fatalf("Offset: %v", err)
	}
	if after != 5 {
		t.Fatalf("Offset after writing 5 bytes = %d, want 5", after)
	}
}
