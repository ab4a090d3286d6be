// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package fsfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func newTestTxnDir(t *testing.T) (Layout, TxnId) {
	t.Helper()
	layout := NewLayout(t.TempDir(), FormatModernTxnIds)
	txn := TxnId("1-abc")
	if err := os.MkdirAll(layout.TxnDir(txn), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(layout.TxnProtoRevPath(txn)), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	return layout, txn
}

// putRep is the test helper for writing one representation end to
// end: acquire the transaction's proto-rev writer, stream content
// through it, close the representation, and release the writer. The
// commit pipeline instead spreads this acquire/write/release cycle
// across many representations sharing one acquired writer
// (commit.go's writeRepKind); tests that only care about one rep at a
// time use this shorthand.
func putRep(ctx context.Context, registry *Registry, layout Layout, txn TxnId, content []byte, opts RepOptions) (*Rep, bool, error) {
	writer, err := registry.AcquireProtoRevWriter(layout, txn)
	if err != nil {
		return nil, false, err
	}
	stream, err := OpenRep(writer, layout, txn, opts)
	if err != nil {
		writer.Release()
		return nil, false, err
	}
	if _, err := stream.Write(content); err != nil {
		stream.Abort()
		writer.Release()
		return nil, false, err
	}
	rep, shared, err := stream.Close(ctx, nil, 0)
	if err != nil {
		writer.Release()
		return nil, false, err
	}
	if err := writer.Release(); err != nil {
		return nil, false, err
	}
	return rep, shared, nil
}

func TestPutRepAndReadRepTextRoundtripSelfDelta(t *testing.T) {
	layout, txn := newTestTxnDir(t)
	registry := NewRegistry()
	ctx := context.Background()

	rep, _, err := putRep(ctx, registry, layout, txn, []byte("hello, representation"), RepOptions{})
	if err != nil {
		t.Fatalf("putRep: %v", err)
	}
	if !rep.Mutable() {
		t.Fatal("rep written into a transaction should be Mutable until finalized")
	}

	got, err := ReadRepText(layout, 1000, rep)
	if err != nil {
		t.Fatalf("ReadRepText: %v", err)
	}
	if string(got) != "hello, representation" {
		t.Fatalf("ReadRepText = %q, want %q", got, "hello, representation")
	}
}

func TestPutRepDeltaAgainstBase(t *testing.T) {
	layout, txn := newTestTxnDir(t)
	registry := NewRegistry()
	ctx := context.Background()

	base, _, err := putRep(ctx, registry, layout, txn, []byte("the quick brown fox jumps over the lazy dog"), RepOptions{})
	if err != nil {
		t.Fatalf("putRep base: %v", err)
	}
	// A delta header names its base by revision, so publish the base's
	// proto-rev as revision 0 before deltifying against it.
	if err := os.MkdirAll(layout.RevShardDir(0, 1000), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.Rename(layout.TxnProtoRevPath(txn), layout.RevPath(0, 1000)); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	base.TxnId = ""
	baseText, err := ReadRepText(layout, 1000, base)
	if err != nil {
		t.Fatalf("ReadRepText base: %v", err)
	}

	derived, _, err := putRep(ctx, registry, layout, txn, []byte("the quick brown fox leaps over the lazy dog"), RepOptions{
		Base:     base,
		BaseText: baseText,
	})
	if err != nil {
		t.Fatalf("putRep derived: %v", err)
	}

	got, err := ReadRepText(layout, 1000, derived)
	if err != nil {
		t.Fatalf("ReadRepText derived: %v", err)
	}
	if string(got) != "the quick brown fox leaps over the lazy dog" {
		t.Fatalf("ReadRepText derived = %q, want the edited text", got)
	}
}

func TestPutRepWithSharingReusesIntraTxnDuplicate(t *testing.T) {
	layout, txn := newTestTxnDir(t)
	registry := NewRegistry()
	ctx := context.Background()
	opts := RepOptions{RepSharingEnabled: true}

	first, _, err := putRep(ctx, registry, layout, txn, []byte("duplicate payload"), opts)
	if err != nil {
		t.Fatalf("putRep first: %v", err)
	}

	writer, err := registry.AcquireProtoRevWriter(layout, txn)
	if err != nil {
		t.Fatalf("AcquireProtoRevWriter: %v", err)
	}
	stream, err := OpenRep(writer, layout, txn, opts)
	if err != nil {
		t.Fatalf("OpenRep: %v", err)
	}
	if _, err := stream.Write([]byte("duplicate payload")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	second, shared, err := stream.Close(ctx, nil, 0)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := writer.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if !shared {
		t.Fatal("identical content written twice within one transaction should be reported as shared")
	}
	if second.Offset != first.Offset || second.Size != first.Size {
		t.Fatalf("shared rep %+v does not match the original %+v", second, first)
	}
}

func TestRepStreamWriteAfterCloseFails(t *testing.T) {
	layout, txn := newTestTxnDir(t)
	registry := NewRegistry()
	ctx := context.Background()

	writer, err := registry.AcquireProtoRevWriter(layout, txn)
	if err != nil {
		t.Fatalf("AcquireProtoRevWriter: %v", err)
	}
	defer writer.Release()

	stream, err := OpenRep(writer, layout, txn, RepOptions{})
	if err != nil {
		t.Fatalf("OpenRep: %v", err)
	}
	if _, _, err := stream.Close(ctx, nil, 0); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := stream.Write([]byte("too late")); err == nil {
		t.Fatal("expected Write after Close to fail")
	}
}

func TestPutRepWritesEndrepTrailer(t *testing.T) {
	layout, txn := newTestTxnDir(t)
	registry := NewRegistry()
	ctx := context.Background()

	rep, _, err := putRep(ctx, registry, layout, txn, []byte("hello, representation"), RepOptions{})
	if err != nil {
		t.Fatalf("putRep: %v", err)
	}

	data, err := os.ReadFile(layout.TxnProtoRevPath(txn))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	trailerStart := rep.Offset + int64(len("DELTA\n")) + rep.Size
	got := string(data[trailerStart : trailerStart+int64(len("ENDREP\n"))])
	if got != "ENDREP\n" {
		t.Fatalf("trailer = %q, want %q", got, "ENDREP\n")
	}
}

func TestRepHeaderTextRoundtrip(t *testing.T) {
	selfDelta := RepHeader{SelfDelta: true}
	got, err := parseRepHeader(selfDelta.text())
	if err != nil {
		t.Fatalf("parseRepHeader(self-delta): %v", err)
	}
	if !got.SelfDelta {
		t.Fatalf("got = %+v, want SelfDelta", got)
	}

	delta := RepHeader{BaseRevision: 4, BaseOffset: 128, BaseLength: 64}
	got, err = parseRepHeader(delta.text())
	if err != nil {
		t.Fatalf("parseRepHeader(delta): %v", err)
	}
	if got != delta {
		t.Fatalf("got = %+v, want %+v", got, delta)
	}
}

func TestParseRepHeaderRejectsGarbage(t *testing.T) {
	if _, err := parseRepHeader("not a header\n"); err == nil {
		t.Fatal("expected an error for a malformed representation header")
	}
}
