// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package fsfs

import (
	"context"
	"testing"
)

func openTestRepCache(t *testing.T) *RepCache {
	t.Helper()
	layout := NewLayout(t.TempDir(), FormatModernTxnIds)
	cache, err := OpenRepCache(context.Background(), layout)
	if err != nil {
		t.Fatalf("OpenRepCache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestRepCacheLookupMiss(t *testing.T) {
	cache := openTestRepCache(t)
	_, ok, err := cache.Lookup(context.Background(), "deadbeef", 10)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if ok {
		t.Fatal("Lookup reported a hit in an empty cache")
	}
}

func TestRepCacheInsertAndLookup(t *testing.T) {
	cache := openTestRepCache(t)
	want := CacheEntry{Revision: 3, Offset: 128, Size: 64, ExpandedSize: 100, MD5: [16]byte{1, 2, 3}}

	if err := cache.Insert(context.Background(), "abc123", want); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, ok, err := cache.Lookup(context.Background(), "abc123", 10)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok {
		t.Fatal("Lookup reported a miss after Insert")
	}
	if got != want {
		t.Fatalf("Lookup = %+v, want %+v", got, want)
	}
}

func TestRepCacheLookupBeyondYoungestIsCorrupt(t *testing.T) {
	cache := openTestRepCache(t)
	if err := cache.Insert(context.Background(), "abc123", CacheEntry{Revision: 12}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	_, _, err := cache.Lookup(context.Background(), "abc123", 5)
	if err == nil {
		t.Fatal("expected an error for a rep-cache entry pointing beyond youngest")
	}
}

func TestRepCacheInsertBatchOverwritesOnConflict(t *testing.T) {
	cache := openTestRepCache(t)
	if err := cache.Insert(context.Background(), "abc123", CacheEntry{Revision: 1, Size: 10}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	err := cache.InsertBatch(context.Background(), map[string]CacheEntry{
		"abc123": {Revision: 2, Size: 20},
		"def456": {Revision: 2, Size: 30},
	})
	if err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}

	got, ok, err := cache.Lookup(context.Background(), "abc123", 10)
	if err != nil || !ok {
		t.Fatalf("Lookup abc123: entry=%+v ok=%v err=%v", got, ok, err)
	}
	if got.Revision != 2 || got.Size != 20 {
		t.Fatalf("Lookup abc123 = %+v, want overwritten entry at r2 size 20", got)
	}

	got2, ok, err := cache.Lookup(context.Background(), "def456", 10)
	if err != nil || !ok {
		t.Fatalf("Lookup def456: entry=%+v ok=%v err=%v", got2, ok, err)
	}
}
