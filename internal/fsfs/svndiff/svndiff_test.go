// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package svndiff

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncodeDecodeRoundtrip(t *testing.T) {
	cases := []struct {
		name         string
		base, target string
	}{
		{"identical", "hello world", "hello world"},
		{"empty base", "", "fresh content"},
		{"empty target", "old content", ""},
		{"both empty", "", ""},
		{"append", "line one\nline two\n", "line one\nline two\nline three\n"},
		{"prepend", "line two\nline three\n", "line one\nline two\nline three\n"},
		{"middle rewrite", "AAAA-middle-BBBB", "AAAA-changed-BBBB"},
		{"total rewrite", "xxxxxxxxxx", "yyyyyyyyyy"},
	}

	for _, v := range []Version{Version0, Version1} {
		for _, c := range cases {
			t.Run(versionName(v)+"/"+c.name, func(t *testing.T) {
				delta, err := Encode([]byte(c.base), []byte(c.target), v)
				if err != nil {
					t.Fatalf("Encode: %v", err)
				}
				got, err := Decode([]byte(c.base), delta)
				if err != nil {
					t.Fatalf("Decode: %v", err)
				}
				if !bytes.Equal(got, []byte(c.target)) {
					t.Fatalf("roundtrip = %q, want %q", got, c.target)
				}
			})
		}
	}
}

func TestEncodeVersion1CompressesRepetitiveData(t *testing.T) {
	base := []byte("")
	target := []byte(strings.Repeat("a", 4096))

	delta, err := Encode(base, target, Version1)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(delta) >= len(target) {
		t.Fatalf("version 1 delta (%d bytes) did not compress %d bytes of repeated data", len(delta), len(target))
	}

	got, err := Decode(base, delta)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, target) {
		t.Fatal("decoded content does not match target")
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := Decode([]byte("base"), []byte("NOTSVN"))
	if err == nil {
		t.Fatal("expected error for bad magic header")
	}
}

func TestDecodeRejectsShortDelta(t *testing.T) {
	_, err := Decode([]byte("base"), []byte("SV"))
	if err == nil {
		t.Fatal("expected error for truncated delta")
	}
}

func versionName(v Version) string {
	if v == Version0 {
		return "v0"
	}
	return "v1"
}
