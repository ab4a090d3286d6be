// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package binhash

import (
	"crypto/md5"
	"crypto/sha1"
	"os"
	"path/filepath"
	"testing"
)

func TestHashFile(t *testing.T) {
	content := []byte("hello, fsfs")
	path := filepath.Join(t.TempDir(), "test-file")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := HashFile(path, sha1.New)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}

	sum := sha1.Sum(content)
	if string(got) != string(sum[:]) {
		t.Errorf("HashFile = %x, want %x", got, sum)
	}
}

func TestHashFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := HashFile(path, md5.New)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}

	want := md5.Sum(nil)
	if string(got) != string(want[:]) {
		t.Errorf("HashFile(empty) = %x, want %x", got, want)
	}
}

func TestHashFileNonexistent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist")
	if _, err := HashFile(path, sha1.New); err == nil {
		t.Fatal("HashFile should fail for nonexistent file")
	}
}

func TestFormatAndParseDigestRoundTrip(t *testing.T) {
	original := sha1.Sum([]byte("round-trip"))
	formatted := FormatDigest(original[:])
	if length := len(formatted); length != 40 {
		t.Errorf("FormatDigest length = %d, want 40", length)
	}

	parsed, err := ParseDigest(formatted, len(original))
	if err != nil {
		t.Fatalf("ParseDigest: %v", err)
	}
	if string(parsed) != string(original[:]) {
		t.Errorf("ParseDigest round-trip failed: %x != %x", parsed, original)
	}
}

func TestParseDigestInvalid(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLen int
	}{
		{"not hex", "zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz", 20},
		{"too short", "abcd", 20},
		{"too long for md5", "abcdef0123456789abcdef0123456789abcdef01", 16},
		{"empty", "", 20},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := ParseDigest(test.input, test.wantLen); err == nil {
				t.Errorf("ParseDigest(%q, %d) should fail", test.input, test.wantLen)
			}
		})
	}
}
