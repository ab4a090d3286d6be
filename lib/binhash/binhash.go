// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package binhash

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
)

// HashFile streams the file at path through newHash and returns the
// resulting digest. The file is read in chunks via io.Copy to keep
// memory usage constant regardless of file size.
func HashFile(path string, newHash func() hash.Hash) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher := newHash()
	if _, err := io.Copy(hasher, file); err != nil {
		return nil, fmt.Errorf("hashing %s: %w", path, err)
	}
	return hasher.Sum(nil), nil
}

// FormatDigest returns the hex-encoded string representation of a
// digest of any length. This is the canonical format used for rep
// fingerprints, rep-cache keys, and log output.
func FormatDigest(digest []byte) string {
	return hex.EncodeToString(digest)
}

// ParseDigest parses a hex-encoded digest string and verifies it
// decodes to exactly wantLen bytes. Returns an error if the string is
// not valid hex or has the wrong length once decoded.
func ParseDigest(hexString string, wantLen int) ([]byte, error) {
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return nil, fmt.Errorf("parsing hash digest: %w", err)
	}
	if len(decoded) != wantLen {
		return nil, fmt.Errorf("hash digest is %d bytes, want %d", len(decoded), wantLen)
	}
	return decoded, nil
}
