// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash provides hex formatting and streaming helpers for
// fixed-size content digests.
//
// The representation layer hashes node content with two different
// algorithms at once (MD5 for legacy wire compatibility, SHA1 as the
// strong hash rep-sharing keys on). This package is intentionally algorithm-agnostic: callers pass the
// hash.Hash constructor they want and get back a plain []byte digest.
//
//   - [HashFile] -- streams a file through an arbitrary hash.Hash,
//     returning a digest with constant memory usage regardless of file
//     size
//   - [FormatDigest] -- converts a digest to its canonical hex-encoded
//     string representation, used in rep-cache rows and log output
//   - [ParseDigest] -- parses a hex-encoded digest string back to
//     bytes, validating length and encoding
//
// This package has no dependencies on other packages in this module.
package binhash
