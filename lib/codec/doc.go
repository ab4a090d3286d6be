// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides this module's standard CBOR encoding
// configuration.
//
// This module serializes its on-disk internal state as CBOR: node-rev
// records and property hashes inside proto-rev/revision files,
// changed-path journal entries, and transaction property files. It has
// no JSON output of its own.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every on-disk record encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes — required here because node-rev and rep identity sometimes
// depends on byte-for-byte comparison of re-serialized records.
//
// For buffer-oriented operations (files):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (the proto-rev append stream):
//
//	encoder := codec.NewEncoder(protoRevFile)
//	decoder := codec.NewDecoder(revisionFile)
//
// # Struct Tag Rules
//
// The struct tag on a type documents its serialization format:
//
//   - `cbor` tag: this type is ONLY ever serialized as CBOR. It will
//     never be marshaled to JSON. Examples: NodeRev, Rep, Change.
//   - `json` tag: this type may be serialized as BOTH JSON and CBOR.
//     fxamacker/cbor v2 reads `json` tags as fallback when `cbor` tags
//     are absent, so a single `json` tag controls field naming and
//     omitempty for both formats. No type in this module currently
//     uses this form outside of tests.
//
// Never use both `cbor` and `json` tags on the same field. The tag
// choice documents the contract — doubling up is noise that obscures
// whether a type participates in JSON serialization.
package codec
