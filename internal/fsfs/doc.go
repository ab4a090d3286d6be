// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

// Package fsfs implements the transactional commit core of a
// file-system-backed versioned repository store: turning an
// in-progress mutable transaction into an atomic, immutable,
// monotonically numbered revision on disk, with content-addressed
// representation sharing and skip-delta chains.
//
// The package is organized around the transaction lifecycle. A caller
// bootstraps a repository with [Create], calls [Begin] to open a
// [Transaction] against the current youngest revision, mutates a
// [MutableTree] rooted at the transaction (an external collaborator —
// see collaborators.go), streams file and directory content through
// the representation writer, and finally calls [Commit] to fold the
// change journal, verify locks, finalize all node revisions, and
// atomically publish the result as a new revision.
//
// Every write that touches shared on-disk state — the proto-rev file,
// the `current` pointer, the `txn-current` counter — is guarded by a
// non-blocking advisory file lock (flock.go) so that concurrent
// processes sharing the same repository directory cooperate
// correctly without a central coordinator.
package fsfs
