// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package fsfs

import (
	"fmt"
	"sync"
)

// Registry tracks the transactions currently open against a
// repository, in process memory. The original single-slot freelist
// table is not load-bearing for correctness here (spec.md §9's
// design notes sanction the simplification), so this is a plain
// map guarded by one mutex.
type Registry struct {
	mu   sync.Mutex
	txns map[TxnId]*txnRecord
}

// txnRecord is the in-memory bookkeeping Registry keeps for one open
// transaction: whether a proto-rev writer currently holds it open,
// and, once acquired, the writer itself so a second AcquireProtoRevWriter
// call from the same process can detect in-process contention before
// ever touching flock(2).
type txnRecord struct {
	writer *ProtoRevWriter
}

// NewRegistry returns an empty transaction registry.
func NewRegistry() *Registry {
	return &Registry{txns: make(map[TxnId]*txnRecord)}
}

// Track registers txn as open. Calling Track twice for the same txn is
// a no-op.
func (r *Registry) Track(txn TxnId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.txns[txn]; !ok {
		r.txns[txn] = &txnRecord{}
	}
}

// Forget removes txn from the registry, e.g. after abort or commit.
func (r *Registry) Forget(txn TxnId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.txns, txn)
}

// beginWrite records that writer now holds txn's proto-rev, failing
// with ErrRepBeingWrittenInProcess if another writer in this same
// process already holds it.
func (r *Registry) beginWrite(txn TxnId, writer *ProtoRevWriter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.txns[txn]
	if !ok {
		rec = &txnRecord{}
		r.txns[txn] = rec
	}
	if rec.writer != nil {
		return newRepBeingWrittenInProcess(txn)
	}
	rec.writer = writer
	return nil
}

// endWrite clears the in-process writer marker for txn.
func (r *Registry) endWrite(txn TxnId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.txns[txn]; ok {
		rec.writer = nil
	}
}

// Purge removes every tracked transaction, used by administrative
// cleanup (spec.md §4.9's stale-transaction sweep) once the caller
// has independently verified each one is abandoned.
func (r *Registry) Purge() []TxnId {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]TxnId, 0, len(r.txns))
	for id := range r.txns {
		ids = append(ids, id)
	}
	r.txns = make(map[TxnId]*txnRecord)
	return ids
}

func (r *Registry) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf("fsfs.Registry{%d open txns}", len(r.txns))
}
