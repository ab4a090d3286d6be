// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package fsfs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"fsfscore/lib/clock"
	"fsfscore/lib/codec"
)

// Well-known transaction/revision property keys (spec.md §4.6, §12
// item 4).
const (
	PropDate          = "svn:date"
	PropAuthor        = "svn:author"
	PropLog           = "svn:log"
	PropTxnCheckOOD   = "svn:txn-check-ood"
	PropTxnCheckLocks = "svn:txn-check-locks"
)

// TxnFlags carries the optional out-of-date and lock-ownership checks
// a transaction requests at commit time (spec.md §12 item 4).
type TxnFlags struct {
	CheckOutOfDate bool
	CheckLocks     bool
}

// Transaction is one open, uncommitted change set (spec.md §3, §4).
// It owns no in-memory tree state itself — that lives in whatever
// MutableTree implementation the caller uses (internal/fsfstree) —
// but it is the handle every fsfs-core operation (proto-rev writer
// acquisition, changes journal, properties, commit) keys off of.
type Transaction struct {
	Id      TxnId
	BaseRev Rev
	Flags   TxnFlags
}

// Begin starts a new transaction based on the repository's current
// youngest revision: it reserves a fresh transaction id from
// txn-current (spec.md §3's post-1.5 txn-id scheme), creates the
// transaction's workspace directory, and seeds its properties and
// next-ids counters.
func Begin(layout Layout, clk clock.Clock, flags TxnFlags) (*Transaction, error) {
	cur, err := ReadCurrent(layout)
	if err != nil {
		return nil, err
	}

	lock, err := LockFile(layout.TxnCurrentLockPath())
	if err != nil {
		if IsLockBusy(err) {
			return nil, fmt.Errorf("fsfs: acquiring txn-current lock: %w", ErrLockFailed)
		}
		return nil, err
	}
	defer lock.Unlock()

	seq, err := nextTxnSeq(layout)
	if err != nil {
		return nil, err
	}

	txnId := NewTxnId(cur.Youngest, seq)

	if err := os.MkdirAll(layout.TxnDir(txnId), 0755); err != nil {
		return nil, fmt.Errorf("fsfs: creating transaction directory for %s: %w", txnId, err)
	}

	props := map[string]string{
		PropDate: clk.Now().UTC().Format(time.RFC3339Nano),
	}
	if flags.CheckOutOfDate {
		props[PropTxnCheckOOD] = "true"
	}
	if flags.CheckLocks {
		props[PropTxnCheckLocks] = "true"
	}
	if err := WriteProperties(layout, txnId, props); err != nil {
		return nil, err
	}

	if err := writeNextIds(layout, txnId, 0, 0); err != nil {
		return nil, err
	}

	return &Transaction{Id: txnId, BaseRev: cur.Youngest, Flags: flags}, nil
}

// nextTxnSeq reads and bumps the txn-current counter. Callers must
// hold layout.TxnCurrentLockPath()'s advisory lock.
func nextTxnSeq(layout Layout) (int64, error) {
	data, err := os.ReadFile(layout.TxnCurrentPath())
	var seq int64
	if err != nil {
		if !os.IsNotExist(err) {
			return 0, fmt.Errorf("fsfs: reading txn-current: %w", err)
		}
	} else {
		text := strings.TrimSpace(string(data))
		if text != "" {
			seq, err = strconv.ParseInt(text, 36, 64)
			if err != nil {
				return 0, fmt.Errorf("fsfs: parsing txn-current %q: %w", text, ErrCorrupt)
			}
		}
	}

	if err := atomicWriteString(layout.TxnCurrentPath(), strconv.FormatInt(seq+1, 36)+"\n"); err != nil {
		return 0, err
	}
	return seq, nil
}

// Abort discards a transaction's entire workspace: its directory, its
// out-of-tree proto-rev and proto-rev-lock files (modern format), and
// its registry entry. Abort is not atomic against a concurrent
// committer — callers must ensure no commit is in flight for this
// transaction.
func Abort(layout Layout, registry *Registry, txn TxnId) error {
	registry.Forget(txn)

	if err := os.RemoveAll(layout.TxnDir(txn)); err != nil {
		return fmt.Errorf("fsfs: removing transaction directory for %s: %w", txn, err)
	}

	protoRev := layout.TxnProtoRevPath(txn)
	if strings.Contains(protoRev, "txn-protorevs") {
		if err := os.Remove(protoRev); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("fsfs: removing proto-rev for %s: %w", txn, err)
		}
		lockPath := layout.TxnProtoRevLockPath(txn)
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("fsfs: removing proto-rev lock for %s: %w", txn, err)
		}
	}
	return nil
}

// ReadProperties reads a transaction's property hash (spec.md §4.6).
// A transaction with no properties file yet (freshly created, before
// Begin's initial WriteProperties, or read concurrently with it) reads
// as an empty map.
func ReadProperties(layout Layout, txn TxnId) (map[string]string, error) {
	data, err := os.ReadFile(layout.TxnPropsPath(txn))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("fsfs: reading properties for %s: %w", txn, err)
	}
	props := map[string]string{}
	if err := codec.Unmarshal(data, &props); err != nil {
		return nil, fmt.Errorf("fsfs: decoding properties for %s: %w", txn, ErrCorrupt)
	}
	return props, nil
}

// WriteProperties atomically replaces a transaction's property hash.
func WriteProperties(layout Layout, txn TxnId, props map[string]string) error {
	data, err := codec.Marshal(props)
	if err != nil {
		return fmt.Errorf("fsfs: encoding properties for %s: %w", txn, err)
	}
	path := layout.TxnPropsPath(txn)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("fsfs: writing properties for %s: %w", txn, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("fsfs: renaming properties for %s: %w", txn, err)
	}
	return nil
}

// SetTxnDate overwrites a transaction's svn:date property, used at
// commit time when StampCommitDate is enabled to guarantee revision
// dates are non-decreasing regardless of what the client supplied
// (spec.md §12 item 2).
func SetTxnDate(layout Layout, txn TxnId, when time.Time) error {
	props, err := ReadProperties(layout, txn)
	if err != nil {
		return err
	}
	props[PropDate] = when.UTC().Format(time.RFC3339Nano)
	return WriteProperties(layout, txn, props)
}

// readNextIdsCounters returns a transaction's local node-id and
// copy-id counters (spec.md §4.7 step 5's id-rewriting pass reads
// these to know how many fresh ids this transaction minted).
func readNextIdsCounters(layout Layout, txn TxnId) (nodeCounter, copyCounter int64, err error) {
	data, err := os.ReadFile(layout.TxnNextIdsPath(txn))
	if err != nil {
		return 0, 0, fmt.Errorf("fsfs: reading next-ids for %s: %w", txn, err)
	}
	fields := strings.Fields(string(data))
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("fsfs: malformed next-ids for %s: %w", txn, ErrCorrupt)
	}
	nodeCounter, err = strconv.ParseInt(fields[0], 36, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("fsfs: parsing next-ids node counter for %s: %w", txn, ErrCorrupt)
	}
	copyCounter, err = strconv.ParseInt(fields[1], 36, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("fsfs: parsing next-ids copy counter for %s: %w", txn, ErrCorrupt)
	}
	return nodeCounter, copyCounter, nil
}

func writeNextIds(layout Layout, txn TxnId, nodeCounter, copyCounter int64) error {
	text := fmt.Sprintf("%s %s\n", strconv.FormatInt(nodeCounter, 36), strconv.FormatInt(copyCounter, 36))
	path := layout.TxnNextIdsPath(txn)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(text), 0644); err != nil {
		return fmt.Errorf("fsfs: writing next-ids for %s: %w", txn, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("fsfs: renaming next-ids for %s: %w", txn, err)
	}
	return nil
}

// ReserveNodeId mints a fresh provisional node id for txn, formatted
// "_<base36 counter>" (spec.md §3). The id is rewritten to a permanent
// one at commit.
func ReserveNodeId(layout Layout, txn TxnId) (NodeId, error) {
	nodeCounter, copyCounter, err := readNextIdsCounters(layout, txn)
	if err != nil {
		return "", err
	}
	id := NodeId("_" + strconv.FormatInt(nodeCounter, 36))
	if err := writeNextIds(layout, txn, nodeCounter+1, copyCounter); err != nil {
		return "", err
	}
	return id, nil
}

// ReserveCopyId mints a fresh provisional copy id for txn, the CopyId
// counterpart of ReserveNodeId.
func ReserveCopyId(layout Layout, txn TxnId) (CopyId, error) {
	nodeCounter, copyCounter, err := readNextIdsCounters(layout, txn)
	if err != nil {
		return "", err
	}
	id := CopyId("_" + strconv.FormatInt(copyCounter, 36))
	if err := writeNextIds(layout, txn, nodeCounter, copyCounter+1); err != nil {
		return "", err
	}
	return id, nil
}
