// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package fsfs

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"fsfscore/lib/codec"
)

// ChangesWriter appends Change records to a transaction's changes
// journal (spec.md §4.2, §4.5): one CBOR record per append call, in
// commit order, never rewritten in place. Folding into the final
// per-path change list happens once, at commit time, via Fold.
type ChangesWriter struct {
	file *os.File
	enc  *codec.Encoder
}

// OpenChangesWriter opens (creating if absent) txn's changes journal
// for appending.
func OpenChangesWriter(layout Layout, txn TxnId) (*ChangesWriter, error) {
	file, err := os.OpenFile(layout.TxnChangesPath(txn), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("fsfs: opening changes journal for %s: %w", txn, err)
	}
	return &ChangesWriter{file: file, enc: codec.NewEncoder(file)}, nil
}

// Append records one more change against the transaction. Mutation
// operations call this once per path touched, in the order they
// occur — the journal is a log, not a map.
func (w *ChangesWriter) Append(change Change) error {
	return w.enc.Encode(&change)
}

// Close flushes and closes the changes journal file.
func (w *ChangesWriter) Close() error {
	return w.file.Close()
}

// ReadChanges reads every Change record from txn's changes journal in
// the order they were appended.
func ReadChanges(layout Layout, txn TxnId) ([]Change, error) {
	file, err := os.Open(layout.TxnChangesPath(txn))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fsfs: reading changes journal for %s: %w", txn, err)
	}
	defer file.Close()

	dec := codec.NewDecoder(file)
	var out []Change
	for {
		var c Change
		if err := dec.Decode(&c); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("fsfs: decoding changes journal for %s: %w", txn, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// Fold reduces a raw, possibly-repetitive changes journal into the
// final per-path change list a committed revision publishes (spec.md
// §4.5). The rules, applied per path in journal order:
//
//   - add followed by delete on the same path cancels out entirely
//     (the path never existed as far as the revision's history is
//     concerned) unless an intervening replace occurred, in which
//     case delete-after-replace degrades to a plain delete, clearing
//     copy-from info.
//   - replace after add (same node-rev id) collapses to a single
//     replace entry carrying the new text/prop-mod flags and copy-from.
//   - modify after add/replace keeps the add/replace kind but ORs in
//     the text/prop-mod flags and keeps the node-rev id the entry
//     already has.
//   - reset clears all prior folded state for the path (used when a
//     mutation is undone).
//   - delete followed by add or replace on the same path becomes
//     replace.
//   - after folding a delete or replace, every entry whose path is a
//     proper child of the folded path is dropped from the map: the
//     deleted subtree's own history stops mattering.
//
// Fold rejects journals that violate the ordering the table above
// assumes: a second delete or a modify stacked directly on a delete
// (ErrInvalidChangeOrdering), an add on a path that already has a
// live, non-deleted entry (ErrInvalidChangeOrdering), a change record
// missing its node-rev id outside of reset (ErrCorrupt), or any kind
// whose node-rev id differs from the live entry it lands on without
// an intervening delete (ErrCorrupt) — this id-consistency check runs
// before the per-kind merge below, universally across every incoming
// kind, mirroring fold_change's own pre-switch sanity checks in
// libsvn_fs_fs/transaction.c.
//
// The returned slice is sorted lexicographically by path, matching
// the order the changed-paths block of a revision file publishes
// them in (spec.md §4.7 step 5).
func Fold(raw []Change) ([]Change, error) {
	folded := make(map[string]Change)

	for _, c := range raw {
		if c.Kind == ChangeReset {
			delete(folded, c.Path)
			continue
		}
		if c.NodeRevId == nil {
			return nil, fmt.Errorf("fsfs: change for %q missing node-rev id: %w", c.Path, ErrCorrupt)
		}

		prev, existed := folded[c.Path]

		if existed {
			if prev.NodeRevId != nil && *c.NodeRevId != *prev.NodeRevId && prev.Kind != ChangeDelete {
				return nil, fmt.Errorf("fsfs: node-rev id changed without intervening delete on %q: %w", c.Path, ErrCorrupt)
			}
			if prev.Kind == ChangeDelete && c.Kind != ChangeAdd && c.Kind != ChangeReplace {
				return nil, fmt.Errorf("fsfs: non-add change on deleted path %q: %w", c.Path, ErrInvalidChangeOrdering)
			}
			if c.Kind == ChangeAdd && prev.Kind != ChangeDelete {
				return nil, fmt.Errorf("fsfs: add on existing non-deleted %q: %w", c.Path, ErrInvalidChangeOrdering)
			}

			switch c.Kind {
			case ChangeDelete:
				if prev.Kind == ChangeAdd {
					delete(folded, c.Path)
					removeDescendants(folded, c.Path)
					continue
				}
				merged := prev
				merged.Kind = ChangeDelete
				merged.TextMod = c.TextMod
				merged.PropMod = c.PropMod
				merged.CopyFrom = nil
				c = merged

			case ChangeAdd, ChangeReplace:
				merged := prev
				merged.Kind = ChangeReplace
				merged.NodeRevId = c.NodeRevId
				merged.TextMod = c.TextMod
				merged.PropMod = c.PropMod
				merged.CopyFrom = c.CopyFrom
				c = merged

			case ChangeModify:
				merged := prev
				merged.NodeRevId = c.NodeRevId
				merged.TextMod = merged.TextMod || c.TextMod
				merged.PropMod = merged.PropMod || c.PropMod
				c = merged
			}
		}

		folded[c.Path] = c
		if c.Kind == ChangeDelete || c.Kind == ChangeReplace {
			removeDescendants(folded, c.Path)
		}
	}

	out := make([]Change, 0, len(folded))
	for _, c := range folded {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// removeDescendants drops every entry of folded whose path is a
// proper child of path, used after a delete or replace makes prior
// changes under that path moot. This is the inner O(n²) hotspot of
// Fold: it scans the whole map on every delete/replace.
func removeDescendants(folded map[string]Change, path string) {
	for p := range folded {
		if p != path && isChild(path, p) {
			delete(folded, p)
		}
	}
}

// isChild reports whether child is a strict descendant of parent in
// path-component terms (not merely a string prefix: "/a/bc" is not a
// child of "/a/b").
func isChild(parent, child string) bool {
	if !strings.HasPrefix(child, parent) {
		return false
	}
	rest := child[len(parent):]
	return strings.HasPrefix(rest, "/")
}
