// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package fsfs

import "context"

// PredecessorLookup resolves a node-rev's immediate predecessor,
// letting ChooseDeltaBase walk a predecessor chain without depending
// on the full NodeStore interface.
type PredecessorLookup interface {
	Predecessor(ctx context.Context, id NodeRevId) (*NodeRev, error)
}

// predecessorLookupFunc adapts a function to PredecessorLookup.
type predecessorLookupFunc func(ctx context.Context, id NodeRevId) (*NodeRev, error)

func (f predecessorLookupFunc) Predecessor(ctx context.Context, id NodeRevId) (*NodeRev, error) {
	return f(ctx, id)
}

// ChooseDeltaBase implements the skip-delta base selection of
// spec.md §4.3. Given predecessorCount p: idx = p & (p-1) clears the
// lowest set bit, giving the largest power-of-two-aligned ancestor —
// the invariant that keeps any rep's delta chain length logarithmic in
// predecessorCount — and walk = p - idx is how many predecessors back
// that ancestor sits. If that walk is shorter than MaxLinearDeltification,
// the target is overridden to the immediate predecessor instead (a
// pure linear chain near HEAD, cheap to compress small incremental
// changes against). Beyond MaxDeltificationWalk, a fresh (non-delta)
// base is chosen instead of walking further back.
//
// pred is the immediate predecessor of the node-rev ChooseDeltaBase is
// choosing a base for, and predecessorCount is that node-rev's own
// PredecessorCount (pred.PredecessorCount + 1: the number of ancestors
// already committed before it). nodeRevision is the revision the
// resulting rep will be stamped with; repOf extracts the relevant rep
// (data or property) from a node-rev encountered during the walk, so
// the same chooser serves both. It returns nil, nil when a fresh base
// should be used: the caller writes a full-text (non-delta)
// representation in that case.
//
// If any node visited during the walk carries a rep whose Revision is
// older than nodeRevision, the chosen base may itself be a shared rep
// (content reused from an even earlier revision) — in that case the
// resulting delta chain is capped at 2*maxLinear+2; exceeding that cap
// also forces a fresh base, per spec.md §4.3's last bullet and §8's
// chain-length invariant.
func ChooseDeltaBase(ctx context.Context, lookup PredecessorLookup, pred *NodeRev, predecessorCount int, nodeRevision Rev, repOf func(*NodeRev) *Rep, maxLinear, maxWalk int) (*NodeRev, error) {
	if predecessorCount <= 0 {
		return nil, nil
	}

	p := predecessorCount
	idx := p & (p - 1)
	walk := p - idx
	if walk < maxLinear {
		idx = p - 1
		walk = p - idx
	}
	if walk > maxWalk {
		return nil, nil
	}

	maybeShared := false
	current := pred
	for i := 0; i < walk; i++ {
		if current == nil {
			return nil, nil
		}
		if rep := repOf(current); rep != nil && rep.Revision < nodeRevision {
			maybeShared = true
		}
		if i == walk-1 {
			break
		}
		next, err := lookup.Predecessor(ctx, current.Id)
		if err != nil {
			return nil, err
		}
		current = next
	}

	if maybeShared && walk > 2*maxLinear+2 {
		return nil, nil
	}
	return current, nil
}
