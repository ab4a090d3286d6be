// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package fsfs

import (
	"context"
	"fmt"
	"testing"
)

// chainLookup resolves predecessors from a fixed chain of node-revs
// indexed by predecessor count, returning an error if asked for a
// node it doesn't know about.
type chainLookup struct {
	t     *testing.T
	chain map[int]*NodeRev
}

func (c chainLookup) Predecessor(ctx context.Context, want NodeRevId) (*NodeRev, error) {
	for _, nr := range c.chain {
		if nr.Id == want {
			pred, ok := c.chain[nr.PredecessorCount-1]
			if !ok {
				return nil, fmt.Errorf("no predecessor recorded for count %d", nr.PredecessorCount-1)
			}
			return pred, nil
		}
	}
	return nil, fmt.Errorf("unknown node-rev %s", want)
}

func buildChain(n int) map[int]*NodeRev {
	chain := make(map[int]*NodeRev, n)
	for count := 0; count < n; count++ {
		chain[count] = &NodeRev{
			Id:               NodeRevId{Node: "0", Copy: "0", Rev: Rev(count), Offset: int64(count)},
			PredecessorCount: count,
		}
	}
	return chain
}

// dataRepOf is the repOf selector tests use when they don't care
// about property reps specifically.
func dataRepOf(n *NodeRev) *Rep { return n.DataRep }

func TestChooseDeltaBaseWithinLinearWindowUsesImmediatePredecessor(t *testing.T) {
	chain := buildChain(4)
	pred := chain[2]

	base, err := ChooseDeltaBase(context.Background(), chainLookup{t: t, chain: chain}, pred, 3, 100, dataRepOf, 4, 1024)
	if err != nil {
		t.Fatalf("ChooseDeltaBase: %v", err)
	}
	if base != pred {
		t.Fatalf("base = %+v, want immediate predecessor %+v", base, pred)
	}
}

func TestChooseDeltaBaseShortSkipWalkOverridesToImmediatePredecessor(t *testing.T) {
	// predecessorCount=6, maxLinear=4: idx = 6 & 5 = 4, walk = 2. Since
	// that walk (2) is shorter than maxLinear (4), the linear-window
	// override applies and the base should be the immediate
	// predecessor (predecessorCount 5), not the skip-delta ancestor at
	// predecessorCount 4.
	chain := buildChain(6)
	pred := chain[5]

	base, err := ChooseDeltaBase(context.Background(), chainLookup{t: t, chain: chain}, pred, 6, 100, dataRepOf, 4, 1024)
	if err != nil {
		t.Fatalf("ChooseDeltaBase: %v", err)
	}
	if base != pred {
		t.Fatalf("base = %+v, want immediate predecessor %+v", base, pred)
	}
}

func TestChooseDeltaBaseSkipWalkFindsPowerOfTwoAncestor(t *testing.T) {
	// predecessorCount=8: idx = 8 & 7 = 0, so the chosen base should
	// be the ancestor whose own predecessorCount is 0 — eight steps
	// back from pred (predecessorCount 7).
	chain := buildChain(8)
	pred := chain[7]

	base, err := ChooseDeltaBase(context.Background(), chainLookup{t: t, chain: chain}, pred, 8, 100, dataRepOf, 4, 1024)
	if err != nil {
		t.Fatalf("ChooseDeltaBase: %v", err)
	}
	if base == nil || base.PredecessorCount != 0 {
		t.Fatalf("base = %+v, want predecessorCount 0", base)
	}
}

func TestChooseDeltaBaseRespectsMaxWalk(t *testing.T) {
	chain := buildChain(8)
	pred := chain[7]

	// walk for predecessorCount=8 is 8 steps; cap it at 4.
	base, err := ChooseDeltaBase(context.Background(), chainLookup{t: t, chain: chain}, pred, 8, 100, dataRepOf, 4, 4)
	if err != nil {
		t.Fatalf("ChooseDeltaBase: %v", err)
	}
	if base != nil {
		t.Fatalf("base = %+v, want nil (fresh base) once the walk exceeds maxWalk", base)
	}
}

func TestChooseDeltaBaseZeroPredecessorCountIsFreshBase(t *testing.T) {
	base, err := ChooseDeltaBase(context.Background(), chainLookup{t: t, chain: nil}, nil, 0, 100, dataRepOf, 4, 1024)
	if err != nil {
		t.Fatalf("ChooseDeltaBase: %v", err)
	}
	if base != nil {
		t.Fatalf("base = %+v, want nil for a node-rev with no predecessors", base)
	}
}

func TestChooseDeltaBaseSharedRepWithinChainCapStillReturnsBase(t *testing.T) {
	// predecessorCount=16: idx = 16 & 15 = 0, walk = 16. With
	// maxLinear=10, the chain cap (2*10+2=22) comfortably covers a
	// 16-step walk, so a detected shared rep doesn't force a fresh
	// base.
	chain := buildChain(16)
	chain[0].DataRep = &Rep{Revision: 1}
	pred := chain[15]

	base, err := ChooseDeltaBase(context.Background(), chainLookup{t: t, chain: chain}, pred, 16, 100, dataRepOf, 10, 1024)
	if err != nil {
		t.Fatalf("ChooseDeltaBase: %v", err)
	}
	if base == nil || base.PredecessorCount != 0 {
		t.Fatalf("base = %+v, want predecessorCount 0", base)
	}
}

func TestChooseDeltaBaseSharedRepBeyondChainCapForcesFreshBase(t *testing.T) {
	// predecessorCount=16: idx = 16 & 15 = 0, walk = 16. With
	// maxLinear=2, the chain cap (2*2+2=6) is well below the 16-step
	// walk, so the detected shared rep (chain[0]'s, revision 1, older
	// than nodeRevision 100) must force a fresh base.
	chain := buildChain(16)
	chain[0].DataRep = &Rep{Revision: 1}
	pred := chain[15]

	base, err := ChooseDeltaBase(context.Background(), chainLookup{t: t, chain: chain}, pred, 16, 100, dataRepOf, 2, 1024)
	if err != nil {
		t.Fatalf("ChooseDeltaBase: %v", err)
	}
	if base != nil {
		t.Fatalf("base = %+v, want nil (fresh base) once a shared rep's chain would exceed the cap", base)
	}
}
