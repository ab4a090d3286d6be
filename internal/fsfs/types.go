// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package fsfs

import (
	"fmt"
	"strconv"
	"strings"
)

// Rev is a revision number: a non-negative, monotonically increasing
// integer. Revision 0 is the initial empty tree (spec.md §3).
type Rev int64

func (r Rev) String() string { return strconv.FormatInt(int64(r), 10) }

func (r Rev) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Rev) UnmarshalText(text []byte) error {
	v, err := strconv.ParseInt(string(text), 10, 64)
	if err != nil {
		return fmt.Errorf("fsfs: parsing revision %q: %w", text, err)
	}
	*r = Rev(v)
	return nil
}

// TxnId is a transaction identifier: "<base-rev>-<seq>" where seq is
// a base-36 counter drawn from txn-current (spec.md §3, post-1.5
// format).
type TxnId string

// NewTxnId formats a transaction id from its base revision and
// sequence number.
func NewTxnId(base Rev, seq int64) TxnId {
	return TxnId(fmt.Sprintf("%d-%s", int64(base), strconv.FormatInt(seq, 36)))
}

func (t TxnId) String() string { return string(t) }

func (t TxnId) MarshalText() ([]byte, error) { return []byte(t), nil }

func (t *TxnId) UnmarshalText(text []byte) error {
	*t = TxnId(text)
	return nil
}

// BaseRev returns the revision this transaction was based on.
func (t TxnId) BaseRev() (Rev, error) {
	base, _, ok := strings.Cut(string(t), "-")
	if !ok {
		return 0, fmt.Errorf("%w: malformed txn id %q", ErrCorrupt, t)
	}
	v, err := strconv.ParseInt(base, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parsing base revision of txn id %q: %v", ErrCorrupt, t, err)
	}
	return Rev(v), nil
}

// Seq returns the base-36 sequence counter embedded in the txn id.
func (t TxnId) Seq() (int64, error) {
	_, seq, ok := strings.Cut(string(t), "-")
	if !ok {
		return 0, fmt.Errorf("%w: malformed txn id %q", ErrCorrupt, t)
	}
	v, err := strconv.ParseInt(seq, 36, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parsing sequence of txn id %q: %v", ErrCorrupt, t, err)
	}
	return v, nil
}

// NodeId is a node's persistent number. While the node is still
// mutable within a transaction it is provisional, formatted as
// "_<base36>"; at commit it is rewritten to a permanent id (spec.md
// §3, §4.7 step 5).
type NodeId string

// CopyId is a node's copy number, rewritten at commit the same way
// as NodeId.
type CopyId string

func (id NodeId) Provisional() bool { return strings.HasPrefix(string(id), "_") }
func (id CopyId) Provisional() bool { return strings.HasPrefix(string(id), "_") }

func (id NodeId) MarshalText() ([]byte, error) { return []byte(id), nil }
func (id *NodeId) UnmarshalText(text []byte) error {
	*id = NodeId(text)
	return nil
}

func (id CopyId) MarshalText() ([]byte, error) { return []byte(id), nil }
func (id *CopyId) UnmarshalText(text []byte) error {
	*id = CopyId(text)
	return nil
}

// NodeRevId identifies one node-revision occurrence: the node/copy
// pair that names the node across its whole history, plus the origin
// that produced this particular occurrence — either a transaction
// (still mutable) or a (revision, offset) location (committed).
// This is the tagged union spec.md §9 calls out explicitly.
type NodeRevId struct {
	Node NodeId
	Copy CopyId

	// TxnId is set iff this occurrence is still mutable.
	TxnId TxnId

	// Rev and Offset are set iff this occurrence is committed.
	Rev    Rev
	Offset int64
}

// Mutable reports whether this node-rev occurrence still lives in a
// transaction's proto-rev file rather than a committed revision.
func (id NodeRevId) Mutable() bool { return id.TxnId != "" }

func (id NodeRevId) String() string {
	if id.Mutable() {
		return fmt.Sprintf("%s.%s.t%s", id.Node, id.Copy, id.TxnId)
	}
	return fmt.Sprintf("%s.%s.r%d/%d", id.Node, id.Copy, int64(id.Rev), id.Offset)
}

// NodeKind distinguishes file nodes from directory nodes.
type NodeKind uint8

const (
	KindFile NodeKind = iota
	KindDir
)

func (k NodeKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// CopyFrom records the (path, revision) a node was copied from.
type CopyFrom struct {
	Path string
	Rev  Rev
}

// PathRev is a (path, revision) pair, used for copy_root.
type PathRev struct {
	Path string
	Rev  Rev
}

// Rep is a representation: a byte range in a revision file holding a
// skip-delta-compressed serialization of a node's text or properties
// (spec.md §3). TxnId is set iff the rep is still mutable, living in
// a proto-rev file rather than a published revision.
type Rep struct {
	Revision     Rev
	Offset       int64
	Size         int64
	ExpandedSize int64
	MD5          [16]byte
	SHA1         *[20]byte `cbor:",omitempty"`
	TxnId        TxnId     `cbor:",omitempty"`
	Uniquifier   string    `cbor:",omitempty"`
}

// Mutable reports whether the rep still lives in a transaction's
// proto-rev file.
func (r *Rep) Mutable() bool { return r != nil && r.TxnId != "" }

// NodeRev is the unit of versioning for one node (spec.md §3).
type NodeRev struct {
	Id               NodeRevId
	Kind             NodeKind
	PredecessorId    *NodeRevId `cbor:",omitempty"`
	PredecessorCount int
	CreatedPath      string
	CopyFrom         *CopyFrom `cbor:",omitempty"`
	CopyRoot         PathRev
	DataRep          *Rep `cbor:",omitempty"`
	PropRep          *Rep `cbor:",omitempty"`
	FreshTxnRoot     bool `cbor:",omitempty"`
}

// ChangeKind is the fixed enum of path change kinds (spec.md §9).
type ChangeKind uint8

const (
	ChangeAdd ChangeKind = iota
	ChangeDelete
	ChangeReplace
	ChangeModify
	ChangeReset
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdd:
		return "add"
	case ChangeDelete:
		return "delete"
	case ChangeReplace:
		return "replace"
	case ChangeModify:
		return "modify"
	case ChangeReset:
		return "reset"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Change is one entry in a transaction's changed-paths journal
// (spec.md §3).
type Change struct {
	Path      string
	Kind      ChangeKind
	NodeRevId *NodeRevId `cbor:",omitempty"`
	TextMod   bool
	PropMod   bool
	CopyFrom  *CopyFrom `cbor:",omitempty"`
	NodeKind  NodeKind
}
