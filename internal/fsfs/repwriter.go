// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package fsfs

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"fsfscore/internal/fsfs/svndiff"
	"fsfscore/lib/binhash"
	"fsfscore/lib/codec"
)

// RepHeader is the one-line text header spec.md §6 prefixes every
// representation with. Every representation is svndiff-encoded — even
// one with no real predecessor is a self-delta against an empty
// source — so the header is always "DELTA"; SelfDelta distinguishes
// the baseless form ("DELTA\n") from one naming its base location
// ("DELTA <rev> <off> <len>\n").
type RepHeader struct {
	SelfDelta bool

	// BaseRevision, BaseOffset and BaseLength locate the base
	// representation a non-self-delta rep decodes against. BaseLength
	// is the base's Size field, i.e. the length of ITS payload, not
	// including its own header line.
	BaseRevision Rev
	BaseOffset   int64
	BaseLength   int64
}

func (h RepHeader) text() string {
	if h.SelfDelta {
		return "DELTA\n"
	}
	return fmt.Sprintf("DELTA %d %d %d\n", int64(h.BaseRevision), h.BaseOffset, h.BaseLength)
}

func parseRepHeader(line string) (RepHeader, error) {
	line = strings.TrimSuffix(line, "\n")
	fields := strings.Fields(line)
	if len(fields) == 1 && fields[0] == "DELTA" {
		return RepHeader{SelfDelta: true}, nil
	}
	if len(fields) != 4 || fields[0] != "DELTA" {
		return RepHeader{}, fmt.Errorf("fsfs: malformed representation header %q: %w", line, ErrCorrupt)
	}
	rev, err1 := strconv.ParseInt(fields[1], 10, 64)
	off, err2 := strconv.ParseInt(fields[2], 10, 64)
	length, err3 := strconv.ParseInt(fields[3], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return RepHeader{}, fmt.Errorf("fsfs: malformed representation header %q: %w", line, ErrCorrupt)
	}
	return RepHeader{BaseRevision: Rev(rev), BaseOffset: off, BaseLength: length}, nil
}

// RepOptions configures how a representation is written.
type RepOptions struct {
	// Base is the delta base chosen by ChooseDeltaBase, or nil for a
	// self-delta representation (a "DELTA\n" header and a delta
	// against empty source).
	Base *Rep

	// BaseText is the base representation's expanded content, required
	// whenever Base is non-nil. The caller supplies it (typically via
	// ReadRepText) rather than RepStream re-deriving it, since the
	// caller's tree walk may already hold it cached.
	BaseText []byte

	// SvndiffVersion selects svndiff0 or svndiff1 window encoding.
	SvndiffVersion int

	// RepSharingEnabled toggles the rep-cache and same-transaction
	// sidecar dedup checks in Close.
	RepSharingEnabled bool
}

// RepStream accumulates a representation's expanded content in memory
// as the caller writes to it, then on Close encodes and appends it
// (or discovers it can be shared with an existing rep) to the
// transaction's proto-rev file. It must be created against an
// already-acquired ProtoRevWriter — OpenRep never manages that
// writer's lifecycle, so the commit pipeline can reuse one writer
// across many representations in a single tree walk.
type RepStream struct {
	writer *ProtoRevWriter
	layout Layout
	txn    TxnId
	opts   RepOptions

	start  int64
	buf    bytes.Buffer
	digest *digestWriter
	closed bool
}

// OpenRep begins a new representation within an already-acquired
// proto-rev writer.
func OpenRep(writer *ProtoRevWriter, layout Layout, txn TxnId, opts RepOptions) (*RepStream, error) {
	if opts.Base != nil && opts.BaseText == nil {
		return nil, fmt.Errorf("fsfs: RepOptions.BaseText is required when Base is set")
	}
	start, err := writer.Offset()
	if err != nil {
		return nil, fmt.Errorf("fsfs: reading proto-rev offset: %w", err)
	}

	s := &RepStream{writer: writer, layout: layout, txn: txn, opts: opts, start: start}
	s.digest = newDigestWriter(&s.buf)
	return s, nil
}

// Write streams expanded content into the representation.
func (s *RepStream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, fmt.Errorf("fsfs: write to closed representation stream")
	}
	return s.digest.Write(p)
}

// Abort discards whatever has been buffered; nothing has been written
// to the proto-rev file yet, so this never needs to truncate it.
func (s *RepStream) Abort() {
	s.closed = true
}

// Close finalizes the representation: if an identical representation
// already exists (same SHA1 digest), either earlier in this same
// transaction or in a previously committed revision, that existing
// rep is reused and nothing new is appended to the proto-rev file.
// Otherwise the (possibly delta-encoded) payload is appended now. The
// returned Rep is still Mutable (its TxnId is set) until the commit
// pipeline finalizes it with a real revision number; shared is true
// when an existing rep was reused rather than written.
func (s *RepStream) Close(ctx context.Context, repCache *RepCache, youngest Rev) (rep *Rep, shared bool, err error) {
	if s.closed {
		return nil, false, fmt.Errorf("fsfs: representation stream already closed")
	}
	s.closed = true

	md5Sum := s.digest.MD5Sum()
	sha1Sum := s.digest.SHA1Sum()
	expandedSize := s.digest.Count()
	sha1Hex := binhash.FormatDigest(sha1Sum[:])

	if s.opts.RepSharingEnabled {
		if sidecar, ok, err := readTxnSidecar(s.layout, s.txn, sha1Hex); err != nil {
			return nil, false, err
		} else if ok {
			return sidecar, true, nil
		}

		if repCache != nil {
			if entry, ok, err := repCache.Lookup(ctx, sha1Hex, youngest); err != nil {
				return nil, false, err
			} else if ok && entry.ExpandedSize == expandedSize && entry.MD5 == md5Sum {
				return repFromCacheEntry(entry, sha1Sum), true, nil
			}
		}
	}

	var header RepHeader
	if s.opts.Base != nil {
		header = RepHeader{BaseRevision: s.opts.Base.Revision, BaseOffset: s.opts.Base.Offset, BaseLength: s.opts.Base.Size}
	} else {
		header = RepHeader{SelfDelta: true}
	}
	delta, err := svndiff.Encode(s.opts.BaseText, s.buf.Bytes(), svndiff.Version(s.opts.SvndiffVersion))
	if err != nil {
		return nil, false, fmt.Errorf("fsfs: encoding delta: %w", err)
	}
	payload := delta

	if _, err := s.writer.File().WriteString(header.text()); err != nil {
		return nil, false, fmt.Errorf("fsfs: writing representation header: %w", err)
	}
	if _, err := s.writer.File().Write(payload); err != nil {
		return nil, false, fmt.Errorf("fsfs: writing representation payload: %w", err)
	}
	if _, err := s.writer.File().WriteString("ENDREP\n"); err != nil {
		return nil, false, fmt.Errorf("fsfs: writing representation trailer: %w", err)
	}

	result := &Rep{
		Offset:       s.start,
		Size:         int64(len(payload)),
		ExpandedSize: expandedSize,
		MD5:          md5Sum,
		SHA1:         &sha1Sum,
		TxnId:        s.txn,
	}

	if s.opts.RepSharingEnabled {
		if err := writeTxnSidecar(s.layout, s.txn, sha1Hex, result); err != nil {
			return nil, false, err
		}
	}

	return result, false, nil
}

func repFromCacheEntry(entry CacheEntry, sha1Sum [20]byte) *Rep {
	return &Rep{
		Revision:     entry.Revision,
		Offset:       entry.Offset,
		Size:         entry.Size,
		ExpandedSize: entry.ExpandedSize,
		MD5:          entry.MD5,
		SHA1:         &sha1Sum,
	}
}

// writeTxnSidecar records sha1Hex -> rep for later same-transaction
// dedup (spec.md §3, §4.4 step 4): a second write of identical
// content within the same still-open transaction reuses rep instead
// of re-encoding and re-appending it.
func writeTxnSidecar(layout Layout, txn TxnId, sha1Hex string, rep *Rep) error {
	data, err := codec.Marshal(rep)
	if err != nil {
		return fmt.Errorf("fsfs: encoding sidecar for %s: %w", sha1Hex, err)
	}
	path := layout.TxnSha1SidecarPath(txn, sha1Hex)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("fsfs: writing sidecar %s: %w", path, err)
	}
	return nil
}

func readTxnSidecar(layout Layout, txn TxnId, sha1Hex string) (*Rep, bool, error) {
	path := layout.TxnSha1SidecarPath(txn, sha1Hex)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("fsfs: reading sidecar %s: %w", path, err)
	}
	var rep Rep
	if err := codec.Unmarshal(data, &rep); err != nil {
		return nil, false, fmt.Errorf("fsfs: decoding sidecar %s: %w", path, err)
	}
	return &rep, true, nil
}

// ReadRepText reconstructs a representation's full expanded content.
// Delta reps are resolved by recursively reading their base rep's
// header line (it carries base location and length directly, per
// spec.md §6), so no tree/NodeStore collaborator is needed here.
func ReadRepText(layout Layout, maxFilesPerDir int, rep *Rep) ([]byte, error) {
	path := layout.RevPath(rep.Revision, maxFilesPerDir)
	if rep.Mutable() {
		path = layout.TxnProtoRevPath(rep.TxnId)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fsfs: opening representation file %s: %w", path, err)
	}
	defer file.Close()

	if _, err := file.Seek(rep.Offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("fsfs: seeking representation at %s:%d: %w", path, rep.Offset, err)
	}

	r := bufio.NewReader(file)
	headerLine, err := r.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("fsfs: reading representation header at %s:%d: %w", path, rep.Offset, err)
	}
	header, err := parseRepHeader(headerLine)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, rep.Size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("fsfs: reading representation payload at %s:%d: %w", path, rep.Offset, err)
	}

	if header.SelfDelta {
		return svndiff.Decode(nil, payload)
	}

	baseRep := &Rep{Revision: header.BaseRevision, Offset: header.BaseOffset, Size: header.BaseLength}
	baseText, err := ReadRepText(layout, maxFilesPerDir, baseRep)
	if err != nil {
		return nil, fmt.Errorf("fsfs: reading delta base at r%d:%d: %w", header.BaseRevision, header.BaseOffset, err)
	}

	return svndiff.Decode(baseText, payload)
}
