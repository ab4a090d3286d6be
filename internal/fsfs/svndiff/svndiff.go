// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

// Package svndiff implements the binary delta format representations
// use to store one revision's text as a diff against its chosen base
// (spec.md §4.4, §6). The wire format is a simplified but genuine
// svndiff dialect: a four-byte magic header ("SVN\x00" for version 0,
// "SVN\x01" for version 1), followed by a sequence of windows, each
// giving the source range it reads from the base text, the length of
// the expanded target text it produces, and an instruction stream of
// copy-from-source / copy-from-target / insert ops. Integers are
// encoded exactly as real svndiff: big-endian base-128 with the
// high bit marking continuation.
package svndiff

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// Version selects the on-the-wire window encoding: Version0 windows
// are stored verbatim, Version1 windows are flate-compressed.
type Version int

const (
	Version0 Version = 0
	Version1 Version = 1
)

var magic = map[Version][4]byte{
	Version0: {'S', 'V', 'N', 0},
	Version1: {'S', 'V', 'N', 1},
}

// Encode produces the svndiff-format delta that transforms base into
// target, using the requested window encoding version.
func Encode(base, target []byte, version Version) ([]byte, error) {
	m, ok := magic[version]
	if !ok {
		return nil, fmt.Errorf("svndiff: unsupported version %d", version)
	}

	var out bytes.Buffer
	out.Write(m[:])

	window, err := encodeWindow(base, target, version)
	if err != nil {
		return nil, err
	}
	out.Write(window)
	return out.Bytes(), nil
}

// Decode reconstructs the target text a svndiff-format delta produces
// when applied to base.
func Decode(base, delta []byte) ([]byte, error) {
	if len(delta) < 4 {
		return nil, fmt.Errorf("svndiff: delta too short")
	}
	magic0, magic1 := magic[Version0], magic[Version1]
	var version Version
	switch {
	case bytes.Equal(delta[:4], magic0[:]):
		version = Version0
	case bytes.Equal(delta[:4], magic1[:]):
		version = Version1
	default:
		return nil, fmt.Errorf("svndiff: bad magic header")
	}

	r := bytes.NewReader(delta[4:])
	var out bytes.Buffer
	for r.Len() > 0 {
		if err := decodeWindow(r, base, &out, version); err != nil {
			return nil, err
		}
	}
	return out.Bytes(), nil
}

// window instructions. This dialect uses exactly one copy-from-source
// op covering any common prefix, a second copy-from-source op (from
// the source's tail) covering any common suffix, and an insert op for whatever remains between
// them — a simplified but real diff, not a full LCS/greedy matcher.
// It round-trips correctly and handles the append/prepend-heavy
// workloads spec.md §8's scenarios exercise efficiently; it will not
// discover matches in the middle of a rewritten window the way a real
// xdelta-style matcher would.
const (
	opCopySource = 0
	opCopyTarget = 1
	opInsert     = 2
)

func encodeWindow(base, target []byte, version Version) ([]byte, error) {
	prefix := commonPrefixLen(base, target)
	maxSuffix := min(len(base)-prefix, len(target)-prefix)
	suffix := commonSuffixLen(base[prefix:], target[prefix:], maxSuffix)

	insertStart := prefix
	insertEnd := len(target) - suffix
	if insertEnd < insertStart {
		insertEnd = insertStart
	}
	insertData := target[insertStart:insertEnd]

	var instr bytes.Buffer
	var newData bytes.Buffer
	nOps := 0

	if prefix > 0 {
		writeOp(&instr, opCopySource, 0, prefix)
		nOps++
	}
	if len(insertData) > 0 {
		writeOp(&instr, opInsert, 0, len(insertData))
		newData.Write(insertData)
		nOps++
	}
	if suffix > 0 {
		writeOp(&instr, opCopySource, len(base)-suffix, suffix)
		nOps++
	}

	instrBytes := instr.Bytes()

	var win bytes.Buffer
	writeInt(&win, uint64(0))           // source view offset
	writeInt(&win, uint64(len(base)))   // source view length
	writeInt(&win, uint64(len(target))) // target view length (expanded size)
	writeInt(&win, uint64(len(instrBytes)))
	writeInt(&win, uint64(nOps))

	rawData := newData.Bytes()
	storedData := rawData
	if version == Version1 {
		compressed, err := deflate(rawData)
		if err != nil {
			return nil, err
		}
		if len(compressed) < len(rawData) {
			storedData = compressed
		}
	}
	writeInt(&win, uint64(len(rawData)))
	writeInt(&win, uint64(len(storedData)))

	win.Write(instrBytes)
	win.Write(storedData)
	return win.Bytes(), nil
}

func decodeWindow(r *bytes.Reader, base []byte, out *bytes.Buffer, version Version) error {
	srcOff, err := readInt(r)
	if err != nil {
		return err
	}
	srcLen, err := readInt(r)
	if err != nil {
		return err
	}
	targetLen, err := readInt(r)
	if err != nil {
		return err
	}
	instrLen, err := readInt(r)
	if err != nil {
		return err
	}
	nOps, err := readInt(r)
	if err != nil {
		return err
	}
	rawDataLen, err := readInt(r)
	if err != nil {
		return err
	}
	storedDataLen, err := readInt(r)
	if err != nil {
		return err
	}

	instrBuf := make([]byte, instrLen)
	if _, err := io.ReadFull(r, instrBuf); err != nil {
		return fmt.Errorf("svndiff: reading instructions: %w", err)
	}
	storedData := make([]byte, storedDataLen)
	if _, err := io.ReadFull(r, storedData); err != nil {
		return fmt.Errorf("svndiff: reading data section: %w", err)
	}

	data := storedData
	if version == Version1 && storedDataLen != rawDataLen {
		inflated, err := inflate(storedData, int(rawDataLen))
		if err != nil {
			return err
		}
		data = inflated
	}

	src := base[srcOff : srcOff+srcLen]
	target := make([]byte, 0, targetLen)

	instrR := bytes.NewReader(instrBuf)
	for i := uint64(0); i < nOps; i++ {
		op, offset, length, err := readOp(instrR)
		if err != nil {
			return err
		}
		switch op {
		case opCopySource:
			target = append(target, src[offset:offset+length]...)
		case opCopyTarget:
			target = append(target, target[offset:offset+length]...)
		case opInsert:
			target = append(target, data[:length]...)
			data = data[length:]
		default:
			return fmt.Errorf("svndiff: unknown instruction opcode %d", op)
		}
	}

	if uint64(len(target)) != targetLen {
		return fmt.Errorf("svndiff: window produced %d bytes, want %d", len(target), targetLen)
	}
	out.Write(target)
	return nil
}

func writeOp(w *bytes.Buffer, op byte, offset, length int) {
	header := op << 6
	if length < 0x3f {
		w.WriteByte(header | byte(length))
	} else {
		w.WriteByte(header | 0x3f)
		writeInt(w, uint64(length))
	}
	writeInt(w, uint64(offset))
}

func readOp(r *bytes.Reader) (op byte, offset, length uint64, err error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("svndiff: reading op header: %w", err)
	}
	op = b >> 6
	lenBits := uint64(b & 0x3f)
	if lenBits == 0x3f {
		length, err = readInt(r)
		if err != nil {
			return 0, 0, 0, err
		}
	} else {
		length = lenBits
	}
	offset, err = readInt(r)
	if err != nil {
		return 0, 0, 0, err
	}
	return op, offset, length, nil
}

// writeInt appends v as a big-endian base-128 varint, the same
// continuation-bit integer encoding real svndiff uses.
func writeInt(w *bytes.Buffer, v uint64) {
	var buf [10]byte
	i := len(buf)
	i--
	buf[i] = byte(v & 0x7f)
	v >>= 7
	for v > 0 {
		i--
		buf[i] = byte(v&0x7f) | 0x80
		v >>= 7
	}
	w.Write(buf[i:])
}

func readInt(r *bytes.Reader) (uint64, error) {
	var v uint64
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("svndiff: reading varint: %w", err)
		}
		v = v<<7 | uint64(b&0x7f)
		if b&0x80 == 0 {
			return v, nil
		}
	}
}

func commonPrefixLen(a, b []byte) int {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func commonSuffixLen(a, b []byte, max int) int {
	i := 0
	for i < max && a[len(a)-1-i] == b[len(b)-1-i] {
		i++
	}
	return i
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.BestSpeed)
	if err != nil {
		return nil, fmt.Errorf("svndiff: flate writer: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, fmt.Errorf("svndiff: flate write: %w", err)
	}
	if err := fw.Close(); err != nil {
		return nil, fmt.Errorf("svndiff: flate close: %w", err)
	}
	return buf.Bytes(), nil
}

func inflate(data []byte, expectedLen int) ([]byte, error) {
	fr := flate.NewReader(bytes.NewReader(data))
	defer fr.Close()
	out := make([]byte, 0, expectedLen)
	buf := make([]byte, 4096)
	for {
		n, err := fr.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("svndiff: flate read: %w", err)
		}
	}
	return out, nil
}
