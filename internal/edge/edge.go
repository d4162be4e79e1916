// Package edge composes and parses the directed edge keys of the hidden
// free-relation index.
package edge

import (
	"encoding/binary"
	"fmt"
)

// Key composes the directed edge key for a link leaving (fromStore, fromKey)
// toward (toStore, toKey). Every segment is prefixed with its length as a
// big-endian u32 so keys and store names of any content concatenate
// unambiguously; the optional relation name is the verbatim tail.
func Key(fromStore string, fromKey []byte, toStore string, toKey []byte, name string) []byte {
	k := PairPrefix(fromStore, fromKey, toStore, toKey)
	return append(k, name...)
}

// Prefix returns the scan prefix covering every edge leaving
// (fromStore, fromKey), regardless of target or name.
func Prefix(fromStore string, fromKey []byte) []byte {
	k := appendSegment(nil, []byte(fromStore))
	return appendSegment(k, fromKey)
}

// PairPrefix returns the scan prefix covering every edge from
// (fromStore, fromKey) to (toStore, toKey), regardless of name.
func PairPrefix(fromStore string, fromKey []byte, toStore string, toKey []byte) []byte {
	k := Prefix(fromStore, fromKey)
	k = appendSegment(k, []byte(toStore))
	return appendSegment(k, toKey)
}

// Parsed is a decomposed directed edge key.
type Parsed struct {
	FromStore string
	FromKey   []byte
	ToStore   string
	ToKey     []byte
	Name      string
}

// Parse decomposes a directed edge key.
func Parse(k []byte) (Parsed, error) {
	var p Parsed
	seg, rest, err := readSegment(k)
	if err != nil {
		return p, fmt.Errorf("edge key from-store: %w", err)
	}
	p.FromStore = string(seg)
	seg, rest, err = readSegment(rest)
	if err != nil {
		return p, fmt.Errorf("edge key from-key: %w", err)
	}
	p.FromKey = seg
	seg, rest, err = readSegment(rest)
	if err != nil {
		return p, fmt.Errorf("edge key to-store: %w", err)
	}
	p.ToStore = string(seg)
	seg, rest, err = readSegment(rest)
	if err != nil {
		return p, fmt.Errorf("edge key to-key: %w", err)
	}
	p.ToKey = seg
	p.Name = string(rest)
	return p, nil
}

func appendSegment(dst, seg []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(seg)))
	return append(dst, seg...)
}

func readSegment(b []byte) (seg, rest []byte, err error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("short length prefix (%d bytes)", len(b))
	}
	n := binary.BigEndian.Uint32(b)
	b = b[4:]
	if uint32(len(b)) < n {
		return nil, nil, fmt.Errorf("segment length %d exceeds remaining %d bytes", n, len(b))
	}
	return b[:n:n], b[n:], nil
}
