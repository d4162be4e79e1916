package store

import (
	"encoding/binary"
	"fmt"
)

const (
	signBit32 = uint32(1) << 31
	signBit64 = uint64(1) << 63
)

type keyKind int

const (
	kindInvalid keyKind = iota
	kindU32
	kindI32
	kindU64
	kindI64
	kindString
	kindBytes
	kindTuple
)

// KeySpec describes the declared shape of an entity key: one of the scalar
// specs below, or a tuple built with [TupleKey]. Numeric components and
// standalone string/bytes keys sort under lexicographic byte comparison the
// way their typed values do. Inside a tuple, string and bytes components carry
// a length prefix, so they sort by length first and then by content; every
// key sharing a first component still forms one contiguous range, which is
// what the prefix scans rely on.
type KeySpec struct {
	kind   keyKind
	first  *KeySpec
	second *KeySpec
}

// Scalar key specs.
var (
	U32Key    = KeySpec{kind: kindU32}
	I32Key    = KeySpec{kind: kindI32}
	U64Key    = KeySpec{kind: kindU64}
	I64Key    = KeySpec{kind: kindI64}
	StringKey = KeySpec{kind: kindString}
	BytesKey  = KeySpec{kind: kindBytes}
)

// TupleKey returns the spec of a two-component key. Components may themselves
// be tuples, which is how grandchild stores are keyed.
func TupleKey(first, second KeySpec) KeySpec {
	f, s := first, second
	return KeySpec{kind: kindTuple, first: &f, second: &s}
}

// ChildKey returns the key spec a child store must declare under a parent
// with the given spec.
func ChildKey(parent KeySpec) KeySpec {
	return TupleKey(parent, U32Key)
}

// Tuple is the runtime value of a [TupleKey] key.
type Tuple struct {
	First  any
	Second any
}

// String renders the spec signature, e.g. "u32" or "((string,u32),u32)".
func (k KeySpec) String() string {
	switch k.kind {
	case kindU32:
		return "u32"
	case kindI32:
		return "i32"
	case kindU64:
		return "u64"
	case kindI64:
		return "i64"
	case kindString:
		return "string"
	case kindBytes:
		return "bytes"
	case kindTuple:
		return "(" + k.first.String() + "," + k.second.String() + ")"
	default:
		return "invalid"
	}
}

// Equal reports whether two specs declare the same key shape.
func (k KeySpec) Equal(other KeySpec) bool {
	return k.String() == other.String()
}

// autoIncrement reports whether keys of this spec can be allocated by
// [SaveNext].
func (k KeySpec) autoIncrement() bool {
	return k.kind == kindU32
}

// EncodeKey encodes a typed key value under spec into store key bytes.
// Returns a [KeyTypeError] if the value's type disagrees with the spec.
func EncodeKey(spec KeySpec, key any) ([]byte, error) {
	return appendKey(nil, spec, key, false)
}

// appendKey appends the encoding of key to dst. nested marks components
// inside a tuple, where variable-length values carry a u32 length prefix so
// the concatenation stays unambiguous.
func appendKey(dst []byte, spec KeySpec, key any, nested bool) ([]byte, error) {
	switch spec.kind {
	case kindU32:
		v, ok := key.(uint32)
		if !ok {
			return nil, &KeyTypeError{Spec: spec, Value: key}
		}
		return binary.BigEndian.AppendUint32(dst, v), nil
	case kindI32:
		v, ok := key.(int32)
		if !ok {
			return nil, &KeyTypeError{Spec: spec, Value: key}
		}
		// Flipping the sign bit makes negative values sort below
		// non-negative ones byte-wise.
		return binary.BigEndian.AppendUint32(dst, uint32(v)^signBit32), nil
	case kindU64:
		v, ok := key.(uint64)
		if !ok {
			return nil, &KeyTypeError{Spec: spec, Value: key}
		}
		return binary.BigEndian.AppendUint64(dst, v), nil
	case kindI64:
		v, ok := key.(int64)
		if !ok {
			return nil, &KeyTypeError{Spec: spec, Value: key}
		}
		return binary.BigEndian.AppendUint64(dst, uint64(v)^signBit64), nil
	case kindString:
		v, ok := key.(string)
		if !ok {
			return nil, &KeyTypeError{Spec: spec, Value: key}
		}
		if nested {
			dst = binary.BigEndian.AppendUint32(dst, uint32(len(v)))
		}
		return append(dst, v...), nil
	case kindBytes:
		v, ok := key.([]byte)
		if !ok {
			return nil, &KeyTypeError{Spec: spec, Value: key}
		}
		if nested {
			dst = binary.BigEndian.AppendUint32(dst, uint32(len(v)))
		}
		return append(dst, v...), nil
	case kindTuple:
		v, ok := key.(Tuple)
		if !ok {
			return nil, &KeyTypeError{Spec: spec, Value: key}
		}
		dst, err := appendKey(dst, *spec.first, v.First, true)
		if err != nil {
			return nil, err
		}
		return appendKey(dst, *spec.second, v.Second, true)
	default:
		return nil, &KeyTypeError{Spec: spec, Value: key}
	}
}

// DecodeKey decodes store key bytes back into the typed value declared by
// spec. Returns a [KeyDecodeError] if the bytes do not match the declared
// component widths.
func DecodeKey(spec KeySpec, b []byte) (any, error) {
	v, rest, err := decodeKey(spec, b, false)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, &KeyDecodeError{Spec: spec, Key: b, Reason: "trailing bytes"}
	}
	return v, nil
}

func decodeKey(spec KeySpec, b []byte, nested bool) (any, []byte, error) {
	switch spec.kind {
	case kindU32:
		if len(b) < 4 {
			return nil, nil, &KeyDecodeError{Spec: spec, Key: b, Reason: "short u32 component"}
		}
		return binary.BigEndian.Uint32(b), b[4:], nil
	case kindI32:
		if len(b) < 4 {
			return nil, nil, &KeyDecodeError{Spec: spec, Key: b, Reason: "short i32 component"}
		}
		return int32(binary.BigEndian.Uint32(b) ^ signBit32), b[4:], nil
	case kindU64:
		if len(b) < 8 {
			return nil, nil, &KeyDecodeError{Spec: spec, Key: b, Reason: "short u64 component"}
		}
		return binary.BigEndian.Uint64(b), b[8:], nil
	case kindI64:
		if len(b) < 8 {
			return nil, nil, &KeyDecodeError{Spec: spec, Key: b, Reason: "short i64 component"}
		}
		return int64(binary.BigEndian.Uint64(b) ^ signBit64), b[8:], nil
	case kindString:
		if !nested {
			return string(b), nil, nil
		}
		raw, rest, err := decodePrefixed(spec, b)
		if err != nil {
			return nil, nil, err
		}
		return string(raw), rest, nil
	case kindBytes:
		if !nested {
			return append([]byte(nil), b...), nil, nil
		}
		raw, rest, err := decodePrefixed(spec, b)
		if err != nil {
			return nil, nil, err
		}
		return append([]byte(nil), raw...), rest, nil
	case kindTuple:
		first, rest, err := decodeKey(*spec.first, b, true)
		if err != nil {
			return nil, nil, err
		}
		second, rest, err := decodeKey(*spec.second, rest, true)
		if err != nil {
			return nil, nil, err
		}
		return Tuple{First: first, Second: second}, rest, nil
	default:
		return nil, nil, &KeyDecodeError{Spec: spec, Key: b, Reason: "invalid key spec"}
	}
}

func decodePrefixed(spec KeySpec, b []byte) ([]byte, []byte, error) {
	if len(b) < 4 {
		return nil, nil, &KeyDecodeError{Spec: spec, Key: b, Reason: "short length prefix"}
	}
	n := binary.BigEndian.Uint32(b)
	b = b[4:]
	if uint32(len(b)) < n {
		return nil, nil, &KeyDecodeError{
			Spec: spec, Key: b,
			Reason: fmt.Sprintf("component length %d exceeds remaining %d bytes", n, len(b)),
		}
	}
	return b[:n], b[n:], nil
}

// ChildRange returns the [lo, hi) byte bounds containing every child key
// under the given parent key, per the tuple encoding: a child key is the
// parent's tuple-position encoding followed by its own sub-key. hi == nil
// means the range extends to the end of the store.
func ChildRange(parentSpec KeySpec, parentKey any) (lo, hi []byte, err error) {
	lo, err = appendKey(nil, parentSpec, parentKey, true)
	if err != nil {
		return nil, nil, err
	}
	return lo, prefixSuccessor(lo), nil
}

// prefixSuccessor returns the smallest byte string greater than every string
// with the given prefix, or nil when no such string exists (all 0xff).
func prefixSuccessor(prefix []byte) []byte {
	hi := append([]byte(nil), prefix...)
	for i := len(hi) - 1; i >= 0; i-- {
		if hi[i] != 0xff {
			hi[i]++
			return hi[:i+1]
		}
	}
	return nil
}
