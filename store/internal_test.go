package store

import (
	"bytes"
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"
)

func TestPrefixSuccessor(t *testing.T) {
	tests := []struct {
		name     string
		prefix   []byte
		expected []byte
	}{
		{"simple", []byte{0x01, 0x02}, []byte{0x01, 0x03}},
		{"carry one", []byte{0x01, 0xff}, []byte{0x02}},
		{"carry twice", []byte{0x01, 0xff, 0xff}, []byte{0x02}},
		{"all ff", []byte{0xff, 0xff}, nil},
		{"empty", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := prefixSuccessor(tt.prefix)
			if !bytes.Equal(got, tt.expected) {
				t.Errorf("expected %x, got %x", tt.expected, got)
			}
		})
	}
}

func TestPrefixSuccessorDoesNotAliasInput(t *testing.T) {
	prefix := []byte{0x01, 0x02}
	_ = prefixSuccessor(prefix)
	if prefix[1] != 0x02 {
		t.Errorf("expected input untouched, got %x", prefix)
	}
}

func TestNestedVariableComponentsArePrefixed(t *testing.T) {
	// Standalone string keys are verbatim; the same string inside a tuple
	// carries a length prefix.
	standalone, err := EncodeKey(StringKey, "ab")
	if err != nil {
		t.Fatalf("encode standalone: %v", err)
	}
	if !bytes.Equal(standalone, []byte("ab")) {
		t.Errorf("expected verbatim %x, got %x", "ab", standalone)
	}

	nested, err := EncodeKey(TupleKey(StringKey, U32Key), Tuple{First: "ab", Second: uint32(1)})
	if err != nil {
		t.Fatalf("encode nested: %v", err)
	}
	expected := []byte{0, 0, 0, 2, 'a', 'b', 0, 0, 0, 1}
	if !bytes.Equal(nested, expected) {
		t.Errorf("expected %x, got %x", expected, nested)
	}
}

func TestSignedEncodingFlipsSignBit(t *testing.T) {
	enc, err := EncodeKey(I32Key, int32(-1))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	expected := []byte{0x7f, 0xff, 0xff, 0xff}
	if !bytes.Equal(enc, expected) {
		t.Errorf("expected %x, got %x", expected, enc)
	}

	enc, err = EncodeKey(I32Key, int32(0))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	expected = []byte{0x80, 0x00, 0x00, 0x00}
	if !bytes.Equal(enc, expected) {
		t.Errorf("expected %x, got %x", expected, enc)
	}
}

func TestKeySpecEqual(t *testing.T) {
	tests := []struct {
		name     string
		a, b     KeySpec
		expected bool
	}{
		{"same scalar", U32Key, U32Key, true},
		{"different scalar", U32Key, I32Key, false},
		{"same tuple", ChildKey(StringKey), TupleKey(StringKey, U32Key), true},
		{"tuple vs scalar", ChildKey(StringKey), StringKey, false},
		{"nested", ChildKey(ChildKey(StringKey)), ChildKey(ChildKey(StringKey)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestAutoIncrementSpec(t *testing.T) {
	if !U32Key.autoIncrement() {
		t.Error("expected u32 to support auto-increment")
	}
	for _, spec := range []KeySpec{I32Key, U64Key, StringKey, ChildKey(StringKey)} {
		if spec.autoIncrement() {
			t.Errorf("expected %s not to support auto-increment", spec)
		}
	}
}

type leftEnd struct {
	ID uint32 `msgpack:"id"`
}

func (l *leftEnd) StoreName() string { return "left_ends" }
func (l *leftEnd) KeySpec() KeySpec  { return U32Key }
func (l *leftEnd) Key() any          { return l.ID }
func (l *leftEnd) SetKey(k any)      { l.ID = k.(uint32) }

type rightEnd struct {
	ID uint32 `msgpack:"id"`
}

func (r *rightEnd) StoreName() string { return "right_ends" }
func (r *rightEnd) KeySpec() KeySpec  { return U32Key }
func (r *rightEnd) Key() any          { return r.ID }
func (r *rightEnd) SetKey(k any)      { r.ID = k.(uint32) }

// relationRecordCount counts the physical directed edge records, which the
// public surface never exposes.
func relationRecordCount(t *testing.T, db *DB) int {
	t.Helper()
	count := 0
	err := db.bolt.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(db.cfg.RelationBucket)).ForEach(func(_, _ []byte) error {
			count++
			return nil
		})
	})
	if err != nil {
		t.Fatalf("count relation records: %v", err)
	}
	return count
}

func TestRelationRecordsStoredSymmetrically(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "warren.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if err := Register[leftEnd](db); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := Register[rightEnd](db); err != nil {
		t.Fatalf("register: %v", err)
	}

	l := &leftEnd{ID: 1}
	r := &rightEnd{ID: 2}
	if err := Save(db, l); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := Save(db, r); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := CreateRelation(db, l, r, Cascade, BreakLink, "pair"); err != nil {
		t.Fatalf("create relation: %v", err)
	}
	if got := relationRecordCount(t, db); got != 2 {
		t.Errorf("expected 2 directed records, got %d", got)
	}

	// Removing an endpoint leaves no edge record behind, whichever
	// direction the behavior pointed.
	if err := db.remove("right_ends", mustEncode(t, U32Key, uint32(2))); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := relationRecordCount(t, db); got != 0 {
		t.Errorf("expected no directed records, got %d", got)
	}
}

func mustEncode(t *testing.T, spec KeySpec, key any) []byte {
	t.Helper()
	enc, err := EncodeKey(spec, key)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return enc
}

func TestDescriptorSignature(t *testing.T) {
	a := &descriptor{store: "users", spec: U32Key, siblings: []Relation{{Store: "user_data", OnDelete: Cascade}}}
	b := &descriptor{store: "users", spec: U32Key, siblings: []Relation{{Store: "user_data", OnDelete: Cascade}}}
	c := &descriptor{store: "users", spec: U32Key, siblings: []Relation{{Store: "user_data", OnDelete: Error}}}

	if a.signature() != b.signature() {
		t.Errorf("expected equal signatures, got %q vs %q", a.signature(), b.signature())
	}
	if a.signature() == c.signature() {
		t.Errorf("expected signatures to differ, both %q", a.signature())
	}
}
