package store

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"
)

// DB is an open database handle. It is safe for concurrent use; the
// descriptor table is populated during single-threaded startup via Register
// and read-only afterwards.
type DB struct {
	bolt *bolt.DB
	cfg  Config

	mu     sync.RWMutex
	stores map[string]*descriptor
}

// Open opens (creating if necessary) the database file at path with
// default configuration.
func Open(path string) (*DB, error) {
	return OpenWith(path, DefaultConfig())
}

// OpenWith opens the database file at path with the given configuration.
func OpenWith(path string, cfg Config) (*DB, error) {
	cfg.validate()
	bdb, err := bolt.Open(path, cfg.FileMode, &bolt.Options{Timeout: cfg.OpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("warren: open %s: %w", path, err)
	}
	err = bdb.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(cfg.RegistryBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(cfg.RelationBucket))
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("warren: init %s: %w", path, err)
	}
	return &DB{bolt: bdb, cfg: cfg, stores: make(map[string]*descriptor)}, nil
}

// Close releases the database file lock. Pending operations on other
// goroutines must have finished.
func (db *DB) Close() error {
	return db.bolt.Close()
}

// Path returns the path of the open database file.
func (db *DB) Path() string {
	return db.bolt.Path()
}

// Save serializes e and writes it under its encoded key, overwriting any
// existing record at that key. Relation indexes are never touched.
func Save(db *DB, e Entity) error {
	key, err := EncodeKey(e.KeySpec(), e.Key())
	if err != nil {
		return err
	}
	val, err := marshalRecord(e)
	if err != nil {
		return err
	}
	return db.bolt.Update(func(tx *bolt.Tx) error {
		b, err := entityBucket(tx, e.StoreName())
		if err != nil {
			return err
		}
		return b.Put(key, val)
	})
}

// Get reads the record stored under key, or ErrNotFound.
func Get[E any, PE interface {
	Entity
	*E
}](db *DB, key any) (PE, error) {
	var e E
	pe := PE(&e)
	enc, err := EncodeKey(pe.KeySpec(), key)
	if err != nil {
		return nil, err
	}
	err = db.bolt.View(func(tx *bolt.Tx) error {
		b, err := entityBucket(tx, pe.StoreName())
		if err != nil {
			return err
		}
		raw := b.Get(enc)
		if raw == nil {
			return ErrNotFound
		}
		return unmarshalRecord(pe.StoreName(), raw, pe)
	})
	if err != nil {
		return nil, err
	}
	return pe, nil
}

// GetAll returns every record of the store in key order.
func GetAll[E any, PE interface {
	Entity
	*E
}](db *DB) ([]PE, error) {
	return GetFiltered[E, PE](db, nil)
}

// GetFiltered returns the records for which pred holds, in key order. The
// predicate runs after deserialization; a predicate error aborts the scan
// and propagates. A nil predicate keeps everything.
func GetFiltered[E any, PE interface {
	Entity
	*E
}](db *DB, pred func(PE) (bool, error)) ([]PE, error) {
	var proto E
	name := PE(&proto).StoreName()
	var out []PE
	err := db.bolt.View(func(tx *bolt.Tx) error {
		b, err := entityBucket(tx, name)
		if err != nil {
			return err
		}
		return b.ForEach(func(_, raw []byte) error {
			var e E
			pe := PE(&e)
			if err := unmarshalRecord(name, raw, pe); err != nil {
				return err
			}
			if pred != nil {
				keep, err := pred(pe)
				if err != nil {
					return err
				}
				if !keep {
					return nil
				}
			}
			out = append(out, pe)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Remove deletes the record stored under key, honoring every declared
// deletion behavior of its relationships. See [DeletionBehavior].
func Remove[E any, PE interface {
	Entity
	*E
}](db *DB, key any) error {
	var proto E
	pe := PE(&proto)
	enc, err := EncodeKey(pe.KeySpec(), key)
	if err != nil {
		return err
	}
	return db.remove(pe.StoreName(), enc)
}

// SaveNext allocates the next free u32 key for e, writes it back with
// SetKey, and saves the record. Allocation reads the largest current key
// and adds one inside the same write transaction as the save, so concurrent
// calls are serialized by bbolt's single writer; no other lock is taken.
func SaveNext(db *DB, e Entity) error {
	spec := e.KeySpec()
	if !spec.autoIncrement() {
		return ErrNotAutoIncrement
	}
	return db.bolt.Update(func(tx *bolt.Tx) error {
		b, err := entityBucket(tx, e.StoreName())
		if err != nil {
			return err
		}
		next := uint32(0)
		if last, _ := b.Cursor().Last(); last != nil {
			v, err := DecodeKey(spec, last)
			if err != nil {
				return err
			}
			next = v.(uint32) + 1
		}
		e.SetKey(next)
		key, err := EncodeKey(spec, e.Key())
		if err != nil {
			return err
		}
		val, err := marshalRecord(e)
		if err != nil {
			return err
		}
		return b.Put(key, val)
	})
}

// SaveSibling writes sibling under self's key in sibling's own store. The
// two stores must declare identical key specs.
func SaveSibling(db *DB, self, sibling Entity) error {
	if !self.KeySpec().Equal(sibling.KeySpec()) {
		return &KeyTypeError{Spec: sibling.KeySpec(), Value: self.Key()}
	}
	sibling.SetKey(self.Key())
	return Save(db, sibling)
}

// GetSibling reads the record sharing self's key in E's store.
func GetSibling[E any, PE interface {
	Entity
	*E
}](db *DB, self Entity) (PE, error) {
	return Get[E, PE](db, self.Key())
}

// SaveChild allocates the next free sub-key under parent, writes the
// composite key back into child with SetKey, and saves the record. The
// child's key spec must be ChildKey of the parent's. As with SaveNext, the
// allocation and the save share one write transaction.
func SaveChild(db *DB, parent, child Entity) error {
	childSpec := child.KeySpec()
	if !childSpec.Equal(ChildKey(parent.KeySpec())) {
		return &KeyTypeError{Spec: childSpec, Value: parent.Key()}
	}
	lo, hi, err := ChildRange(parent.KeySpec(), parent.Key())
	if err != nil {
		return err
	}
	return db.bolt.Update(func(tx *bolt.Tx) error {
		b, err := entityBucket(tx, child.StoreName())
		if err != nil {
			return err
		}
		next := uint32(0)
		if last := lastInRange(b.Cursor(), lo, hi); last != nil {
			v, err := DecodeKey(childSpec, last)
			if err != nil {
				return err
			}
			next = v.(Tuple).Second.(uint32) + 1
		}
		child.SetKey(Tuple{First: parent.Key(), Second: next})
		key, err := EncodeKey(childSpec, child.Key())
		if err != nil {
			return err
		}
		val, err := marshalRecord(child)
		if err != nil {
			return err
		}
		return b.Put(key, val)
	})
}

// GetChildren returns every child record under parent, in sub-key order.
func GetChildren[E any, PE interface {
	Entity
	*E
}](db *DB, parent Entity) ([]PE, error) {
	var proto E
	name := PE(&proto).StoreName()
	lo, hi, err := ChildRange(parent.KeySpec(), parent.Key())
	if err != nil {
		return nil, err
	}
	var out []PE
	err = db.bolt.View(func(tx *bolt.Tx) error {
		b, err := entityBucket(tx, name)
		if err != nil {
			return err
		}
		c := b.Cursor()
		for k, raw := c.Seek(lo); k != nil && inRange(k, hi); k, raw = c.Next() {
			var e E
			pe := PE(&e)
			if err := unmarshalRecord(name, raw, pe); err != nil {
				return err
			}
			out = append(out, pe)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// entityBucket resolves a store's bucket, mapping a missing bucket to the
// registration error.
func entityBucket(tx *bolt.Tx, name string) (*bolt.Bucket, error) {
	b := tx.Bucket([]byte(name))
	if b == nil {
		return nil, &UnregisteredStoreError{Store: name}
	}
	return b, nil
}

// lastInRange positions the cursor on the largest key in [lo, hi) and
// returns it, or nil if the range is empty. hi == nil means unbounded.
func lastInRange(c *bolt.Cursor, lo, hi []byte) []byte {
	var k []byte
	if hi == nil {
		k, _ = c.Last()
	} else {
		k, _ = c.Seek(hi)
		if k == nil {
			k, _ = c.Last()
		} else {
			k, _ = c.Prev()
		}
	}
	if k == nil || !bytes.HasPrefix(k, lo) {
		return nil
	}
	return k
}

// inRange reports whether k is below the exclusive bound hi (nil = unbounded).
func inRange(k, hi []byte) bool {
	return hi == nil || bytes.Compare(k, hi) < 0
}

func marshalRecord(e Entity) ([]byte, error) {
	val, err := msgpack.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("warren: serialize %s record: %w", e.StoreName(), err)
	}
	return val, nil
}

func unmarshalRecord(store string, raw []byte, into any) error {
	if err := msgpack.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("warren: deserialize %s record: %w", store, err)
	}
	return nil
}
