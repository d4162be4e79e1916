package store

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"

	"github.com/jacentio/warren/internal/edge"
)

// edgeRecord is the stored value of one directed free-relation edge.
// OnSelfDelete is what deleting this record's near endpoint owes the far
// endpoint; OnOtherDelete is the swapped view carried for the reverse copy.
type edgeRecord struct {
	Name          string           `msgpack:"name,omitempty"`
	OnSelfDelete  DeletionBehavior `msgpack:"on_self_delete"`
	OnOtherDelete DeletionBehavior `msgpack:"on_other_delete"`
}

// CreateRelation links a and b with a named free relation. onADelete is
// applied to b when a is removed, onBDelete to a when b is removed. The
// empty name is the unnamed relation. A same-keyed link is replaced.
// Neither endpoint record needs to exist yet.
func CreateRelation(db *DB, a, b Entity, onADelete, onBDelete DeletionBehavior, name string) error {
	aKey, err := EncodeKey(a.KeySpec(), a.Key())
	if err != nil {
		return err
	}
	bKey, err := EncodeKey(b.KeySpec(), b.Key())
	if err != nil {
		return err
	}
	forward, err := msgpack.Marshal(edgeRecord{Name: name, OnSelfDelete: onADelete, OnOtherDelete: onBDelete})
	if err != nil {
		return fmt.Errorf("warren: encode relation record: %w", err)
	}
	reverse, err := msgpack.Marshal(edgeRecord{Name: name, OnSelfDelete: onBDelete, OnOtherDelete: onADelete})
	if err != nil {
		return fmt.Errorf("warren: encode relation record: %w", err)
	}
	return db.bolt.Update(func(tx *bolt.Tx) error {
		rel := tx.Bucket([]byte(db.cfg.RelationBucket))
		fk := edge.Key(a.StoreName(), aKey, b.StoreName(), bKey, name)
		if err := rel.Put(fk, forward); err != nil {
			return err
		}
		rk := edge.Key(b.StoreName(), bKey, a.StoreName(), aKey, name)
		return rel.Put(rk, reverse)
	})
}

// RemoveRelation removes every free relation between a and b, named or not.
func RemoveRelation(db *DB, a, b Entity) error {
	aKey, err := EncodeKey(a.KeySpec(), a.Key())
	if err != nil {
		return err
	}
	bKey, err := EncodeKey(b.KeySpec(), b.Key())
	if err != nil {
		return err
	}
	return db.removeRelation(a.StoreName(), aKey, b.StoreName(), bKey)
}

// RemoveRelationKey removes every free relation between a and the record of
// type E keyed by key, whether or not that record exists.
func RemoveRelationKey[E any, PE interface {
	Entity
	*E
}](db *DB, a Entity, key any) error {
	var proto E
	pe := PE(&proto)
	aKey, err := EncodeKey(a.KeySpec(), a.Key())
	if err != nil {
		return err
	}
	bKey, err := EncodeKey(pe.KeySpec(), key)
	if err != nil {
		return err
	}
	return db.removeRelation(a.StoreName(), aKey, pe.StoreName(), bKey)
}

func (db *DB) removeRelation(aStore string, aKey []byte, bStore string, bKey []byte) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		rel := tx.Bucket([]byte(db.cfg.RelationBucket))
		if err := deletePrefix(rel, edge.PairPrefix(aStore, aKey, bStore, bKey)); err != nil {
			return err
		}
		return deletePrefix(rel, edge.PairPrefix(bStore, bKey, aStore, aKey))
	})
}

// deletePrefix removes every key under prefix. Keys are collected before
// deleting so the cursor never walks a mutating bucket.
func deletePrefix(b *bolt.Bucket, prefix []byte) error {
	var keys [][]byte
	c := b.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// GetRelated returns every existing record of type E linked to a by a free
// relation, under any name.
func GetRelated[E any, PE interface {
	Entity
	*E
}](db *DB, a Entity) ([]PE, error) {
	return related[E, PE](db, a, "", false)
}

// GetRelatedNamed is GetRelated restricted to relations carrying name.
func GetRelatedNamed[E any, PE interface {
	Entity
	*E
}](db *DB, a Entity, name string) ([]PE, error) {
	return related[E, PE](db, a, name, true)
}

// GetSingleRelated returns the first related record of type E in scan
// order, or ErrNotFound.
func GetSingleRelated[E any, PE interface {
	Entity
	*E
}](db *DB, a Entity) (PE, error) {
	return single(GetRelated[E, PE](db, a))
}

// GetSingleRelatedNamed is GetSingleRelated restricted to relations
// carrying name.
func GetSingleRelatedNamed[E any, PE interface {
	Entity
	*E
}](db *DB, a Entity, name string) (PE, error) {
	return single(GetRelatedNamed[E, PE](db, a, name))
}

func single[PE any](all []PE, err error) (PE, error) {
	var zero PE
	if err != nil {
		return zero, err
	}
	if len(all) == 0 {
		return zero, ErrNotFound
	}
	return all[0], nil
}

func related[E any, PE interface {
	Entity
	*E
}](db *DB, a Entity, name string, named bool) ([]PE, error) {
	var proto E
	target := PE(&proto).StoreName()
	aKey, err := EncodeKey(a.KeySpec(), a.Key())
	if err != nil {
		return nil, err
	}
	prefix := edge.Prefix(a.StoreName(), aKey)
	var out []PE
	err = db.bolt.View(func(tx *bolt.Tx) error {
		rel := tx.Bucket([]byte(db.cfg.RelationBucket))
		tb, err := entityBucket(tx, target)
		if err != nil {
			return err
		}
		c := rel.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			p, err := edge.Parse(k)
			if err != nil {
				return fmt.Errorf("warren: malformed relation record: %w", err)
			}
			if p.ToStore != target {
				continue
			}
			if named && p.Name != name {
				continue
			}
			raw := tb.Get(p.ToKey)
			if raw == nil {
				// Edges may point at records that were never saved
				// or have since been written over; related reads
				// filter to what exists.
				continue
			}
			var e E
			pe := PE(&e)
			if err := unmarshalRecord(target, raw, pe); err != nil {
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
