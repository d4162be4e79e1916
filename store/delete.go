package store

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"

	"github.com/jacentio/warren/internal/edge"
)

// remove is the deletion engine entry point. The whole protocol (the
// read-only pre-flight over the cascade closure, then the execution pass)
// runs inside one write transaction, so an IntegrityError or an I/O failure
// leaves the database exactly as it was.
func (db *DB) remove(storeName string, encKey []byte) error {
	if _, err := db.descriptorOf(storeName); err != nil {
		return err
	}
	return db.bolt.Update(func(tx *bolt.Tx) error {
		d := &deleter{
			db:      db,
			tx:      tx,
			rel:     tx.Bucket([]byte(db.cfg.RelationBucket)),
			visited: make(map[string]bool),
		}
		if err := d.preflight(storeName, encKey); err != nil {
			return err
		}
		d.visited = make(map[string]bool)
		return d.execute(storeName, encKey)
	})
}

type deleter struct {
	db  *DB
	tx  *bolt.Tx
	rel *bolt.Bucket

	// visited holds the (store, key) pairs already walked in the current
	// pass; a pair on the set is being handled by an outer frame, which
	// is what keeps Cascade cycles from recursing forever.
	visited map[string]bool
}

func visitKey(store string, key []byte) string {
	return store + "\x00" + string(key)
}

// freeEdge is one outgoing free-relation edge read back from the index.
type freeEdge struct {
	key     []byte
	toStore string
	toKey   []byte
	name    string
	rec     edgeRecord
}

// preflight walks siblings, child ranges, and free edges of the cascade
// closure without writing anything, and reports the first Error-behavior
// edge whose far side exists.
func (d *deleter) preflight(storeName string, key []byte) error {
	vk := visitKey(storeName, key)
	if d.visited[vk] {
		return nil
	}
	d.visited[vk] = true

	desc, err := d.db.descriptorOf(storeName)
	if err != nil {
		return err
	}

	for _, rel := range desc.siblings {
		if !d.exists(rel.Store, key) {
			continue
		}
		switch rel.OnDelete {
		case Error:
			// A far side already slated for deletion by an outer
			// frame cannot block.
			if d.visited[visitKey(rel.Store, key)] {
				continue
			}
			return &IntegrityError{BlockingStore: rel.Store, BlockingKey: key}
		case Cascade:
			if err := d.preflight(rel.Store, key); err != nil {
				return err
			}
		}
	}

	if len(desc.children) > 0 {
		lo, hi, err := childBounds(desc, key)
		if err != nil {
			return err
		}
		for _, rel := range desc.children {
			keys := d.rangeKeys(rel.Store, lo, hi)
			if len(keys) == 0 {
				continue
			}
			switch rel.OnDelete {
			case Error:
				for _, ck := range keys {
					if d.visited[visitKey(rel.Store, ck)] {
						continue
					}
					return &IntegrityError{BlockingStore: rel.Store, BlockingKey: ck}
				}
			case Cascade:
				for _, ck := range keys {
					if err := d.preflight(rel.Store, ck); err != nil {
						return err
					}
				}
			}
		}
	}

	edges, err := d.outgoingEdges(storeName, key)
	if err != nil {
		return err
	}
	for _, e := range edges {
		if !d.exists(e.toStore, e.toKey) {
			continue
		}
		switch e.rec.OnSelfDelete {
		case Error:
			if d.visited[visitKey(e.toStore, e.toKey)] {
				continue
			}
			return &IntegrityError{BlockingStore: e.toStore, BlockingKey: e.toKey}
		case Cascade:
			if err := d.preflight(e.toStore, e.toKey); err != nil {
				return err
			}
		}
	}
	return nil
}

// execute performs the writes. Edge records are cleared before endpoint
// records, and sibling/child cascades run before self-removal, so a
// recovery after a mid-write crash never finds an edge pointing at a freed
// key.
func (d *deleter) execute(storeName string, key []byte) error {
	vk := visitKey(storeName, key)
	if d.visited[vk] {
		return nil
	}
	d.visited[vk] = true

	desc, err := d.db.descriptorOf(storeName)
	if err != nil {
		return err
	}

	d.db.cfg.Logger.Debug("warren: deleting record",
		"store", storeName,
		"key", fmt.Sprintf("%x", key),
	)

	edges, err := d.outgoingEdges(storeName, key)
	if err != nil {
		return err
	}

	// Break-link edges and edges whose far side is already gone drop
	// their two directed records and nothing else.
	for _, e := range edges {
		if e.rec.OnSelfDelete == Cascade && d.exists(e.toStore, e.toKey) {
			continue
		}
		if err := d.dropEdgePair(storeName, key, e); err != nil {
			return err
		}
	}

	// Cascade edges recurse into the far endpoint first, then drop the
	// edge records.
	for _, e := range edges {
		if e.rec.OnSelfDelete != Cascade || !d.exists(e.toStore, e.toKey) {
			continue
		}
		if err := d.execute(e.toStore, e.toKey); err != nil {
			return err
		}
		if err := d.dropEdgePair(storeName, key, e); err != nil {
			return err
		}
	}

	for _, rel := range desc.siblings {
		if rel.OnDelete != Cascade || !d.exists(rel.Store, key) {
			continue
		}
		if err := d.execute(rel.Store, key); err != nil {
			return err
		}
	}

	if len(desc.children) > 0 {
		lo, hi, err := childBounds(desc, key)
		if err != nil {
			return err
		}
		for _, rel := range desc.children {
			if rel.OnDelete != Cascade {
				continue
			}
			for _, ck := range d.rangeKeys(rel.Store, lo, hi) {
				if err := d.execute(rel.Store, ck); err != nil {
					return err
				}
			}
		}
	}

	b := d.tx.Bucket([]byte(storeName))
	if b == nil {
		return &UnregisteredStoreError{Store: storeName}
	}
	return b.Delete(key)
}

func (d *deleter) dropEdgePair(fromStore string, fromKey []byte, e freeEdge) error {
	if err := d.rel.Delete(e.key); err != nil {
		return err
	}
	return d.rel.Delete(edge.Key(e.toStore, e.toKey, fromStore, fromKey, e.name))
}

func (d *deleter) exists(store string, key []byte) bool {
	b := d.tx.Bucket([]byte(store))
	return b != nil && b.Get(key) != nil
}

// rangeKeys copies out every key of store in [lo, hi). A missing bucket is
// an empty range.
func (d *deleter) rangeKeys(store string, lo, hi []byte) [][]byte {
	b := d.tx.Bucket([]byte(store))
	if b == nil {
		return nil
	}
	var keys [][]byte
	c := b.Cursor()
	for k, _ := c.Seek(lo); k != nil && inRange(k, hi); k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	return keys
}

// outgoingEdges copies out every directed edge leaving (store, key).
func (d *deleter) outgoingEdges(store string, key []byte) ([]freeEdge, error) {
	prefix := edge.Prefix(store, key)
	var out []freeEdge
	c := d.rel.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		p, err := edge.Parse(k)
		if err != nil {
			return nil, fmt.Errorf("warren: malformed relation record: %w", err)
		}
		var rec edgeRecord
		if err := msgpack.Unmarshal(v, &rec); err != nil {
			return nil, fmt.Errorf("warren: decode relation record: %w", err)
		}
		out = append(out, freeEdge{
			key:     append([]byte(nil), k...),
			toStore: p.ToStore,
			toKey:   p.ToKey,
			name:    p.Name,
			rec:     rec,
		})
	}
	return out, nil
}

// childBounds computes the [lo, hi) child range under the record keyed by
// key in a store described by desc. The stored key is decoded and
// re-encoded in tuple position, where variable-length components carry
// length prefixes.
func childBounds(desc *descriptor, key []byte) (lo, hi []byte, err error) {
	typed, err := DecodeKey(desc.spec, key)
	if err != nil {
		return nil, nil, err
	}
	return ChildRange(desc.spec, typed)
}
