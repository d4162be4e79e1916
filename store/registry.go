package store

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"
)

// descriptor captures the static metadata an entity type declares: its
// store name, key spec, and relationship edges. The deletion engine works
// from descriptors alone, which is what lets it cascade into stores it only
// knows by name.
type descriptor struct {
	store    string
	spec     KeySpec
	siblings []Relation
	children []Relation
	partners []Relation
}

func describe(proto Entity) *descriptor {
	d := &descriptor{store: proto.StoreName(), spec: proto.KeySpec()}
	if s, ok := proto.(SiblingDeclarer); ok {
		d.siblings = s.Siblings()
	}
	if c, ok := proto.(ChildDeclarer); ok {
		d.children = c.Children()
	}
	if p, ok := proto.(PartnerDeclarer); ok {
		d.partners = p.FreePartners()
	}
	return d
}

// registryEntry is the persisted descriptor fingerprint kept in the hidden
// registry bucket, one per registered store.
type registryEntry struct {
	Store    string          `msgpack:"store"`
	KeySpec  string          `msgpack:"key_spec"`
	Siblings []relationEntry `msgpack:"siblings,omitempty"`
	Children []relationEntry `msgpack:"children,omitempty"`
	Partners []relationEntry `msgpack:"partners,omitempty"`
}

type relationEntry struct {
	Store    string `msgpack:"store"`
	OnDelete int8   `msgpack:"on_delete"`
}

func (d *descriptor) entry() registryEntry {
	e := registryEntry{Store: d.store, KeySpec: d.spec.String()}
	e.Siblings = relationEntries(d.siblings)
	e.Children = relationEntries(d.children)
	e.Partners = relationEntries(d.partners)
	return e
}

func relationEntries(rels []Relation) []relationEntry {
	if len(rels) == 0 {
		return nil
	}
	out := make([]relationEntry, len(rels))
	for i, r := range rels {
		out[i] = relationEntry{Store: r.Store, OnDelete: int8(r.OnDelete)}
	}
	return out
}

func (e registryEntry) signature() string {
	return fmt.Sprintf("key=%s siblings=%v children=%v partners=%v",
		e.KeySpec, e.Siblings, e.Children, e.Partners)
}

func (d *descriptor) signature() string {
	return d.entry().signature()
}

// Register declares entity type E on the database handle: it creates the
// store's bucket, persists the descriptor fingerprint in the registry
// bucket, and installs the in-memory descriptor the deletion engine walks.
// Registering the same type twice is a no-op; a different descriptor under
// the same store name is a RegistrationConflictError. Call during
// single-threaded startup, before any store operation on E.
func Register[E any, PE interface {
	Entity
	*E
}](db *DB) error {
	var proto E
	return db.register(describe(PE(&proto)))
}

func (db *DB) register(d *descriptor) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if existing, ok := db.stores[d.store]; ok {
		if existing.signature() != d.signature() {
			return &RegistrationConflictError{
				Store:    d.store,
				Existing: existing.signature(),
				Proposed: d.signature(),
			}
		}
		return nil
	}

	fp, err := msgpack.Marshal(d.entry())
	if err != nil {
		return fmt.Errorf("warren: encode registry entry for %s: %w", d.store, err)
	}
	err = db.bolt.Update(func(tx *bolt.Tx) error {
		reg := tx.Bucket([]byte(db.cfg.RegistryBucket))
		if prev := reg.Get([]byte(d.store)); prev != nil && !bytes.Equal(prev, fp) {
			var prevEntry registryEntry
			if err := msgpack.Unmarshal(prev, &prevEntry); err != nil {
				return fmt.Errorf("warren: decode registry entry for %s: %w", d.store, err)
			}
			return &RegistrationConflictError{
				Store:    d.store,
				Existing: prevEntry.signature(),
				Proposed: d.signature(),
			}
		}
		if err := reg.Put([]byte(d.store), fp); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(d.store))
		return err
	})
	if err != nil {
		return err
	}
	db.stores[d.store] = d
	return nil
}

// descriptorOf resolves a registered descriptor by store name.
func (db *DB) descriptorOf(store string) (*descriptor, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	d, ok := db.stores[store]
	if !ok {
		return nil, &UnregisteredStoreError{Store: store}
	}
	return d, nil
}

// RegisteredStores returns the store names known to this handle, in
// registration-independent (map) order.
func (db *DB) RegisteredStores() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]string, 0, len(db.stores))
	for name := range db.stores {
		out = append(out, name)
	}
	return out
}
