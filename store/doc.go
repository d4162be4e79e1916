// Package store is an embedded entity store layered over bbolt.
//
// Warren is designed for applications that want typed records with declared
// primary keys and real relationship semantics (siblings, auto-numbered
// children, and named many-to-many links) without leaving a single
// database file.
//
// # Key Features
//
//   - Ordered key codec: numeric and standalone string/bytes keys sort the
//     way their typed values do (length-prefixed string/bytes components
//     inside tuples sort by length first), and keys sharing a parent are
//     contiguous, so parent→children reads are single prefix scans
//   - Sibling (1:1), child (1:N), and free (M:N, named) relationships
//   - Per-edge deletion behavior: Cascade, Error, or BreakLink, enforced
//     by a pre-flight pass that mutates nothing when a delete is refused
//   - Auto-incremented u32 keys for top-level stores and child ranges
//   - msgpack record payloads
//
// # Entity Interfaces
//
// All entities implement the [Entity] interface:
//
//	type Entity interface {
//	    StoreName() string
//	    KeySpec() KeySpec
//	    Key() any
//	    SetKey(key any)
//	}
//
// Relationships are declared through the optional interfaces
// [SiblingDeclarer], [ChildDeclarer], and [PartnerDeclarer].
//
// Each entity type is registered once during startup:
//
//	db, err := store.Open("app.db")
//	if err != nil { ... }
//	if err := store.Register[User](db); err != nil { ... }
//	if err := store.Register[UserData](db); err != nil { ... }
//
// # Reads and Writes
//
// Operations that construct records are generic over the entity type:
//
//	u, err := store.Get[User](db, uint32(7))
//	all, err := store.GetAll[User](db)
//	kids, err := store.GetChildren[Comment](db, post)
//
// # Errors
//
// The package defines domain-specific errors:
//
//   - [ErrNotFound] - no record under the requested key
//   - [ErrNotAutoIncrement] - SaveNext on a non-u32 key spec
//   - [IntegrityError] - delete refused by an Error-behavior edge
//   - [UnregisteredStoreError] - operation on an unregistered store
//   - [RegistrationConflictError] - one store name, two descriptors
//   - [KeyTypeError], [KeyDecodeError] - key codec failures
//
// # Concurrency
//
// A DB handle is safe for concurrent use. Writes serialize through bbolt's
// single writer. Auto-increment allocation takes no lock of its own: it reads
// the largest key and saves within one write transaction, so concurrent
// SaveNext calls on one store are serialized by that single writer.
package store
