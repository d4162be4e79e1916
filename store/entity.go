package store

// Entity is the base interface for all storable types.
type Entity interface {
	// StoreName returns the sub-store name for this entity type.
	// It must be unique across the database and stable between runs.
	StoreName() string

	// KeySpec returns the declared shape of this entity's key.
	KeySpec() KeySpec

	// Key returns the current key value of this instance. Its dynamic type
	// must match KeySpec.
	Key() any

	// SetKey replaces the key value of this instance. Callers pass a value
	// matching KeySpec; auto-increment saves use it to write back the
	// allocated key.
	SetKey(key any)
}

// DeletionBehavior declares what the deletion engine owes the far side of a
// relationship edge when the near side is removed.
type DeletionBehavior int

const (
	// Cascade follows the edge and deletes the far side too.
	Cascade DeletionBehavior = iota

	// Error refuses the whole delete if the far side exists.
	Error

	// BreakLink removes only the edge and preserves the far side.
	// On parent/child edges this leaves orphan children behind; it is
	// permitted but rarely what you want.
	BreakLink
)

func (b DeletionBehavior) String() string {
	switch b {
	case Cascade:
		return "cascade"
	case Error:
		return "error"
	case BreakLink:
		return "break-link"
	default:
		return "unknown"
	}
}

// Relation names a related store together with the behavior owed to it when
// the declaring side is deleted.
type Relation struct {
	// Store is the related entity's store name.
	Store string

	// OnDelete is applied to the related record when the declaring
	// record is removed.
	OnDelete DeletionBehavior
}

// SiblingDeclarer is implemented by entities with sibling stores: stores
// sharing the same key spec whose records pair up by equal key.
type SiblingDeclarer interface {
	Siblings() []Relation
}

// ChildDeclarer is implemented by entities with child stores. A child
// store's key spec must be ChildKey(parent's spec).
type ChildDeclarer interface {
	Children() []Relation
}

// PartnerDeclarer is implemented by entities that take part in free
// relations. The listed partners are recorded in the registry fingerprint
// only; CreateRelation neither checks nor applies them, and the behavior
// pair it is given is what each link carries.
type PartnerDeclarer interface {
	FreePartners() []Relation
}
