package store_test

import (
	"errors"
	"testing"

	"github.com/jacentio/warren/store"
)

func TestCreateRelationSymmetry(t *testing.T) {
	db := newTestDB(t)

	item := &Item{ID: 1, Name: "sword"}
	tag := &Tag{ID: 2, Label: "weapon"}
	for _, e := range []store.Entity{item, tag} {
		if err := store.Save(db, e); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if err := store.CreateRelation(db, item, tag, store.BreakLink, store.BreakLink, ""); err != nil {
		t.Fatalf("create relation: %v", err)
	}

	tags, err := store.GetRelated[Tag](db, item)
	if err != nil {
		t.Fatalf("related tags: %v", err)
	}
	if len(tags) != 1 || tags[0].ID != 2 {
		t.Errorf("expected [tag 2], got %+v", tags)
	}

	items, err := store.GetRelated[Item](db, tag)
	if err != nil {
		t.Fatalf("related items: %v", err)
	}
	if len(items) != 1 || items[0].ID != 1 {
		t.Errorf("expected [item 1], got %+v", items)
	}
}

func TestRemoveRelation(t *testing.T) {
	db := newTestDB(t)

	item := &Item{ID: 1}
	tag := &Tag{ID: 2}
	for _, e := range []store.Entity{item, tag} {
		if err := store.Save(db, e); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if err := store.CreateRelation(db, item, tag, store.BreakLink, store.BreakLink, ""); err != nil {
		t.Fatalf("create relation: %v", err)
	}
	if err := store.RemoveRelation(db, item, tag); err != nil {
		t.Fatalf("remove relation: %v", err)
	}

	tags, err := store.GetRelated[Tag](db, item)
	if err != nil {
		t.Fatalf("related tags: %v", err)
	}
	if len(tags) != 0 {
		t.Errorf("expected no related tags, got %+v", tags)
	}
	items, err := store.GetRelated[Item](db, tag)
	if err != nil {
		t.Fatalf("related items: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected no related items, got %+v", items)
	}
}

func TestRemoveRelationKey(t *testing.T) {
	db := newTestDB(t)

	item := &Item{ID: 1}
	tag := &Tag{ID: 2}
	for _, e := range []store.Entity{item, tag} {
		if err := store.Save(db, e); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if err := store.CreateRelation(db, item, tag, store.BreakLink, store.BreakLink, "fancy"); err != nil {
		t.Fatalf("create relation: %v", err)
	}
	if err := store.RemoveRelationKey[Tag](db, item, uint32(2)); err != nil {
		t.Fatalf("remove relation by key: %v", err)
	}

	tags, err := store.GetRelated[Tag](db, item)
	if err != nil {
		t.Fatalf("related tags: %v", err)
	}
	if len(tags) != 0 {
		t.Errorf("expected no related tags, got %+v", tags)
	}
}

func TestNamedRelations(t *testing.T) {
	db := newTestDB(t)

	item := &Item{ID: 1}
	main := &Tag{ID: 10, Label: "main"}
	secondary := &Tag{ID: 20, Label: "secondary"}
	for _, e := range []store.Entity{item, main, secondary} {
		if err := store.Save(db, e); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if err := store.CreateRelation(db, item, main, store.BreakLink, store.BreakLink, "main"); err != nil {
		t.Fatalf("create relation: %v", err)
	}
	if err := store.CreateRelation(db, item, secondary, store.BreakLink, store.BreakLink, "secondary"); err != nil {
		t.Fatalf("create relation: %v", err)
	}

	got, err := store.GetRelatedNamed[Tag](db, item, "main")
	if err != nil {
		t.Fatalf("related named: %v", err)
	}
	if len(got) != 1 || got[0].ID != 10 {
		t.Errorf("expected [tag 10], got %+v", got)
	}

	all, err := store.GetRelated[Tag](db, item)
	if err != nil {
		t.Fatalf("related: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 related tags across names, got %d", len(all))
	}

	one, err := store.GetSingleRelatedNamed[Tag](db, item, "secondary")
	if err != nil {
		t.Fatalf("single related named: %v", err)
	}
	if one.ID != 20 {
		t.Errorf("expected tag 20, got %d", one.ID)
	}
}

func TestGetSingleRelatedMissing(t *testing.T) {
	db := newTestDB(t)

	item := &Item{ID: 1}
	if err := store.Save(db, item); err != nil {
		t.Fatalf("save: %v", err)
	}

	_, err := store.GetSingleRelated[Tag](db, item)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRelatedFiltersToExistingRecords(t *testing.T) {
	db := newTestDB(t)

	item := &Item{ID: 1}
	if err := store.Save(db, item); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Linking does not require the far record to exist yet.
	ghost := &Tag{ID: 99}
	if err := store.CreateRelation(db, item, ghost, store.BreakLink, store.BreakLink, ""); err != nil {
		t.Fatalf("create relation: %v", err)
	}

	tags, err := store.GetRelated[Tag](db, item)
	if err != nil {
		t.Fatalf("related: %v", err)
	}
	if len(tags) != 0 {
		t.Errorf("expected no existing related tags, got %+v", tags)
	}

	// Once the far record is saved the link is visible.
	if err := store.Save(db, ghost); err != nil {
		t.Fatalf("save: %v", err)
	}
	tags, err = store.GetRelated[Tag](db, item)
	if err != nil {
		t.Fatalf("related: %v", err)
	}
	if len(tags) != 1 || tags[0].ID != 99 {
		t.Errorf("expected [tag 99], got %+v", tags)
	}
}

func TestCreateRelationReplacesSameKeyedEdge(t *testing.T) {
	db := newTestDB(t)

	item := &Item{ID: 1}
	tag := &Tag{ID: 2}
	for _, e := range []store.Entity{item, tag} {
		if err := store.Save(db, e); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if err := store.CreateRelation(db, item, tag, store.Error, store.Error, ""); err != nil {
		t.Fatalf("create relation: %v", err)
	}
	// Re-linking with new behaviors replaces the edge pair in place.
	if err := store.CreateRelation(db, item, tag, store.BreakLink, store.BreakLink, ""); err != nil {
		t.Fatalf("re-create relation: %v", err)
	}

	tags, err := store.GetRelated[Tag](db, item)
	if err != nil {
		t.Fatalf("related: %v", err)
	}
	if len(tags) != 1 {
		t.Fatalf("expected a single edge after replace, got %d", len(tags))
	}

	// The replaced behavior pair governs deletes: break-link, not error.
	if err := store.Remove[Item](db, uint32(1)); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := store.Get[Tag](db, uint32(2)); err != nil {
		t.Errorf("expected tag preserved, got %v", err)
	}
}
