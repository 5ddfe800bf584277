package persona

import "testing"

func TestResolveFallsBackToFirstPersona(t *testing.T) {
	store := NewMemoryStore(Seed())

	if got := Resolve(store, "sage"); got.Name != "Sage" {
		t.Fatalf("expected Sage, got %s", got.Name)
	}
	if got := Resolve(store, "missing"); got.ID != DefaultID {
		t.Fatalf("expected fallback to %s, got %s", DefaultID, got.ID)
	}
}

func TestResolveEmptyStore(t *testing.T) {
	got := Resolve(NewMemoryStore(nil), "ghost")
	if got.ID != "ghost" || got.Name != "ghost" {
		t.Fatalf("unexpected persona %+v", got)
	}
}

func TestListReturnsCopy(t *testing.T) {
	store := NewMemoryStore(Seed())
	list := store.List()
	list[0].Name = "changed"

	if p, _ := store.FindByID(DefaultID); p.Name != "Aria" {
		t.Fatalf("store mutated through List result: %s", p.Name)
	}
}

func TestFindByIDIgnoresCaseAndSpace(t *testing.T) {
	store := NewMemoryStore(Seed())

	p, ok := store.FindByID("  SAGE ")
	if !ok || p.ID != "sage" {
		t.Fatalf("expected sage, got %+v (found=%v)", p, ok)
	}
	if _, ok := store.FindByID(""); ok {
		t.Fatal("empty id must not match")
	}
}

func TestNewMemoryStoreSkipsBlankAndDuplicateIDs(t *testing.T) {
	store := NewMemoryStore([]Persona{
		{ID: "aria", Name: "Aria"},
		{ID: "", Name: "Nameless"},
		{ID: "ARIA", Name: "Impostor"},
		{ID: "sage", Name: "Sage"},
	})

	list := store.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 personas, got %d", len(list))
	}
	if p, _ := store.FindByID("aria"); p.Name != "Aria" {
		t.Fatalf("first declaration should win, got %s", p.Name)
	}
}
