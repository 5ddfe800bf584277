package persona

import "strings"

// Store is the read-only catalogue of assistant personas.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
}

// MemoryStore is a fixed persona catalogue. Ids are matched ignoring case
// and surrounding space, so PERSONA_ID=" Sage " selects "sage".
type MemoryStore struct {
	items []Persona
	index map[string]int
}

// NewMemoryStore builds a catalogue from items. Personas without an id are
// skipped and the first persona wins when ids collide.
func NewMemoryStore(items []Persona) *MemoryStore {
	s := &MemoryStore{index: make(map[string]int, len(items))}
	for _, p := range items {
		key := normalizeID(p.ID)
		if key == "" {
			continue
		}
		if _, dup := s.index[key]; dup {
			continue
		}
		s.index[key] = len(s.items)
		s.items = append(s.items, p)
	}
	return s
}

// List returns the catalogue in declaration order. The first entry is the
// fallback persona.
func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// FindByID returns the persona whose id matches.
func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	i, ok := s.index[normalizeID(id)]
	if !ok {
		return Persona{}, false
	}
	return s.items[i], true
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Resolve returns the persona for id, or the first persona when id is
// unknown. An empty store yields a bare persona named after id.
func Resolve(s Store, id string) Persona {
	if p, ok := s.FindByID(id); ok {
		return p
	}
	if all := s.List(); len(all) > 0 {
		return all[0]
	}
	return Persona{ID: id, Name: id}
}
