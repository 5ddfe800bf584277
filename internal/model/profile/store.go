package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/patrickmn/go-cache"
)

// ErrNotFound is returned by a Store when no record exists for a user.
var ErrNotFound = errors.New("profile not found")

// Store is the durable key-value collaborator that keeps profiles across
// restarts. Put must replace the whole record atomically.
type Store interface {
	Get(ctx context.Context, userID string) (*Profile, error)
	Put(ctx context.Context, userID string, p *Profile) error
	Delete(ctx context.Context, userID string) error
	Name() string
}

// Counter is implemented by stores that can report how many records they
// hold.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// MemoryStore implements Store in process memory. Records are kept in
// encoded form so callers never share state with the store.
type MemoryStore struct {
	items *cache.Cache
}

// NewMemoryStore returns an empty MemoryStore whose records never expire.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: cache.New(cache.NoExpiration, 0)}
}

// Get decodes the stored record for userID.
func (s *MemoryStore) Get(ctx context.Context, userID string) (*Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, ok := s.items.Get(userID)
	if !ok {
		return nil, ErrNotFound
	}
	return Decode(raw.([]byte))
}

// Put stores an encoded copy of p.
func (s *MemoryStore) Put(ctx context.Context, userID string, p *Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(p)
	if err != nil {
		return err
	}
	s.items.Set(userID, data, cache.NoExpiration)
	return nil
}

// Delete removes the record for userID.
func (s *MemoryStore) Delete(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.items.Delete(userID)
	return nil
}

// Count reports how many records are stored.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.items.ItemCount(), nil
}

// Name identifies the backend in stats output.
func (s *MemoryStore) Name() string { return "memory" }

// Encode serializes a profile record.
func Encode(p *Profile) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode profile %s: %w", p.UserID, err)
	}
	return data, nil
}

var (
	_ Store   = (*MemoryStore)(nil)
	_ Counter = (*MemoryStore)(nil)
)

// Decode parses a profile record and fills any missing collections.
func Decode(data []byte) (*Profile, error) {
	p := &Profile{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	p.Normalize()
	return p, nil
}
