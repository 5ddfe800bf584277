// Package redisstore keeps user profiles in Redis, one JSON document per
// user under a shared key prefix.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/rapport/backend/internal/model/profile"
)

// DefaultPrefix namespaces profile keys.
const DefaultPrefix = "rapport"

// Config configures the Redis store.
type Config struct {
	URL    string
	Prefix string
	// TTL expires idle profiles. Zero keeps them forever.
	TTL time.Duration
}

// Store implements profile.Store on Redis.
type Store struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// Open connects to cfg.URL and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return New(client, cfg), nil
}

// New wraps an existing client.
func New(client redis.UniversalClient, cfg Config) *Store {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix, ttl: cfg.TTL}
}

func (s *Store) key(userID string) string {
	return s.prefix + ":" + userID
}

// Get loads the profile for userID.
func (s *Store) Get(ctx context.Context, userID string) (*profile.Profile, error) {
	data, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, profile.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", userID, err)
	}
	return profile.Decode(data)
}

// Put replaces the profile for userID. A single SET is atomic.
func (s *Store) Put(ctx context.Context, userID string, p *profile.Profile) error {
	data, err := profile.Encode(p)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(userID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", userID, err)
	}
	return nil
}

// Delete removes the profile for userID. Deleting a missing record is not
// an error.
func (s *Store) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", userID, err)
	}
	return nil
}

// scanBatch is the COUNT hint passed to SCAN.
const scanBatch = 100

// Count reports how many profiles live under the prefix. It walks the
// keyspace with SCAN, so the result is approximate while writes are in flight.
func (s *Store) Count(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+":*", scanBatch).Result()
		if err != nil {
			return 0, fmt.Errorf("redis scan: %w", err)
		}
		total += len(keys)
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}

// Name identifies the backend.
func (s *Store) Name() string { return "redis" }

// Close releases the client.
func (s *Store) Close() error { return s.client.Close() }

var (
	_ profile.Store   = (*Store)(nil)
	_ profile.Counter = (*Store)(nil)
)
