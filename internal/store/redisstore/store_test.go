package redisstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/rapport/backend/internal/model/profile"
)

func newTestStore(t *testing.T, cfg Config) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := New(client, cfg)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestPutGetRoundTrip(t *testing.T) {
	s, mr := newTestStore(t, Config{})
	ctx := context.Background()

	p := profile.New("u1", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	p.ConversationCount = 3
	p.PreferredTopics = []string{"game_request"}
	require.NoError(t, s.Put(ctx, "u1", p))

	assert.True(t, mr.Exists(DefaultPrefix+":u1"))

	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	if diff := cmp.Diff(p, got); diff != "" {
		t.Fatalf("profile mismatch (-want +got):\n%s", diff)
	}
}

func TestGetMissingIsNotFound(t *testing.T) {
	s, _ := newTestStore(t, Config{Prefix: "test"})

	_, err := s.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, profile.ErrNotFound)
}

func TestDelete(t *testing.T) {
	s, mr := newTestStore(t, Config{Prefix: "test"})
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "u1", profile.New("u1", time.Now())))
	require.NoError(t, s.Delete(ctx, "u1"))
	assert.False(t, mr.Exists("test:u1"))

	_, err := s.Get(ctx, "u1")
	assert.ErrorIs(t, err, profile.ErrNotFound)
	assert.NoError(t, s.Delete(ctx, "u1"))
}

func TestTTLExpiresRecords(t *testing.T) {
	s, mr := newTestStore(t, Config{TTL: time.Hour})
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "u1", profile.New("u1", time.Now())))
	mr.FastForward(2 * time.Hour)

	_, err := s.Get(ctx, "u1")
	assert.ErrorIs(t, err, profile.ErrNotFound)
}

func TestCountOnlySeesPrefix(t *testing.T) {
	s, mr := newTestStore(t, Config{Prefix: "test"})
	ctx := context.Background()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	for i := 0; i < 250; i++ {
		id := fmt.Sprintf("u%03d", i)
		require.NoError(t, s.Put(ctx, id, profile.New(id, time.Now())))
	}
	require.NoError(t, mr.Set("other:u1", "{}"))

	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 250, n)
}

func TestCorruptRecordIsAnError(t *testing.T) {
	s, mr := newTestStore(t, Config{})
	require.NoError(t, mr.Set(DefaultPrefix+":u1", "{not json"))

	_, err := s.Get(context.Background(), "u1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, profile.ErrNotFound)
}

func TestServerDownIsAnError(t *testing.T) {
	s, mr := newTestStore(t, Config{})
	mr.Close()

	_, err := s.Get(context.Background(), "u1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, profile.ErrNotFound)
}

func TestOpenRejectsBadURL(t *testing.T) {
	_, err := Open(context.Background(), Config{URL: "not a url"})
	assert.Error(t, err)
}

func TestOpenPings(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := Open(context.Background(), Config{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "redis", s.Name())
}
