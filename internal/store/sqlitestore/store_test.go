package sqlitestore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/rapport/backend/internal/model/profile"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "profiles.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestPutGetRoundTrip(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	p := profile.New("u1", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	p.ConversationCount = 2
	p.PreferredTopics = []string{"media_request"}
	require.NoError(t, s.Put(ctx, "u1", p))

	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	if diff := cmp.Diff(p, got); diff != "" {
		t.Fatalf("profile mismatch (-want +got):\n%s", diff)
	}
}

func TestPutReplacesRecord(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	p := profile.New("u1", time.Now().UTC())
	require.NoError(t, s.Put(ctx, "u1", p))
	p.ConversationCount = 9
	require.NoError(t, s.Put(ctx, "u1", p))

	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 9, got.ConversationCount)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetMissingIsNotFound(t *testing.T) {
	s, _ := openTemp(t)

	_, err := s.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, profile.ErrNotFound)
}

func TestDelete(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "u1", profile.New("u1", time.Now().UTC())))
	require.NoError(t, s.Delete(ctx, "u1"))

	_, err := s.Get(ctx, "u1")
	assert.ErrorIs(t, err, profile.ErrNotFound)
	assert.NoError(t, s.Delete(ctx, "u1"))
}

func TestRecordsSurviveReopen(t *testing.T) {
	s, path := openTemp(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "u1", profile.New("u1", time.Now().UTC())))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "sqlite", reopened.Name())
}

func TestConcurrentPuts(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("u%02d", i)
			assert.NoError(t, s.Put(ctx, id, profile.New(id, time.Now().UTC())))
		}(i)
	}
	wg.Wait()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
}

func TestCanceledContext(t *testing.T) {
	s, _ := openTemp(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Get(ctx, "u1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, profile.ErrNotFound)
}
