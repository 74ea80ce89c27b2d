package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varannik/dental-saas/cache"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(cache.NewFromRedis(rdb), time.Hour), mr
}

func TestCreateAndAppend(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "clinic-1", SourceReception)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	ok, err := store.Append(ctx, id, "hi", "hello")
	require.NoError(t, err)
	assert.True(t, ok)

	history, err := store.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, Interaction{Transcript: "hi", Response: "hello"}, history[0])

	count, err := store.Count(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAppendUnknownSession(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	ok, err := store.Append(ctx, "unknown-id", "x", "y")
	require.NoError(t, err)
	assert.False(t, ok)

	// The failed append must not have created a session.
	assert.False(t, mr.Exists("voice-agent:session:unknown-id"))

	history, err := store.History(ctx, "unknown-id")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestAppendAfterExpiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "clinic-1", SourceMobile)
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	ok, err := store.Append(ctx, id, "still there?", "no")
	require.NoError(t, err)
	assert.False(t, ok)

	history, err := store.History(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestAppendResetsTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "clinic-1", SourceOperatory)
	require.NoError(t, err)

	mr.FastForward(45 * time.Minute)

	ok, err := store.Append(ctx, id, "hi", "hello")
	require.NoError(t, err)
	require.True(t, ok)

	// The append pushed expiry a full TTL out again.
	mr.FastForward(45 * time.Minute)

	history, err := store.History(ctx, id)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestHistoryOrderAndImmutability(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "clinic-1", SourceReception)
	require.NoError(t, err)

	pairs := []Interaction{
		{Transcript: "first", Response: "one"},
		{Transcript: "second", Response: "two"},
		{Transcript: "third", Response: "three"},
	}
	for _, p := range pairs {
		ok, err := store.Append(ctx, id, p.Transcript, p.Response)
		require.NoError(t, err)
		require.True(t, ok)
	}

	history, err := store.History(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, pairs, history)
}

func TestConcurrentAppendsKeepInvariant(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "clinic-1", SourceReception)
	require.NoError(t, err)

	const appends = 20
	var wg sync.WaitGroup
	for i := 0; i < appends; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Append(ctx, id, "q", "a")
			assert.NoError(t, err)
			assert.True(t, ok)
		}()
	}
	wg.Wait()

	count, err := store.Count(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, appends, count)

	history, err := store.History(ctx, id)
	require.NoError(t, err)
	// interaction_count always equals the number of stored pairs, and no
	// pair was lost or overwritten by a concurrent writer.
	assert.Len(t, history, appends)
	for _, h := range history {
		assert.Equal(t, "q", h.Transcript)
		assert.Equal(t, "a", h.Response)
	}
}

func TestSourceValid(t *testing.T) {
	assert.True(t, SourceReception.Valid())
	assert.True(t, SourceOperatory.Valid())
	assert.True(t, SourceMobile.Valid())
	assert.False(t, Source("desk").Valid())
}
