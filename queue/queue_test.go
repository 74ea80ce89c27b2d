package queue

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varannik/dental-saas/cache"
	"github.com/varannik/dental-saas/config"
)

func testConfig() *config.Config {
	return &config.Config{
		QueueStream:      "voice_processing_queue",
		QueueGroup:       "voice_processors",
		QueueBlock:       50 * time.Millisecond,
		QueueMinIdle:     30 * time.Second,
		QueueMaxAttempts: 3,
	}
}

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cache.NewFromRedis(rdb), testConfig(), logger), mr
}

func TestEnqueueRead(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.EnsureGroup(ctx))

	id, err := q.Enqueue(ctx, "voice_processing", map[string]any{"recording": "r-1"}, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	task, err := q.Read(ctx, "worker-a")
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, id, task.ID)
	assert.Equal(t, "voice_processing", task.Type)
	assert.Equal(t, StatusPending, task.Status)
	assert.Equal(t, "alice", task.CreatedBy)
	assert.Equal(t, map[string]any{"recording": "r-1"}, task.Payload)
	assert.NotEmpty(t, task.StreamID)
	assert.False(t, task.CreatedAt.IsZero())
}

func TestEnsureGroupIdempotent(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.EnsureGroup(ctx))
	require.NoError(t, q.EnsureGroup(ctx))
}

func TestReadEmptyQueue(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.EnsureGroup(ctx))

	task, err := q.Read(ctx, "worker-a")
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestSingleDeliveryAmongRacingConsumers(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.EnsureGroup(ctx))

	id, err := q.Enqueue(ctx, "voice_processing", map[string]any{"n": "1"}, "alice")
	require.NoError(t, err)

	var mu sync.Mutex
	var delivered []*Task
	var wg sync.WaitGroup
	for _, consumer := range []string{"worker-a", "worker-b", "worker-c"} {
		wg.Add(1)
		go func(consumer string) {
			defer wg.Done()
			task, err := q.Read(ctx, consumer)
			assert.NoError(t, err)
			if task != nil {
				mu.Lock()
				delivered = append(delivered, task)
				mu.Unlock()
			}
		}(consumer)
	}
	wg.Wait()

	// Exactly one consumer observed the task before acknowledgment.
	require.Len(t, delivered, 1)
	assert.Equal(t, id, delivered[0].ID)
}

func TestReclaimAfterIdleTimeout(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.EnsureGroup(ctx))

	id, err := q.Enqueue(ctx, "voice_processing", map[string]any{}, "alice")
	require.NoError(t, err)

	// worker-a reads but crashes before acking.
	task, err := q.Read(ctx, "worker-a")
	require.NoError(t, err)
	require.NotNil(t, task)

	// Before the reclaim timeout the claim holds.
	got, err := q.Reclaim(ctx, "worker-b")
	require.NoError(t, err)
	assert.Nil(t, got)

	mr.SetTime(time.Now().Add(time.Minute))

	got, err = q.Reclaim(ctx, "worker-b")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, task.StreamID, got.StreamID)
}

func TestAckStopsRedelivery(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.EnsureGroup(ctx))

	_, err := q.Enqueue(ctx, "voice_processing", map[string]any{}, "alice")
	require.NoError(t, err)

	task, err := q.Read(ctx, "worker-a")
	require.NoError(t, err)
	require.NotNil(t, task)
	require.NoError(t, q.Ack(ctx, task))

	mr.SetTime(time.Now().Add(time.Minute))

	got, err := q.Reclaim(ctx, "worker-b")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeadLetterAfterMaxAttempts(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.EnsureGroup(ctx))

	id, err := q.Enqueue(ctx, "voice_processing", map[string]any{"poison": "true"}, "alice")
	require.NoError(t, err)

	task, err := q.Read(ctx, "worker-a")
	require.NoError(t, err)
	require.NotNil(t, task)

	// Fail it around the delivery budget: each reclaim is a redelivery.
	now := time.Now()
	for i := 0; i < 3; i++ {
		now = now.Add(time.Minute)
		mr.SetTime(now)
		got, err := q.Reclaim(ctx, "worker-b")
		require.NoError(t, err)
		if got == nil {
			break
		}
		assert.Equal(t, id, got.ID)
	}

	now = now.Add(time.Minute)
	mr.SetTime(now)

	// The next reclaim pass dead-letters instead of redelivering.
	got, err := q.Reclaim(ctx, "worker-b")
	require.NoError(t, err)
	assert.Nil(t, got)

	dead, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, id, dead[0].ID)
	assert.Equal(t, StatusFailed, dead[0].Status)

	// And it is gone from the live pending list for good.
	now = now.Add(time.Minute)
	mr.SetTime(now)
	got, err = q.Reclaim(ctx, "worker-c")
	require.NoError(t, err)
	assert.Nil(t, got)
}
