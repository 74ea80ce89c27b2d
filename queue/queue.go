// Package queue implements the durable task queue on Redis Streams with
// consumer-group, at-least-once delivery semantics.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/varannik/dental-saas/cache"
	"github.com/varannik/dental-saas/config"
)

// TypeVoiceProcessing is the task type for deferred voice work.
const TypeVoiceProcessing = "voice_processing"

// Status of a task through its lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Task is one unit of deferred work.
type Task struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Status    Status         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	CreatedBy string         `json:"created_by"`

	// StreamID is the Redis stream entry id backing this task. It is
	// what gets acknowledged, not the task id.
	StreamID string `json:"-"`

	// Deliveries counts how many times this entry has been handed to a
	// consumer. Populated on reclaim only.
	Deliveries int64 `json:"-"`
}

// Queue is a durable, ordered, multi-consumer work queue.
type Queue struct {
	cache       *cache.Client
	stream      string
	deadStream  string
	group       string
	block       time.Duration
	minIdle     time.Duration
	maxAttempts int
	logger      *slog.Logger
}

// New creates a queue from config.
func New(c *cache.Client, cfg *config.Config, logger *slog.Logger) *Queue {
	return &Queue{
		cache:       c,
		stream:      cfg.QueueStream,
		deadStream:  cfg.QueueStream + ":deadletter",
		group:       cfg.QueueGroup,
		block:       cfg.QueueBlock,
		minIdle:     cfg.QueueMinIdle,
		maxAttempts: cfg.QueueMaxAttempts,
		logger:      logger.With("component", "queue"),
	}
}

// Enqueue appends a task to the stream and returns its id.
func (q *Queue) Enqueue(ctx context.Context, taskType string, payload map[string]any, actor string) (string, error) {
	taskID := uuid.NewString()

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("could not encode task payload: %w", err)
	}

	err = q.cache.Redis().XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{
			"id":         taskID,
			"type":       taskType,
			"payload":    string(data),
			"status":     string(StatusPending),
			"created_at": time.Now().UTC().Format(time.RFC3339),
			"created_by": actor,
		},
	}).Err()
	if err != nil {
		return "", fmt.Errorf("could not enqueue task: %w", err)
	}

	return taskID, nil
}

// EnsureGroup creates the consumer group, creating the stream if needed.
// Creating a group that already exists is not an error.
func (q *Queue) EnsureGroup(ctx context.Context) error {
	err := q.cache.Redis().XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("could not create consumer group %s: %w", q.group, err)
	}
	return nil
}

// Read blocks for up to the configured wait and hands at most one unseen
// task to the named consumer. Returns (nil, nil) when nothing arrived.
func (q *Queue) Read(ctx context.Context, consumer string) (*Task, error) {
	streams, err := q.cache.Redis().XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: consumer,
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    q.block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read from queue: %w", err)
	}

	for _, s := range streams {
		for _, msg := range s.Messages {
			return taskFromMessage(msg)
		}
	}
	return nil, nil
}

// Ack marks a task as fully processed so it is no longer pending.
func (q *Queue) Ack(ctx context.Context, task *Task) error {
	if err := q.cache.Redis().XAck(ctx, q.stream, q.group, task.StreamID).Err(); err != nil {
		return fmt.Errorf("could not ack task %s: %w", task.ID, err)
	}
	return nil
}

// Reclaim takes over one pending entry whose claim has sat idle past the
// reclaim timeout, typically because its worker crashed before
// acknowledging. Entries that have exhausted the delivery budget are
// moved to the dead-letter stream instead of being redelivered.
// Returns (nil, nil) when there is nothing to reclaim.
func (q *Queue) Reclaim(ctx context.Context, consumer string) (*Task, error) {
	rdb := q.cache.Redis()

	pending, err := rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: q.stream,
		Group:  q.group,
		Start:  "-",
		End:    "+",
		Count:  16,
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("could not inspect pending entries: %w", err)
	}

	for _, p := range pending {
		if p.Idle < q.minIdle {
			continue
		}

		if p.RetryCount >= int64(q.maxAttempts) {
			if err := q.deadLetter(ctx, p); err != nil {
				return nil, err
			}
			continue
		}

		msgs, err := rdb.XClaim(ctx, &redis.XClaimArgs{
			Stream:   q.stream,
			Group:    q.group,
			Consumer: consumer,
			MinIdle:  q.minIdle,
			Messages: []string{p.ID},
		}).Result()
		if err != nil && err != redis.Nil {
			return nil, fmt.Errorf("could not claim entry %s: %w", p.ID, err)
		}
		if len(msgs) == 0 {
			// Another consumer got there first.
			continue
		}

		task, err := taskFromMessage(msgs[0])
		if err != nil {
			return nil, err
		}
		task.Deliveries = p.RetryCount
		return task, nil
	}

	return nil, nil
}

// deadLetter copies an exhausted entry onto the dead-letter stream and
// acknowledges the original so it stops circulating.
func (q *Queue) deadLetter(ctx context.Context, p redis.XPendingExt) error {
	rdb := q.cache.Redis()

	entries, err := rdb.XRangeN(ctx, q.stream, p.ID, p.ID, 1).Result()
	if err != nil {
		return fmt.Errorf("could not load entry %s for dead-lettering: %w", p.ID, err)
	}

	if len(entries) > 0 {
		values := make(map[string]any, len(entries[0].Values)+2)
		for k, v := range entries[0].Values {
			values[k] = v
		}
		values["status"] = string(StatusFailed)
		values["deliveries"] = p.RetryCount
		if err := rdb.XAdd(ctx, &redis.XAddArgs{Stream: q.deadStream, Values: values}).Err(); err != nil {
			return fmt.Errorf("could not dead-letter entry %s: %w", p.ID, err)
		}
	}

	if err := rdb.XAck(ctx, q.stream, q.group, p.ID).Err(); err != nil {
		return fmt.Errorf("could not ack dead-lettered entry %s: %w", p.ID, err)
	}

	q.logger.Warn("task moved to dead-letter stream", "entry_id", p.ID, "deliveries", p.RetryCount)
	return nil
}

// DeadLetters returns up to count entries from the dead-letter stream.
func (q *Queue) DeadLetters(ctx context.Context, count int64) ([]*Task, error) {
	entries, err := q.cache.Redis().XRangeN(ctx, q.deadStream, "-", "+", count).Result()
	if err != nil {
		return nil, fmt.Errorf("could not read dead-letter stream: %w", err)
	}

	tasks := make([]*Task, 0, len(entries))
	for _, e := range entries {
		task, err := taskFromMessage(e)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func taskFromMessage(msg redis.XMessage) (*Task, error) {
	task := &Task{
		StreamID:  msg.ID,
		ID:        str(msg.Values, "id"),
		Type:      str(msg.Values, "type"),
		Status:    Status(str(msg.Values, "status")),
		CreatedBy: str(msg.Values, "created_by"),
	}

	if raw := str(msg.Values, "payload"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &task.Payload); err != nil {
			return nil, fmt.Errorf("corrupt payload on entry %s: %w", msg.ID, err)
		}
	}

	if raw := str(msg.Values, "created_at"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt created_at on entry %s: %w", msg.ID, err)
		}
		task.CreatedAt = ts
	}

	return task, nil
}

func str(values map[string]any, key string) string {
	if v, ok := values[key].(string); ok {
		return v
	}
	return ""
}
