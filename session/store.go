// Package session implements the TTL-scoped conversation store backed
// by Redis hashes.
package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/varannik/dental-saas/cache"
)

// Source identifies where a voice interaction originated.
type Source string

const (
	SourceReception Source = "reception"
	SourceOperatory Source = "operatory"
	SourceMobile    Source = "mobile"
)

// Valid reports whether the source is one of the known origins.
func (s Source) Valid() bool {
	switch s {
	case SourceReception, SourceOperatory, SourceMobile:
		return true
	}
	return false
}

// Interaction is one transcript/response pair in a session's history.
type Interaction struct {
	Transcript string `json:"transcript"`
	Response   string `json:"response"`
}

// appendScript performs the whole read-increment-write of an interaction
// as one atomic unit, so concurrent appends on the same session cannot
// interleave. Returns 0 when the session is missing or expired.
var appendScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
local count = redis.call("HINCRBY", KEYS[1], "interaction_count", 1)
local idx = count - 1
redis.call("HSET", KEYS[1],
  "transcript:" .. idx, ARGV[1],
  "response:" .. idx, ARGV[2],
  "last_interaction", ARGV[3])
redis.call("EXPIRE", KEYS[1], ARGV[4])
return count
`)

// Store manages voice assistant sessions.
type Store struct {
	cache *cache.Client
	ttl   time.Duration
}

// NewStore creates a session store with the given idle TTL.
func NewStore(c *cache.Client, ttl time.Duration) *Store {
	return &Store{cache: c, ttl: ttl}
}

func (s *Store) key(sessionID string) string {
	return s.cache.Key("session", sessionID)
}

// Create starts a new session and returns its id. The session expires
// after the idle TTL unless appended to.
func (s *Store) Create(ctx context.Context, clinicID string, source Source) (string, error) {
	sessionID := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339)

	key := s.key(sessionID)
	rdb := s.cache.Redis()

	pipe := rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"clinic_id":         clinicID,
		"source":            string(source),
		"created_at":        now,
		"last_interaction":  now,
		"interaction_count": 0,
	})
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("could not create session: %w", err)
	}

	return sessionID, nil
}

// Append records one transcript/response pair and resets the session TTL.
// It returns false when the session does not exist or has expired; the
// session is never created as a side effect.
func (s *Store) Append(ctx context.Context, sessionID, transcript, response string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	ttlSeconds := int(s.ttl.Seconds())

	n, err := appendScript.Run(ctx, s.cache.Redis(),
		[]string{s.key(sessionID)},
		transcript, response, now, ttlSeconds,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("could not append to session %s: %w", sessionID, err)
	}
	return n > 0, nil
}

// History returns the ordered interaction log for a session. Unknown or
// expired sessions yield an empty history, not an error.
func (s *Store) History(ctx context.Context, sessionID string) ([]Interaction, error) {
	data, err := s.cache.Redis().HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("could not read session %s: %w", sessionID, err)
	}
	if len(data) == 0 {
		return []Interaction{}, nil
	}

	count, err := strconv.Atoi(data["interaction_count"])
	if err != nil {
		return nil, fmt.Errorf("corrupt interaction_count for session %s: %w", sessionID, err)
	}

	history := make([]Interaction, 0, count)
	for i := 0; i < count; i++ {
		history = append(history, Interaction{
			Transcript: data[fmt.Sprintf("transcript:%d", i)],
			Response:   data[fmt.Sprintf("response:%d", i)],
		})
	}
	return history, nil
}

// Count returns the interaction count for a session, 0 if missing.
func (s *Store) Count(ctx context.Context, sessionID string) (int, error) {
	v, err := s.cache.Redis().HGet(ctx, s.key(sessionID), "interaction_count").Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("could not read session %s: %w", sessionID, err)
	}
	return strconv.Atoi(v)
}
