// Dumps live voice-agent state from Redis: sessions, queue depth and
// dead letters. Read-only; safe against a running service.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"sort"

	"github.com/varannik/dental-saas/cache"
	"github.com/varannik/dental-saas/config"
	"github.com/varannik/dental-saas/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Fatal error loading config: %v", err)
	}

	ctx := context.Background()
	c, err := cache.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer func() { _ = c.Close() }()

	rdb := c.Redis()

	fmt.Println("--- Sessions ---")
	keys, err := rdb.Keys(ctx, c.Key("session", "*")).Result()
	if err != nil {
		log.Fatalf("Failed to list session keys: %v", err)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fields, err := rdb.HGetAll(ctx, key).Result()
		if err != nil {
			log.Printf("Failed to read %s: %v", key, err)
			continue
		}
		ttl, _ := rdb.TTL(ctx, key).Result()
		fmt.Printf("\n%s (ttl %s)\n", key, ttl)
		fmt.Printf("  clinic_id: %s  source: %s  interactions: %s\n",
			fields["clinic_id"], fields["source"], fields["interaction_count"])
	}
	if len(keys) == 0 {
		fmt.Println("(none)")
	}

	fmt.Println("\n--- Queue ---")
	depth, err := rdb.XLen(ctx, cfg.QueueStream).Result()
	if err != nil {
		log.Printf("Failed to read stream length: %v", err)
	}
	fmt.Printf("%s: %d entries\n", cfg.QueueStream, depth)

	pending, err := rdb.XPending(ctx, cfg.QueueStream, cfg.QueueGroup).Result()
	if err == nil {
		fmt.Printf("pending in group %s: %d\n", cfg.QueueGroup, pending.Count)
	}

	fmt.Println("\n--- Dead letters ---")
	q := queue.New(c, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	dead, err := q.DeadLetters(ctx, 50)
	if err != nil {
		log.Fatalf("Failed to read dead letters: %v", err)
	}
	for _, task := range dead {
		fmt.Printf("%s type=%s created_by=%s created_at=%s\n",
			task.ID, task.Type, task.CreatedBy, task.CreatedAt)
	}
	if len(dead) == 0 {
		fmt.Println("(none)")
	}
}
