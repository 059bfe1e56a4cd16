package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/commonground/newscrawler/internal/crawl"
)

const redisKeyPrefix = "crawl:session:"

// Redis stores each completed session as a JSON value with a TTL, so the
// backend can pick results up without keeping them forever.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects a client and verifies the server is reachable.
func NewRedis(ctx context.Context, addr string, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return &Redis{client: client, ttl: ttl}, nil
}

// Save writes the snapshot under crawl:session:<id>.
func (r *Redis) Save(ctx context.Context, snap crawl.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", snap.SessionID, err)
	}
	key := redisKeyPrefix + snap.SessionID
	if err := r.client.Set(ctx, key, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("store session %s: %w", snap.SessionID, err)
	}
	return nil
}

// Close shuts the client down.
func (r *Redis) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
