package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pulsenotify/orchestrator/internal/port"
	"github.com/pulsenotify/orchestrator/pkg/config"
)

const (
	idempotencyKeyPrefix = "idempotency:"
	statusKeyPrefix      = "notification:status:"
	snapshotTTL          = 24 * time.Hour
)

// Cache backs both the idempotency fast path and the status snapshot store
// with a single client. Both key families expire after 24 hours, matching
// the deduplication window.
type Cache struct {
	client *redis.Client
}

var (
	_ port.IdempotencyStore = (*Cache)(nil)
	_ port.StatusStore      = (*Cache)(nil)
)

func NewCache(ctx context.Context, cfg config.RedisConfig) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Cache{client: client}, nil
}

// NewCacheWithClient wraps an existing client. Used by tests.
func NewCacheWithClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, idempotencyKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *Cache) SetNX(ctx context.Context, key, correlationID string) (bool, error) {
	return c.client.SetNX(ctx, idempotencyKeyPrefix+key, correlationID, snapshotTTL).Result()
}

func (c *Cache) SetStatus(ctx context.Context, correlationID string, snapshot port.StatusSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, statusKeyPrefix+correlationID, data, snapshotTTL).Err()
}

func (c *Cache) GetStatus(ctx context.Context, correlationID string) (*port.StatusSnapshot, error) {
	data, err := c.client.Get(ctx, statusKeyPrefix+correlationID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snapshot port.StatusSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}
