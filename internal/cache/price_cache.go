package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/p2hgit/p2h_api/internal/models"
)

// kvStore is implemented by RedisClient.
type kvStore interface {
	SetMany(ctx context.Context, values map[string]string, ttl time.Duration) error
	MGet(ctx context.Context, keys ...string) ([]interface{}, error)
	Delete(ctx context.Context, keys ...string) error
}

// PriceCache keeps the last price rows successfully read from the database so
// quotes survive a short database outage.
type PriceCache struct {
	redis kvStore
	ttl   time.Duration
}

// NewPriceCache creates a new PriceCache.
func NewPriceCache(redis *RedisClient, ttl time.Duration) *PriceCache {
	return &PriceCache{redis: redis, ttl: ttl}
}

// key returns the Redis key for one backend price ID.
// Format: price:lkg:{serviceId}
func (c *PriceCache) key(serviceID string) string {
	return fmt.Sprintf("price:lkg:%s", serviceID)
}

// Store writes each record under its own key.
func (c *PriceCache) Store(ctx context.Context, records []models.PriceRecord) error {
	values := make(map[string]string, len(records))
	for i := range records {
		data, err := json.Marshal(&records[i])
		if err != nil {
			return fmt.Errorf("failed to marshal price record: %w", err)
		}
		values[c.key(records[i].ServiceID)] = string(data)
	}
	if err := c.redis.SetMany(ctx, values, c.ttl); err != nil {
		return fmt.Errorf("failed to cache prices: %w", err)
	}
	return nil
}

// Load returns cached rows for the given IDs. IDs with no cached row are
// absent from the result.
func (c *PriceCache) Load(ctx context.Context, serviceIDs []string) ([]models.PriceRecord, error) {
	if len(serviceIDs) == 0 {
		return nil, nil
	}
	keys := make([]string, len(serviceIDs))
	for i, id := range serviceIDs {
		keys[i] = c.key(id)
	}

	vals, err := c.redis.MGet(ctx, keys...)
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read cached prices: %w", err)
	}

	out := make([]models.PriceRecord, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec models.PriceRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Invalidate drops cached rows, used after an admin price change.
func (c *PriceCache) Invalidate(ctx context.Context, serviceIDs ...string) error {
	if len(serviceIDs) == 0 {
		return nil
	}
	keys := make([]string, len(serviceIDs))
	for i, id := range serviceIDs {
		keys[i] = c.key(id)
	}
	return c.redis.Delete(ctx, keys...)
}
