package fx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Cache keeps resolved rates in Redis.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(from, to string, date time.Time) string {
	return fmt.Sprintf("fx:rate:%s:%s:%s", from, to, date.Format("2006-01-02"))
}

// Get returns a cached rate; ok is false on a miss.
func (c *Cache) Get(ctx context.Context, from, to string, date time.Time) (decimal.Decimal, bool, error) {
	if c == nil || c.client == nil {
		return decimal.Zero, false, nil
	}
	raw, err := c.client.Get(ctx, cacheKey(from, to, date)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, err
	}
	return rate, true, nil
}

// Set stores a resolved rate.
func (c *Cache) Set(ctx context.Context, from, to string, date time.Time, rate decimal.Decimal) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Set(ctx, cacheKey(from, to, date), rate.String(), c.ttl).Err()
}
