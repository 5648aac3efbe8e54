package redisstore

import (
	"context"
	"time"

	"github.com/fundeddesk/billingkit/billing"
	"github.com/redis/go-redis/v9"
)

// CustomerCache is a read-through TTL cache in front of a durable
// customer-to-user index. Webhook bursts for the same customer (a
// subscription update followed immediately by its invoice events) hit the
// cache instead of the database.
type CustomerCache struct {
	rdb   *redis.Client
	inner billing.CustomerIndex
	keyNS string
	ttl   time.Duration
}

func NewCustomerCache(rdb *redis.Client, inner billing.CustomerIndex, keyPrefix string, ttl time.Duration) *CustomerCache {
	if keyPrefix == "" {
		keyPrefix = "billing:customer:"
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CustomerCache{rdb: rdb, inner: inner, keyNS: keyPrefix, ttl: ttl}
}

func (c *CustomerCache) key(customerID string) string { return c.keyNS + customerID }

func (c *CustomerCache) Lookup(ctx context.Context, customerID string) (string, bool, error) {
	if c.rdb != nil {
		val, err := c.rdb.Get(ctx, c.key(customerID)).Result()
		if err == nil && val != "" {
			return val, true, nil
		}
		// Cache miss or redis trouble: the durable index decides. A broken
		// cache must not break resolution.
	}

	userID, ok, err := c.inner.Lookup(ctx, customerID)
	if err != nil || !ok {
		return "", ok, err
	}
	if c.rdb != nil {
		_ = c.rdb.Set(ctx, c.key(customerID), userID, c.ttl).Err()
	}
	return userID, true, nil
}

func (c *CustomerCache) Save(ctx context.Context, customerID, userID string) error {
	if err := c.inner.Save(ctx, customerID, userID); err != nil {
		return err
	}
	if c.rdb != nil {
		_ = c.rdb.Set(ctx, c.key(customerID), userID, c.ttl).Err()
	}
	return nil
}
