package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is the Redis client
type Redis struct{ c *redis.Client }

// NewRedis creates a new Redis client
func NewRedis(addr string, db int) *Redis {
	return &Redis{c: redis.NewClient(&redis.Options{Addr: addr, DB: db})}
}

// Close closes the Redis client
func (r *Redis) Close() error { return r.c.Close() }

// Ping checks connectivity to the Redis server
func (r *Redis) Ping(ctx context.Context) error {
	return r.c.Ping(ctx).Err()
}

// SetDelivered records the delivery timestamp for a post id
func (r *Redis) SetDelivered(ctx context.Context, postID string, deliveredAt time.Time, ttl time.Duration) error {
	return r.c.Set(ctx, "delivered:"+postID, deliveredAt.UTC().Format(time.RFC3339Nano), ttl).Err()
}
