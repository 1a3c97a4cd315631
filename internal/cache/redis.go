package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// compareAndDelete removes the key only while it still holds the caller's token.
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Cache struct {
	client redis.Cmdable
	closer func() error
}

func New(redisAddr string, db int) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
		DB:   db,
	})

	return &Cache{
		client: client,
		closer: client.Close,
	}
}

// NewWithClient wraps an existing client, such as a redismock client in tests.
func NewWithClient(client redis.Cmdable) *Cache {
	return &Cache{client: client}
}

// Ping checks the connection, used by the health endpoint.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// SetNX stores the value only if the key is absent. It reports whether the key was set.
func (c *Cache) SetNX(ctx context.Context, key string, value string, expiration time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, value, expiration).Result()
}

// Delete removes a key from the cache
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// CompareAndDelete deletes key if its value is still value. It reports whether a key was removed.
func (c *Cache) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	n, err := compareAndDelete.Run(ctx, c.client, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}
