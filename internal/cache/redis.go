package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// setIfCurrent writes KEYS[2] only while the generation in KEYS[1] still
// equals ARGV[1].
var setIfCurrent = redis.NewScript(`
if (redis.call("GET", KEYS[1]) or "0") ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`)

// RedisCache is a ViewCache shared between processes through Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// DialRedis connects to addr and checks the server answers.
func DialRedis(ctx context.Context, addr string, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedisCache(client, ttl), nil
}

func (c *RedisCache) Generation(ctx context.Context, userID string) (uint64, error) {
	gen, err := c.client.Get(ctx, GenerationKey(userID)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get view generation: %w", err)
	}
	return gen, nil
}

func (c *RedisCache) Get(ctx context.Context, userID, path string) ([]byte, bool, error) {
	view, err := c.client.Get(ctx, Key(userID, path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get view: %w", err)
	}
	return view, true, nil
}

// Set stores view unless the user's views were revalidated after gen was read.
func (c *RedisCache) Set(ctx context.Context, userID, path string, gen uint64, view []byte) error {
	keys := []string{GenerationKey(userID), Key(userID, path)}
	err := setIfCurrent.Run(ctx, c.client, keys, strconv.FormatUint(gen, 10), view, c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("set view: %w", err)
	}
	return nil
}

// Revalidate advances the user's generation and deletes paths in one
// transaction.
func (c *RedisCache) Revalidate(ctx context.Context, userID string, paths ...string) error {
	keys := make([]string, len(paths))
	for i, path := range paths {
		keys[i] = Key(userID, path)
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, GenerationKey(userID))
		if len(keys) > 0 {
			pipe.Del(ctx, keys...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("revalidate views: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
