// Package idempotency keeps two fulfillments of the same order from running
// at once. The guard is a Redis key with a TTL, owned by whoever set it.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type RedisGuard struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisGuard(rdb redis.UniversalClient, ttl time.Duration) *RedisGuard {
	return &RedisGuard{rdb: rdb, prefix: "fulfillment:inflight:", ttl: ttl}
}

func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func (g *RedisGuard) key(orderID int64) string {
	return fmt.Sprintf("%s%d", g.prefix, orderID)
}

// Acquire claims orderID. It returns a release func when the claim succeeded
// and nil when another holder has it. The key expires after the TTL even if
// release is never called.
func (g *RedisGuard) Acquire(ctx context.Context, orderID int64) (func(context.Context) error, error) {
	token := uuid.NewString()
	key := g.key(orderID)

	ok, err := g.rdb.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire guard for order %d: %w", orderID, err)
	}
	if !ok {
		return nil, nil
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, g.rdb, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("release guard for order %d: %w", orderID, err)
		}
		return nil
	}
	return release, nil
}
