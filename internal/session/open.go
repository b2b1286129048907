package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Open returns the store named by kind ("memory" or "redis") together with
// a function that releases it. busyTTL applies to the redis input lock only;
// a memory store is lost with its process.
func Open(ctx context.Context, kind, redisAddr string, ttl, busyTTL time.Duration) (Store, func() error, error) {
	switch kind {
	case "", "memory":
		store := NewMemoryStore(ttl)
		return store, store.Close, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", redisAddr, err)
		}
		return NewRedisStore(rdb, ttl, busyTTL), rdb.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown session store %q", kind)
	}
}
