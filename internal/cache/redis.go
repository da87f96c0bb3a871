package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// Redis is a Cache backed by a Redis server, for deployments where several
// screening processes share results.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis wraps a client. Keys are stored under prefix.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// OpenRedis connects to addr and verifies connectivity.
func OpenRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	if addr == "" {
		return nil, eris.New("redis: address is required")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrapf(err, "redis: ping %s", addr)
	}
	return NewRedis(client, "parcel-screen:"), nil
}

// Get implements Cache.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if eris.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "redis: get %s", key)
	}
	return payload, true, nil
}

// Put implements Cache. A zero ttl stores the entry without expiry.
func (r *Redis) Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, payload, ttl).Err(); err != nil {
		return eris.Wrapf(err, "redis: set %s", key)
	}
	return nil
}

// Close implements Cache.
func (r *Redis) Close() error {
	return r.client.Close()
}
