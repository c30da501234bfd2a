// Package seen remembers article URLs across runs so the collector can skip
// links it already persisted without a store round trip.
package seen

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// Set records URLs that have already been handed to the store. It is an
// optimisation only; the store's unique URL index stays authoritative.
type Set interface {
	Seen(ctx context.Context, url string) (bool, error)
	Mark(ctx context.Context, url string) error
	Close() error
}

// Nop is the Set used when no Redis address is configured.
type Nop struct{}

func (Nop) Seen(context.Context, string) (bool, error) { return false, nil }
func (Nop) Mark(context.Context, string) error         { return nil }
func (Nop) Close() error                               { return nil }

// redisClient is the subset of *redis.Client the Redis set uses.
type redisClient interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// Options configures a RedisSet.
type Options struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// RedisSet stores one key per URL with a TTL.
type RedisSet struct {
	rdb    redisClient
	prefix string
	ttl    time.Duration
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, opts Options) (*RedisSet, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, eris.Wrapf(err, "seen: ping redis %s", opts.Addr)
	}
	return newRedisSet(rdb, opts), nil
}

func newRedisSet(rdb redisClient, opts Options) *RedisSet {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "newsstream:seen:"
	}
	return &RedisSet{rdb: rdb, prefix: opts.KeyPrefix, ttl: opts.TTL}
}

// Seen reports whether url has been marked within the TTL.
func (s *RedisSet) Seen(ctx context.Context, url string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.prefix+url).Result()
	if err != nil {
		return false, eris.Wrap(err, "seen: exists")
	}
	return n > 0, nil
}

// Mark records url. A zero TTL keeps the key forever.
func (s *RedisSet) Mark(ctx context.Context, url string) error {
	if err := s.rdb.Set(ctx, s.prefix+url, 1, s.ttl).Err(); err != nil {
		return eris.Wrap(err, "seen: set")
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisSet) Close() error {
	return s.rdb.Close()
}
