package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Config is the connection setting for the shared store.
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewRedisClient connects and pings; the client is returned only if the ping
// succeeds.
func NewRedisClient(ctx context.Context, c Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
		PoolSize: c.PoolSize,
	})
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "redis ping %s", c.Addr)
	}
	return rdb, nil
}

// idem key: docdoor:idem:<key>
const idemPrefix = "docdoor:idem:"

func idemKey(key string) string { return idemPrefix + key }

// RedisIdem shares duplicate suppression between several client processes of
// the same user, e.g. a CLI listener and a desktop session.
type RedisIdem struct {
	rdb     redis.Cmdable
	ttl     time.Duration
	timeout time.Duration
}

func NewRedisIdem(rdb redis.Cmdable, defaultTTL time.Duration) *RedisIdem {
	if defaultTTL <= 0 {
		defaultTTL = 2 * time.Minute
	}
	return &RedisIdem{rdb: rdb, ttl: defaultTTL, timeout: time.Second}
}

func (r *RedisIdem) SeenOnce(key string, ttl time.Duration) (bool, error) {
	if r.rdb == nil {
		return false, errors.New("redis not initialized")
	}
	if ttl <= 0 {
		ttl = r.ttl
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	created, err := r.rdb.SetNX(ctx, idemKey(key), 1, ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis setnx")
	}
	return !created, nil
}

var (
	_ IdemStore = (*MemIdem)(nil)
	_ IdemStore = (*RedisIdem)(nil)
)
