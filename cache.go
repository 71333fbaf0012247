package facemotion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garyburd/redigo/redis"
)

type Cache interface {
	Get(ctx context.Context, key string) (Prediction, bool, error)
	Set(ctx context.Context, key string, p Prediction) error
	Close() error
}

const cachePrefix = "emotion:"

// RedisCache stores predictions keyed by the hash of the uploaded image.
type RedisCache struct {
	pool *redis.Pool
	ttl  time.Duration
}

func NewRedisCache(addr string, maxConns int, ttl time.Duration) *RedisCache {
	pool := &redis.Pool{
		MaxIdle:     maxConns,
		MaxActive:   maxConns,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr,
				redis.DialConnectTimeout(2*time.Second),
				redis.DialReadTimeout(time.Second),
				redis.DialWriteTimeout(time.Second))
		},
	}
	return newRedisCache(pool, ttl)
}

func newRedisCache(pool *redis.Pool, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCache{pool: pool, ttl: ttl}
}

func (r *RedisCache) Ping() error {
	conn := r.pool.Get()
	defer conn.Close()
	_, err := conn.Do("PING")
	return err
}

func (r *RedisCache) Get(ctx context.Context, key string) (Prediction, bool, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, false, err
	}
	conn := r.pool.Get()
	defer conn.Close()

	data, err := redis.Bytes(conn.Do("GET", cachePrefix+key))
	if errors.Is(err, redis.ErrNil) {
		return Prediction{}, false, nil
	}
	if err != nil {
		return Prediction{}, false, fmt.Errorf("redis get: %w", err)
	}
	var p Prediction
	if err := json.Unmarshal(data, &p); err != nil {
		return Prediction{}, false, fmt.Errorf("unmarshal predicción: %w", err)
	}
	return p, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, p Prediction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	serialized, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal predicción: %w", err)
	}
	conn := r.pool.Get()
	defer conn.Close()
	if _, err := conn.Do("SETEX", cachePrefix+key, int(r.ttl.Seconds()), serialized); err != nil {
		return fmt.Errorf("redis setex: %w", err)
	}
	return nil
}

func (r *RedisCache) Close() error {
	return r.pool.Close()
}
