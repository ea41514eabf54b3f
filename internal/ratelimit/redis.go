package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// slidingWindowScript trims, counts and conditionally records one call in a
// sorted set atomically. KEYS[1]=window key, ARGV: now_ms, window_ms, limit, member.
var slidingWindowScript = goredis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
  return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// RedisWindow shares sliding windows across processes through Redis sorted sets.
type RedisWindow struct {
	rdb    goredis.UniversalClient
	prefix string
	window time.Duration
	now    Clock
}

// NewRedisWindow pings addr and returns a limiter backed by it.
func NewRedisWindow(ctx context.Context, addr, prefix string, window time.Duration) (*RedisWindow, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisWindowFromClient(rdb, prefix, window), nil
}

// NewRedisWindowFromClient wraps an existing client.
func NewRedisWindowFromClient(rdb goredis.UniversalClient, prefix string, window time.Duration) *RedisWindow {
	if window <= 0 {
		window = time.Minute
	}
	return &RedisWindow{rdb: rdb, prefix: prefix, window: window, now: time.Now}
}

func (r *RedisWindow) Allow(ctx context.Context, key string, limit int) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	nowMs := r.now().UnixMilli()
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()
	res, err := slidingWindowScript.Run(ctx, r.rdb,
		[]string{r.prefix + key},
		nowMs, r.window.Milliseconds(), limit, member,
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis sliding window: %w", err)
	}
	return res == 1, nil
}

func (r *RedisWindow) Close() error {
	return r.rdb.Close()
}

var _ Limiter = (*RedisWindow)(nil)
