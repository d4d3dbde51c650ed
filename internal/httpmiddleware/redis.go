package httpmiddleware

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindow is a fixed one-minute window counter shared by all API replicas.
type RedisWindow struct {
	client    *redis.Client
	prefix    string
	perMinute int
	now       func() time.Time
}

// NewRedisWindow creates a limiter allowing perMinute requests per key and minute.
func NewRedisWindow(client *redis.Client, prefix string, perMinute int) *RedisWindow {
	return &RedisWindow{client: client, prefix: prefix, perMinute: perMinute, now: time.Now}
}

// Allow increments key's counter for the current minute.
func (l *RedisWindow) Allow(ctx context.Context, key string) (bool, error) {
	window := l.now().Unix() / 60
	k := l.prefix + key + ":" + strconv.FormatInt(window, 10)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= int64(l.perMinute), nil
}
