package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOnce отмечает уже выполненные действия ключами с TTL.
type RedisOnce struct {
	client redis.Cmdable
	prefix string
}

// NewRedisOnce создаёт отметчик с префиксом ключей.
func NewRedisOnce(client redis.Cmdable, prefix string) *RedisOnce {
	return &RedisOnce{client: client, prefix: prefix}
}

// Once выполняет fn, если ключ ещё не занят. При ошибке fn ключ снимается,
// чтобы следующая попытка повторила действие. Возвращает true, если fn вызвана.
func (c *RedisOnce) Once(ctx context.Context, key string, ttl time.Duration, fn func() error) (bool, error) {
	full := c.prefix + key
	ok, err := c.client.SetNX(ctx, full, "1", ttl).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := fn(); err != nil {
		_ = c.client.Del(ctx, full).Err()
		return true, err
	}
	return true, nil
}
