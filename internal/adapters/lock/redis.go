package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"tg-meme-pulse/internal/domain"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

const defaultRedisTTL = 2 * time.Minute

// Redis реализует блокировку проекта для нескольких воркеров на разных машинах.
// Пока блокировка удерживается, TTL ключа продлевается каждые ttl/3.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ domain.Locker = (*Redis)(nil)

// NewRedis создаёт блокировку. ttl ограничивает жизнь ключа, если воркер упал.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &Redis{client: client, prefix: "memetrack:lock:", ttl: ttl}
}

// Lock выполняет SET NX с уникальным токеном. Снять блокировку может только владелец токена.
func (l *Redis) Lock(ctx context.Context, project string) (func() error, error) {
	key := l.prefix + project
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, project)
	}

	refresh := func(ctx context.Context) (bool, error) {
		n, err := refreshScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
		return n == 1, err
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(stop, l.ttl/3, refresh)
	}()

	var once sync.Once
	var unlockErr error
	return func() error {
		once.Do(func() {
			close(stop)
			<-done
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			unlockErr = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
		})
		return unlockErr
	}, nil
}

// keepAlive вызывает refresh каждые interval до закрытия stop.
// Ключ, перехваченный другим владельцем, больше не продлевается.
// Сетевые ошибки не прерывают цикл: ключ живёт ещё две попытки.
func keepAlive(stop <-chan struct{}, interval time.Duration, refresh func(ctx context.Context) (bool, error)) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			held, err := refresh(ctx)
			cancel()
			if err == nil && !held {
				return
			}
		}
	}
}
