package lock

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestKeepAliveRefreshesUntilStopped(t *testing.T) {
	var calls atomic.Int32
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(stop, 5*time.Millisecond, func(context.Context) (bool, error) {
			calls.Add(1)
			return true, nil
		})
	}()

	deadline := time.After(2 * time.Second)
	for calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("TTL не продлевался: %d вызовов", calls.Load())
		case <-time.After(time.Millisecond):
		}
	}
	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("цикл продления не остановился")
	}
}

func TestKeepAliveSurvivesErrorsAndStopsWhenKeyLost(t *testing.T) {
	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(make(chan struct{}), 5*time.Millisecond, func(context.Context) (bool, error) {
			switch calls.Add(1) {
			case 1:
				return false, errors.New("i/o timeout")
			case 2:
				return true, nil
			default:
				return false, nil
			}
		})
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("цикл должен завершиться после потери ключа")
	}
	if calls.Load() != 3 {
		t.Fatalf("ожидали 3 вызова, получили %d", calls.Load())
	}
}

// Требует живой Redis: REDIS_TEST_ADDR=localhost:6379.
func TestRedisLockOutlivesTTL(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR не задан")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	project := "zyn-" + time.Now().Format("150405.000000")
	first := NewRedis(client, 300*time.Millisecond)
	unlock, err := first.Lock(ctx, project)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	time.Sleep(time.Second)
	if _, err := NewRedis(client, time.Second).Lock(ctx, project); !errors.Is(err, ErrLocked) {
		t.Fatalf("блокировка должна продлеваться дольше TTL, получили %v", err)
	}
	if err := unlock(); err != nil {
		t.Fatalf("снятие блокировки: %v", err)
	}
	if err := unlock(); err != nil {
		t.Fatalf("повторное снятие должно быть безопасным: %v", err)
	}
	again, err := NewRedis(client, time.Second).Lock(ctx, project)
	if err != nil {
		t.Fatalf("после снятия проект должен блокироваться: %v", err)
	}
	_ = again()
}
