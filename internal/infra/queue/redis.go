package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tg-meme-pulse/internal/domain"
	"tg-meme-pulse/internal/infra/metrics"
)

// RedisIngestQueue реализует очередь задач на базе Redis lists. Полученная
// задача перекладывается в список обработки и удаляется оттуда после подтверждения.
type RedisIngestQueue struct {
	client     redis.Cmdable
	key        string
	processing string
	wait       time.Duration
}

var _ domain.IngestQueue = (*RedisIngestQueue)(nil)

// NewRedisIngestQueue создаёт очередь по указанному ключу.
func NewRedisIngestQueue(client redis.Cmdable, key string) *RedisIngestQueue {
	return &RedisIngestQueue{client: client, key: key, processing: key + ":processing", wait: time.Second}
}

// Enqueue публикует задачу в очередь.
func (q *RedisIngestQueue) Enqueue(ctx context.Context, job domain.IngestJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди.
func (q *RedisIngestQueue) Receive(ctx context.Context) (domain.IngestJob, domain.AckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.IngestJob{}, nil, err
		}

		raw, err := q.client.BLMove(ctx, q.key, q.processing, "RIGHT", "LEFT", q.wait).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.IngestJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.IngestJob{}, nil, err
		}
		var job domain.IngestJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			_ = q.client.LRem(context.Background(), q.processing, 1, raw).Err()
			return domain.IngestJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		return job, q.ackFunc(raw), nil
	}
}

func (q *RedisIngestQueue) ackFunc(raw string) domain.AckFunc {
	return func(success bool) error {
		ctx := context.Background()
		if err := q.client.LRem(ctx, q.processing, 1, raw).Err(); err != nil {
			return fmt.Errorf("ack job: %w", err)
		}
		if success {
			return nil
		}
		// повтор: задача будет выдана следующей
		if err := q.client.RPush(ctx, q.key, raw).Err(); err != nil {
			return fmt.Errorf("requeue job: %w", err)
		}
		return nil
	}
}

// Close ничего не делает: клиент Redis закрывает владелец.
func (q *RedisIngestQueue) Close() error { return nil }
