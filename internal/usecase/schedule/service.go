package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-meme-pulse/internal/domain"
)

// Deduper выполняет fn не больше одного раза на ключ в течение ttl.
type Deduper interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) (bool, error)
}

// Service ставит периодические задачи обработки проектов в очередь.
type Service struct {
	registry domain.ProjectRegistry
	queue    domain.IngestQueue
	dedup    Deduper
	interval time.Duration
	lookback int
	log      zerolog.Logger
	now      func() time.Time
}

// NewService создаёт планировщик. dedup может быть nil.
func NewService(registry domain.ProjectRegistry, queue domain.IngestQueue, dedup Deduper, interval time.Duration, lookbackDays int, log zerolog.Logger) *Service {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if lookbackDays < 0 {
		lookbackDays = 0
	}
	return &Service{registry: registry, queue: queue, dedup: dedup, interval: interval, lookback: lookbackDays, log: log, now: time.Now}
}

// Tick ставит задачи за последние lookback дней для всех здоровых проектов
// и возвращает имена проектов, для которых задача поставлена.
func (s *Service) Tick(ctx context.Context) []string {
	now := s.now().UTC()
	to := domain.DayStart(now)
	from := to.AddDate(0, 0, -s.lookback)
	slot := now.Truncate(s.interval).Format(time.RFC3339)

	var queued []string
	for _, p := range s.registry.List() {
		if !p.Healthy {
			s.log.Debug().Str("project", p.Name).Msg("scheduler: проект помечен нездоровым, пропускаем")
			continue
		}
		job := domain.IngestJob{
			ID:          uuid.NewString(),
			Project:     p.Name,
			From:        from,
			To:          to,
			Direction:   domain.DirectionForward,
			RequestedAt: now,
		}
		enqueue := func() error { return s.queue.Enqueue(ctx, job) }

		done := true
		var err error
		if s.dedup != nil {
			// одна задача на проект за интервал, даже при нескольких планировщиках
			done, err = s.dedup.Once(ctx, p.Name+":"+slot, s.interval, enqueue)
		} else {
			err = enqueue()
		}
		if err != nil {
			s.log.Error().Err(err).Str("project", p.Name).Msg("scheduler: не удалось поставить задачу")
			continue
		}
		if !done {
			continue
		}
		queued = append(queued, p.Name)
		s.log.Info().Str("project", p.Name).Str("job_id", job.ID).Msg("scheduler: задача поставлена")
	}
	return queued
}

// Run вызывает Tick сразу и затем с заданным интервалом до отмены контекста.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}
