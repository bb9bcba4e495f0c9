package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"tg-meme-pulse/internal/app"
	"tg-meme-pulse/internal/domain"
	"tg-meme-pulse/internal/infra/config"
	applog "tg-meme-pulse/internal/infra/log"
	"tg-meme-pulse/internal/infra/metrics"
	"tg-meme-pulse/internal/infra/projects"
	"tg-meme-pulse/internal/usecase/pipeline"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось инициализировать зависимости")
	}
	defer a.Close()

	q, err := a.Queue()
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: очередь недоступна")
	}
	defer q.Close()

	client := a.MTProto(nil)
	err = client.Run(ctx, func(ctx context.Context) error {
		runner, err := a.Runner(client)
		if err != nil {
			return err
		}
		w := &jobWorker{queue: q, runner: runner, log: logger.With().Str("component", "worker").Logger()}
		logger.Info().Msg("worker: запуск обработки очереди")
		w.Run(ctx)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: MTProto клиент остановлен")
	}
	logger.Info().Msg("worker: остановлен")
}

type jobWorker struct {
	queue  domain.IngestQueue
	runner *pipeline.Runner
	log    zerolog.Logger
}

const lockedRetryDelay = 30 * time.Second

func (w *jobWorker) Run(ctx context.Context) {
	for {
		job, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.log.Error().Err(err).Msg("worker: ошибка чтения очереди")
			time.Sleep(time.Second)
			continue
		}

		jobLog := w.log.With().Str("job_id", job.ID).Str("project", job.Project).Logger()
		report, err := w.runner.Run(ctx, job)
		switch {
		case err == nil:
			if report.Failed() {
				jobLog.Warn().Int("errors", len(report.Errors)).Msg("worker: прогон завершён с ошибками этапов")
			}
			if ackErr := ack(true); ackErr != nil {
				jobLog.Error().Err(ackErr).Msg("worker: не удалось подтвердить задачу")
			}
		case errors.Is(err, projects.ErrUnknownProject):
			jobLog.Error().Err(err).Msg("worker: задача для неизвестного проекта, подтверждаем и пропускаем")
			if ackErr := ack(true); ackErr != nil {
				jobLog.Error().Err(ackErr).Msg("worker: не удалось подтвердить задачу")
			}
		default:
			// блокировка, отмена или сбой инфраструктуры: вернём задачу в очередь
			jobLog.Warn().Err(err).Msg("worker: задача возвращена в очередь")
			if ackErr := ack(false); ackErr != nil {
				jobLog.Error().Err(ackErr).Msg("worker: не удалось вернуть задачу в очередь")
			}
			if errors.Is(err, domain.ErrLocked) {
				select {
				case <-ctx.Done():
					return
				case <-time.After(lockedRetryDelay):
				}
			}
		}
	}
}
