package main

import (
	"context"
	"os/signal"
	"syscall"

	"tg-meme-pulse/internal/app"
	"tg-meme-pulse/internal/infra/cache"
	"tg-meme-pulse/internal/infra/config"
	applog "tg-meme-pulse/internal/infra/log"
	"tg-meme-pulse/internal/usecase/schedule"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось инициализировать зависимости")
	}
	defer a.Close()

	q, err := a.Queue()
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: очередь недоступна")
	}
	defer q.Close()

	var dedup schedule.Deduper
	if rdb := a.Redis(); rdb != nil {
		dedup = cache.NewRedisOnce(rdb, "memetrack:scheduled:")
	}
	svc := schedule.NewService(a.Registry, q, dedup, cfg.Schedule.Interval, cfg.Schedule.LookbackDays, logger.With().Str("component", "scheduler").Logger())

	logger.Info().Dur("interval", cfg.Schedule.Interval).Msg("scheduler: запуск")
	svc.Run(ctx)
	logger.Info().Msg("scheduler: остановлен")
}
