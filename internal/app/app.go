// Package app собирает зависимости бинарников из конфигурации.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tg-meme-pulse/internal/adapters/classifier"
	"tg-meme-pulse/internal/adapters/coingecko"
	"tg-meme-pulse/internal/adapters/export"
	"tg-meme-pulse/internal/adapters/lock"
	"tg-meme-pulse/internal/adapters/mtproto"
	"tg-meme-pulse/internal/adapters/repo"
	"tg-meme-pulse/internal/adapters/store"
	tgnotify "tg-meme-pulse/internal/adapters/telegram"
	"tg-meme-pulse/internal/adapters/tokenizer"
	"tg-meme-pulse/internal/domain"
	"tg-meme-pulse/internal/infra/config"
	"tg-meme-pulse/internal/infra/db"
	"tg-meme-pulse/internal/infra/openai"
	"tg-meme-pulse/internal/infra/projects"
	"tg-meme-pulse/internal/infra/queue"
	"tg-meme-pulse/internal/usecase/batch"
	"tg-meme-pulse/internal/usecase/classify"
	"tg-meme-pulse/internal/usecase/fetch"
	"tg-meme-pulse/internal/usecase/pipeline"
	"tg-meme-pulse/internal/usecase/price"
	"tg-meme-pulse/internal/usecase/rollup"
)

// App держит общие подключения и строит сервисы по требованию.
type App struct {
	Cfg      config.AppConfig
	Log      zerolog.Logger
	Store    *store.FS
	Registry *projects.Registry

	pool  *pgxpool.Pool
	pg    *repo.Postgres
	redis *redis.Client
}

// New читает реестр проектов и открывает необязательные подключения (Postgres, Redis).
func New(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (*App, error) {
	registry, err := projects.Load(cfg.ProjectsFile)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn().Str("file", cfg.ProjectsFile).Msg("реестр проектов не найден, список проектов пуст")
		registry, err = projects.Parse([]byte("{}"))
	}
	if err != nil {
		return nil, err
	}
	a := &App{Cfg: cfg, Log: logger, Store: store.NewFS(cfg.DataDir), Registry: registry}

	if cfg.PGDSN != "" {
		pool, err := db.Connect(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.pool = pool
		a.pg = repo.NewPostgres(pool)
		if err := a.pg.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
	}
	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.redis.Ping(pingCtx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
	}
	return a, nil
}

// Close закрывает подключения.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

// Redis возвращает клиента Redis или nil, если REDIS_ADDR не задан.
func (a *App) Redis() *redis.Client { return a.redis }

// Mirror возвращает зеркало в Postgres или nil.
func (a *App) Mirror() domain.ClassifiedMirror {
	if a.pg == nil {
		return nil
	}
	return a.pg
}

// Locker возвращает распределённую блокировку при наличии Redis, иначе flock.
func (a *App) Locker() domain.Locker {
	if a.redis != nil {
		return lock.NewRedis(a.redis, a.Cfg.LockTTL)
	}
	return lock.NewFile(a.Cfg.DataDir)
}

// SessionStorage возвращает хранилище MTProto-сессии: Postgres или файл.
func (a *App) SessionStorage() telegram.SessionStorage {
	if a.pg == nil {
		return mtproto.NewSessionStorage(nil, "", a.Cfg.MTProto.SessionFile)
	}
	return mtproto.NewSessionStorage(a.pg, "default", a.Cfg.MTProto.SessionFile)
}

// MTProto создаёт клиента пользовательского аккаунта.
func (a *App) MTProto(prompt mtproto.CodePrompt) *mtproto.Client {
	creds := mtproto.Credentials{
		APIID:    a.Cfg.Telegram.APIID,
		APIHash:  a.Cfg.Telegram.APIHash,
		Phone:    a.Cfg.Telegram.Phone,
		Password: a.Cfg.Telegram.Password,
	}
	return mtproto.NewClient(creds, a.SessionStorage(), prompt, a.Log.With().Str("component", "mtproto").Logger())
}

// Batcher строит обходчик дат поверх источника истории.
func (a *App) Batcher(pager domain.HistoryPager) *batch.Batcher {
	f := fetch.NewFetcher(pager, a.Cfg.MTProto.PageSize, a.Cfg.Fetch.MaxDayBytes, a.Log.With().Str("component", "fetch").Logger())
	opts := batch.Options{WindowDays: a.Cfg.Fetch.WindowDays, StopEmpty: a.Cfg.Fetch.StopEmpty, StopLookback: a.Cfg.Fetch.StopLookback}
	return batch.NewBatcher(f, a.Store, opts, a.Log.With().Str("component", "batch").Logger())
}

// Classifier строит сервис классификации: OpenAI, tiktoken и порог сообщений.
func (a *App) Classifier() (*classify.Service, error) {
	if a.Cfg.OpenAI.APIKey == "" {
		return nil, fmt.Errorf("не указан ключ OpenAI (OPENAI_API_KEY)")
	}
	prompt, err := classifier.LoadPrompt(a.Cfg.Classifier.PromptFile)
	if err != nil {
		return nil, err
	}
	tok, err := tokenizer.NewTiktoken(a.Cfg.Classifier.Encoding)
	if err != nil {
		return nil, fmt.Errorf("токенизатор (TOKENIZER_ENCODING): %w", err)
	}
	client := openai.NewClient(a.Cfg.OpenAI.APIKey, a.Cfg.OpenAI.BaseURL, a.Cfg.OpenAI.Timeout)
	cls := classifier.NewOpenAI(client, a.Cfg.OpenAI.Model, a.Cfg.Classifier.PromptVersion, prompt, a.Log.With().Str("component", "classifier").Logger())
	opts := classify.Options{TokenCeiling: a.Cfg.Classifier.TokenCeiling, MinMessages: a.Cfg.Classifier.MinMessages}
	return classify.NewService(a.Store, cls, tok, opts, a.Log.With().Str("component", "classify").Logger()), nil
}

// Version возвращает пару версий из конфигурации, не создавая клиента OpenAI.
func (a *App) Version() domain.Version {
	return domain.Version{Classifier: a.Cfg.OpenAI.Model, Schema: a.Cfg.Classifier.PromptVersion}
}

// Rollup строит сборщик свёртки.
func (a *App) Rollup() *rollup.Builder {
	return rollup.NewBuilder(a.Store, a.Mirror(), a.Log.With().Str("component", "rollup").Logger())
}

// Prices строит сервис цен CoinGecko.
func (a *App) Prices() *price.Service {
	return price.NewService(a.CoinGecko(), a.Store, a.Mirror(), a.Log.With().Str("component", "price").Logger())
}

// CoinGecko строит клиента CoinGecko по конфигурации.
func (a *App) CoinGecko() *coingecko.Client {
	return coingecko.NewClient(a.Cfg.CoinGecko.BaseURL, a.Cfg.CoinGecko.APIKey, a.Cfg.CoinGecko.VsCurrency, 30*time.Second)
}

// Exporter строит выгрузку xlsx в каталог данных.
func (a *App) Exporter() *export.FileExporter {
	return export.NewFileExporter(a.Cfg.DataDir, classifier.MetricNames())
}

// Notifier возвращает отправителя отчётов или nil, если бот не настроен.
func (a *App) Notifier() (domain.Notifier, error) {
	if a.Cfg.Bot.Token == "" || a.Cfg.Bot.ReportChatID == 0 {
		return nil, nil
	}
	n, err := tgnotify.NewBotNotifier(a.Cfg.Bot.Token, a.Cfg.Bot.ReportChatID, a.Log.With().Str("component", "notifier").Logger())
	if err != nil {
		return nil, err
	}
	return n, nil
}

// Runner собирает полный прогон проекта.
func (a *App) Runner(pager domain.HistoryPager) (*pipeline.Runner, error) {
	cls, err := a.Classifier()
	if err != nil {
		return nil, err
	}
	notifier, err := a.Notifier()
	if err != nil {
		a.Log.Warn().Err(err).Msg("бот отчётов недоступен, отчёты не отправляются")
		notifier = nil
	}
	deps := pipeline.Deps{
		Registry:   a.Registry,
		Store:      a.Store,
		Locker:     a.Locker(),
		Batcher:    a.Batcher(pager),
		Classifier: cls,
		Rollup:     a.Rollup(),
		Price:      a.Prices(),
		Export:     a.Exporter(),
		Notifier:   notifier,
	}
	return pipeline.NewRunner(deps, a.Log.With().Str("component", "pipeline").Logger()), nil
}

// Queue открывает очередь задач: RabbitMQ, если задан RABBITMQ_URL, иначе Redis.
func (a *App) Queue() (domain.IngestQueue, error) {
	switch {
	case a.Cfg.RabbitURL != "":
		return queue.NewRabbitIngestQueue(a.Cfg.RabbitURL, a.Cfg.Queues.Ingest)
	case a.redis != nil:
		return queue.NewRedisIngestQueue(a.redis, a.Cfg.Queues.Ingest), nil
	}
	return nil, fmt.Errorf("очередь не настроена: укажите RABBITMQ_URL или REDIS_ADDR")
}
