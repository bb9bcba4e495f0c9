package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gotd/td/session"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tg-meme-pulse/internal/domain"
	"tg-meme-pulse/internal/infra/metrics"
)

// Postgres зеркалирует свёртки и цены в таблицы и хранит MTProto-сессии.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.ClassifiedMirror = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS classified_days (
	project            text        NOT NULL,
	date               date        NOT NULL,
	classifier_version text        NOT NULL,
	schema_version     text        NOT NULL,
	catchphrase        text        NOT NULL DEFAULT '',
	community_theme    text        NOT NULL DEFAULT '',
	emotional_metrics  jsonb       NOT NULL,
	unique_user_count  integer     NOT NULL,
	message_count      integer     NOT NULL,
	top_accounts       jsonb       NOT NULL,
	generated_at       timestamptz NOT NULL,
	PRIMARY KEY (project, date, classifier_version, schema_version)
);
ALTER TABLE classified_days ADD COLUMN IF NOT EXISTS reference_blocks jsonb NOT NULL DEFAULT '{}';
CREATE TABLE IF NOT EXISTS price_days (
	project    text             NOT NULL,
	date       date             NOT NULL,
	open       double precision NOT NULL,
	high       double precision NOT NULL,
	low        double precision NOT NULL,
	close      double precision NOT NULL,
	updated_at timestamptz      NOT NULL DEFAULT now(),
	PRIMARY KEY (project, date)
);
CREATE TABLE IF NOT EXISTS mtproto_sessions (
	name       text PRIMARY KEY,
	data       bytea       NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
);
`

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 30*time.Second)
}

// EnsureSchema создаёт таблицы, если их нет.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, schema)
	metrics.ObserveNetworkRequest("postgres", "ensure_schema", "schema", start, err)
	if err != nil {
		return fmt.Errorf("создание схемы: %w", err)
	}
	return nil
}

// referenceBlocks — необязательные блоки ответа классификатора в одной колонке jsonb.
type referenceBlocks struct {
	Message          *domain.TopLineMetrics `json:"message,omitempty"`
	ProjectReference []domain.Reference     `json:"project_reference,omitempty"`
	SocialReference  []domain.Reference     `json:"social_reference,omitempty"`
}

// UpsertRollup записывает все дни свёртки одной транзакцией.
func (p *Postgres) UpsertRollup(ctx context.Context, doc domain.RollupDocument) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	batch := &pgx.Batch{}
	for date, day := range doc.DateData {
		d, err := domain.ParseDate(date)
		if err != nil {
			return fmt.Errorf("дата %q: %w", date, err)
		}
		emotional, err := json.Marshal(day.Metrics.EmotionalMetrics)
		if err != nil {
			return fmt.Errorf("кодирование метрик %s: %w", date, err)
		}
		accounts := day.UserStats.TopMentionedAccounts
		if accounts == nil {
			accounts = []domain.AccountMention{}
		}
		top, err := json.Marshal(accounts)
		if err != nil {
			return fmt.Errorf("кодирование упоминаний %s: %w", date, err)
		}
		blocks, err := json.Marshal(referenceBlocks{
			Message:          day.Metrics.Message,
			ProjectReference: day.Metrics.ProjectReference,
			SocialReference:  day.Metrics.SocialReference,
		})
		if err != nil {
			return fmt.Errorf("кодирование ссылок %s: %w", date, err)
		}
		batch.Queue(`
INSERT INTO classified_days (project, date, classifier_version, schema_version, catchphrase, community_theme,
	emotional_metrics, unique_user_count, message_count, top_accounts, reference_blocks, generated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (project, date, classifier_version, schema_version) DO UPDATE SET
	catchphrase = EXCLUDED.catchphrase,
	community_theme = EXCLUDED.community_theme,
	emotional_metrics = EXCLUDED.emotional_metrics,
	unique_user_count = EXCLUDED.unique_user_count,
	message_count = EXCLUDED.message_count,
	top_accounts = EXCLUDED.top_accounts,
	reference_blocks = EXCLUDED.reference_blocks,
	generated_at = EXCLUDED.generated_at
`, doc.ProjectName, d, doc.ClassifierVersion, doc.SchemaVersion, day.Metrics.Catchphrase, day.Metrics.CommunityTheme,
			emotional, day.UserStats.UniqueUserCount, day.UserStats.MessageCount, top, blocks, doc.GeneratedAt)
	}
	return p.sendBatch(ctx, "classified_days_upsert", "classified_days", batch)
}

// UpsertPrices записывает дневные свечи проекта.
func (p *Postgres) UpsertPrices(ctx context.Context, project string, prices domain.PriceSeries) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	batch := &pgx.Batch{}
	for date, c := range prices {
		d, err := domain.ParseDate(date)
		if err != nil {
			return fmt.Errorf("дата %q: %w", date, err)
		}
		batch.Queue(`
INSERT INTO price_days (project, date, open, high, low, close, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
ON CONFLICT (project, date) DO UPDATE SET
	open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low, close = EXCLUDED.close, updated_at = now()
`, project, d, c.Open, c.High, c.Low, c.Close)
	}
	return p.sendBatch(ctx, "price_days_upsert", "price_days", batch)
}

func (p *Postgres) sendBatch(ctx context.Context, operation, table string, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	start := time.Now()
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	metrics.ObserveNetworkRequest("postgres", operation, table, start, err)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return nil
}

// LoadMTProtoSession загружает сохранённую MTProto-сессию.
func (p *Postgres) LoadMTProtoSession(ctx context.Context, name string) ([]byte, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if name == "" {
		name = "default"
	}

	var data []byte
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT data FROM mtproto_sessions WHERE name = $1`, name).Scan(&data)
	metrics.ObserveNetworkRequest("postgres", "mtproto_sessions_load", "mtproto_sessions", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), data...), nil
}

// StoreMTProtoSession сохраняет MTProto-сессию.
func (p *Postgres) StoreMTProtoSession(ctx context.Context, name string, data []byte) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if name == "" {
		name = "default"
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO mtproto_sessions (name, data, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
`, name, append([]byte(nil), data...))
	metrics.ObserveNetworkRequest("postgres", "mtproto_sessions_store", "mtproto_sessions", start, err)
	return err
}
