package rollup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tg-meme-pulse/internal/domain"
	"tg-meme-pulse/internal/infra/metrics"
)

// Builder собирает классифицированные дни проекта в один временной ряд.
type Builder struct {
	store  domain.DayStore
	mirror domain.ClassifiedMirror
	log    zerolog.Logger
	now    func() time.Time
}

// NewBuilder создаёт сборщик свёртки. mirror может быть nil.
func NewBuilder(s domain.DayStore, mirror domain.ClassifiedMirror, log zerolog.Logger) *Builder {
	return &Builder{store: s, mirror: mirror, log: log, now: time.Now}
}

// Build перечитывает все дни проекта и перезаписывает свёртку для пары версий.
// Дни без документа нужной версии пропускаются с предупреждением.
func (b *Builder) Build(ctx context.Context, project string, version domain.Version) (domain.RollupDocument, error) {
	log := b.log.With().
		Str("project", project).
		Str("llm", version.Classifier).
		Str("prompt", version.Schema).
		Logger()

	dates, err := b.store.ListDays(project)
	if err != nil {
		return domain.RollupDocument{}, err
	}
	doc := domain.RollupDocument{
		ProjectName:       project,
		ClassifierVersion: version.Classifier,
		SchemaVersion:     version.Schema,
		GeneratedAt:       b.now().UTC(),
		DateData:          make(map[string]domain.RollupDay),
	}
	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return domain.RollupDocument{}, err
		}
		day, err := b.store.LoadClassified(project, date, version)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				log.Warn().Err(err).Str("date", date).Msg("rollup: документ дня не прочитан, пропускаем")
				continue
			}
			status, statusErr := b.store.Status(project, date)
			if statusErr == nil && !status.State.HasMessages() {
				log.Debug().Str("date", date).Str("state", string(status.State)).Msg("rollup: день без сообщений")
				continue
			}
			log.Warn().Str("date", date).Msg("rollup: нет классификации для версии, пропускаем")
			continue
		}
		doc.DateData[date] = domain.RollupDay{Metrics: day.Metrics, UserStats: day.UserStats}
	}

	if err := b.store.SaveRollup(doc); err != nil {
		return domain.RollupDocument{}, fmt.Errorf("запись свёртки: %w", err)
	}
	metrics.RollupDays.WithLabelValues(project).Set(float64(len(doc.DateData)))
	log.Info().Int("days", len(doc.DateData)).Msg("rollup: свёртка записана")

	if b.mirror != nil {
		if err := b.mirror.UpsertRollup(ctx, doc); err != nil {
			log.Error().Err(err).Msg("rollup: не удалось обновить зеркало в Postgres")
		}
	}
	return doc, nil
}
