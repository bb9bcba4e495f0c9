package classify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tg-meme-pulse/internal/adapters/classifier"
	"tg-meme-pulse/internal/domain"
	"tg-meme-pulse/internal/infra/metrics"
)

// ErrTooFewMessages возвращается для дней с количеством сообщений ниже порога.
var ErrTooFewMessages = errors.New("слишком мало сообщений для классификации")

// Options задаёт потолок токенов и минимальный размер дня.
type Options struct {
	TokenCeiling int
	MinMessages  int
}

// Service классифицирует сохранённые дни проекта.
type Service struct {
	store      domain.DayStore
	classifier domain.Classifier
	tok        domain.Tokenizer
	opts       Options
	log        zerolog.Logger
	now        func() time.Time
}

// NewService создаёт сервис классификации.
func NewService(store domain.DayStore, cls domain.Classifier, tok domain.Tokenizer, opts Options, log zerolog.Logger) *Service {
	if opts.TokenCeiling <= 0 {
		opts.TokenCeiling = 110000
	}
	if opts.MinMessages <= 0 {
		opts.MinMessages = 1
	}
	return &Service{store: store, classifier: cls, tok: tok, opts: opts, log: log, now: time.Now}
}

// Version возвращает версию используемого классификатора.
func (s *Service) Version() domain.Version {
	return s.classifier.Version()
}

// ClassifyDay классифицирует один день и перезаписывает его документ целиком.
func (s *Service) ClassifyDay(ctx context.Context, project, date string) (domain.ClassifiedDay, error) {
	version := s.classifier.Version()
	log := s.log.With().
		Str("project", project).
		Str("date", date).
		Str("llm", version.Classifier).
		Str("prompt", version.Schema).
		Logger()

	file, err := s.store.LoadFiltered(project, date)
	if err != nil {
		return domain.ClassifiedDay{}, fmt.Errorf("чтение дня: %w", err)
	}
	messages := file.Discussions
	if len(messages) < s.opts.MinMessages {
		return domain.ClassifiedDay{}, fmt.Errorf("%w: %d < %d", ErrTooFewMessages, len(messages), s.opts.MinMessages)
	}

	cut, err := Truncate(messages, s.tok, s.opts.TokenCeiling)
	if err != nil {
		metrics.IncClassifyOutcome(project, "error")
		return domain.ClassifiedDay{}, err
	}
	if cut.Kept < len(messages) {
		metrics.IncClassifyOutcome(project, "truncated")
		log.Warn().
			Int("messages", len(messages)).
			Int("kept", cut.Kept).
			Int("tokens", cut.Tokens).
			Ints("steps", cut.Steps).
			Msg("classify: день усечён по потолку токенов")
	}

	result, err := s.classifier.Classify(ctx, cut.Payload)
	if err != nil {
		var schemaErr *classifier.SchemaError
		if errors.As(err, &schemaErr) {
			metrics.IncClassifyOutcome(project, "schema_error")
			if saveErr := s.store.SaveRejected(project, date, version, schemaErr.Raw); saveErr != nil {
				log.Error().Err(saveErr).Msg("classify: не удалось сохранить отклонённый ответ")
			}
			return domain.ClassifiedDay{}, err
		}
		metrics.IncClassifyOutcome(project, "error")
		return domain.ClassifiedDay{}, err
	}

	day := domain.ClassifiedDay{
		Project:           project,
		Date:              date,
		ClassifierVersion: version.Classifier,
		SchemaVersion:     version.Schema,
		ClassifiedAt:      s.now().UTC(),
		Input: domain.InputStats{
			MessageCount:   len(messages),
			SubmittedCount: cut.Kept,
			Tokens:         cut.Tokens,
			Truncated:      cut.Kept < len(messages),
			PartialDay:     file.Truncated,
		},
		Metrics:   result,
		UserStats: LocalStats(messages),
	}
	if err := s.store.SaveClassified(day); err != nil {
		metrics.IncClassifyOutcome(project, "error")
		return domain.ClassifiedDay{}, fmt.Errorf("сохранение классификации: %w", err)
	}
	metrics.IncClassifyOutcome(project, "ok")
	log.Info().
		Int("messages", len(messages)).
		Int("users", day.UserStats.UniqueUserCount).
		Int("tokens", cut.Tokens).
		Msg("classify: день классифицирован")
	return day, nil
}

// Report — итог классификации диапазона.
type Report struct {
	Project      string
	Classified   []string
	AlreadyDone  []string
	TooFew       []string
	SchemaErrors []string
	Failed       map[string]error
}

// ClassifyRange обходит сохранённые дни в [from, to] (нулевая граница — без ограничения).
// Дни, уже классифицированные текущей версией, пропускаются, если не задан force.
// Ошибка дня не прерывает обход; прерывает только отмена контекста.
func (s *Service) ClassifyRange(ctx context.Context, project string, from, to time.Time, force bool) (Report, error) {
	report := Report{Project: project, Failed: map[string]error{}}
	dates, err := s.store.ListDays(project)
	if err != nil {
		return report, err
	}
	version := s.classifier.Version()
	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !inRange(date, from, to) {
			continue
		}
		status, err := s.store.Status(project, date)
		if err != nil {
			report.Failed[date] = err
			continue
		}
		if !status.State.HasMessages() {
			continue
		}
		if status.FilteredCount > 0 && status.FilteredCount < s.opts.MinMessages {
			report.TooFew = append(report.TooFew, date)
			continue
		}
		if !force && status.ClassifiedWith(version.Classifier, version.Schema) {
			report.AlreadyDone = append(report.AlreadyDone, date)
			continue
		}
		_, err = s.ClassifyDay(ctx, project, date)
		var schemaErr *classifier.SchemaError
		switch {
		case err == nil:
			report.Classified = append(report.Classified, date)
		case errors.Is(err, ErrTooFewMessages):
			report.TooFew = append(report.TooFew, date)
		case errors.As(err, &schemaErr):
			report.SchemaErrors = append(report.SchemaErrors, date)
			s.log.Error().Err(err).Str("project", project).Str("date", date).Msg("classify: ответ отклонён, день пропущен")
		default:
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Failed[date] = err
			s.log.Error().Err(err).Str("project", project).Str("date", date).Msg("classify: ошибка дня, продолжаем")
		}
	}
	return report, nil
}

func inRange(date string, from, to time.Time) bool {
	if !from.IsZero() && date < domain.FormatDate(from) {
		return false
	}
	if !to.IsZero() && date > domain.FormatDate(to) {
		return false
	}
	return true
}
