package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tg-meme-pulse/internal/domain"
	"tg-meme-pulse/internal/infra/metrics"
)

// ErrEmptyRange возвращается, если конец диапазона раньше начала.
var ErrEmptyRange = errors.New("пустой диапазон дат")

// Options задаёт окно логирования и правило остановки при обходе назад.
type Options struct {
	WindowDays   int
	StopEmpty    int
	StopLookback int
}

// DefaultOptions — правило «5 пустых из последних 7», окна по 7 дней.
func DefaultOptions() Options {
	return Options{WindowDays: 7, StopEmpty: 5, StopLookback: 7}
}

// Report описывает результат обхода диапазона.
type Report struct {
	Project   string
	Processed int
	Skipped   []string
	Empty     []string
	NonEmpty  []string
	Truncated []string
	Failed    map[string]error
	// StoppedAt — дата, после которой обход назад остановлен; пусто, если правило не сработало.
	StoppedAt string
}

// Batcher обходит даты проекта и сохраняет дневные файлы.
type Batcher struct {
	fetcher domain.DayFetcher
	store   domain.DayStore
	opts    Options
	log     zerolog.Logger
	now     func() time.Time
}

// NewBatcher создаёт обходчик дат.
func NewBatcher(fetcher domain.DayFetcher, store domain.DayStore, opts Options, log zerolog.Logger) *Batcher {
	def := DefaultOptions()
	if opts.WindowDays <= 0 {
		opts.WindowDays = def.WindowDays
	}
	if opts.StopLookback <= 0 {
		opts.StopLookback = def.StopLookback
	}
	if opts.StopEmpty <= 0 {
		opts.StopEmpty = def.StopEmpty
	}
	return &Batcher{fetcher: fetcher, store: store, opts: opts, log: log, now: time.Now}
}

// Run обходит [from, to] с шагом в один день. В прямом направлении от from к to,
// в обратном от to к from. Уже загруженные непустые дни пропускаются. Ошибка одного
// дня не прерывает диапазон; прерывает только отмена контекста.
func (b *Batcher) Run(ctx context.Context, project domain.Project, from, to time.Time, dir domain.Direction) (Report, error) {
	from, to = domain.DayStart(from), domain.DayStart(to)
	if to.Before(from) {
		return Report{}, ErrEmptyRange
	}
	dates := expand(from, to, dir)
	report := Report{Project: project.Name, Failed: map[string]error{}}
	log := b.log.With().Str("project", project.Name).Str("direction", string(dir)).Logger()

	// история обработанных дат: true — день пустой
	var history []bool
	for w := 0; w < len(dates); w += b.opts.WindowDays {
		end := w + b.opts.WindowDays
		if end > len(dates) {
			end = len(dates)
		}
		window := dates[w:end]
		log.Info().
			Str("from", domain.FormatDate(window[0])).
			Str("to", domain.FormatDate(window[len(window)-1])).
			Msg("batch: окно")

		for _, day := range window {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			date := domain.FormatDate(day)
			empty, err := b.processDay(ctx, project, day, &report)
			if err != nil {
				if ctx.Err() != nil {
					return report, ctx.Err()
				}
				report.Failed[date] = err
				metrics.IncDayOutcome(project.Name, "error")
				log.Error().Err(err).Str("date", date).Msg("batch: ошибка загрузки дня, продолжаем")
				continue
			}
			report.Processed++
			history = append(history, empty)
			if dir == domain.DirectionBackward && b.shouldStop(history) {
				report.StoppedAt = date
				log.Info().
					Str("date", date).
					Int("empty", b.opts.StopEmpty).
					Int("lookback", b.opts.StopLookback).
					Msg("batch: достигнуто начало истории, обход остановлен")
				return report, nil
			}
		}
	}
	return report, nil
}

// processDay возвращает признак пустого дня. Пропущенный день считается непустым.
func (b *Batcher) processDay(ctx context.Context, project domain.Project, day time.Time, report *Report) (bool, error) {
	date := domain.FormatDate(day)
	status, err := b.store.Status(project.Name, date)
	if err != nil {
		return false, fmt.Errorf("статус %s: %w", date, err)
	}
	if status.State.HasMessages() {
		report.Skipped = append(report.Skipped, date)
		metrics.IncDayOutcome(project.Name, "skipped")
		b.log.Debug().Str("project", project.Name).Str("date", date).Msg("batch: день уже загружен")
		return false, nil
	}

	record, err := b.fetcher.FetchDay(ctx, project.Source, day)
	if err != nil {
		return false, err
	}
	record.Project = project.Name
	record.Date = date
	if _, err := b.store.SaveDay(record, b.now()); err != nil {
		return false, fmt.Errorf("сохранение %s: %w", date, err)
	}
	metrics.AddFetchedMessages(project.Name, len(record.Raw), len(record.Filtered))

	if record.Truncated {
		report.Truncated = append(report.Truncated, date)
	}
	if len(record.Filtered) == 0 {
		report.Empty = append(report.Empty, date)
		metrics.IncDayOutcome(project.Name, "empty")
		b.log.Info().Str("project", project.Name).Str("date", date).Int("raw", len(record.Raw)).Msg("batch: пустой день")
		return true, nil
	}
	report.NonEmpty = append(report.NonEmpty, date)
	metrics.IncDayOutcome(project.Name, "nonempty")
	b.log.Info().
		Str("project", project.Name).
		Str("date", date).
		Int("raw", len(record.Raw)).
		Int("filtered", len(record.Filtered)).
		Bool("truncated", record.Truncated).
		Msg("batch: день сохранён")
	return false, nil
}

func (b *Batcher) shouldStop(history []bool) bool {
	if len(history) < b.opts.StopEmpty {
		return false
	}
	start := len(history) - b.opts.StopLookback
	if start < 0 {
		start = 0
	}
	empty := 0
	for _, e := range history[start:] {
		if e {
			empty++
		}
	}
	return empty >= b.opts.StopEmpty
}

func expand(from, to time.Time, dir domain.Direction) []time.Time {
	var dates []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	if dir == domain.DirectionBackward {
		for i, j := 0, len(dates)-1; i < j; i, j = i+1, j-1 {
			dates[i], dates[j] = dates[j], dates[i]
		}
	}
	return dates
}
