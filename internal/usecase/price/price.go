package price

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tg-meme-pulse/internal/domain"
)

// ErrNoDays возвращается, если у проекта нет непустых дней для выбора диапазона.
var ErrNoDays = errors.New("нет загруженных дней")

// ErrNoCoin возвращается, если у проекта не указан coingecko_id.
var ErrNoCoin = errors.New("у проекта не указан coingecko_id")

// Service загружает и хранит дневные цены проекта.
type Service struct {
	source domain.PriceSource
	store  domain.DayStore
	mirror domain.ClassifiedMirror
	log    zerolog.Logger
}

// NewService создаёт сервис цен. mirror может быть nil.
func NewService(source domain.PriceSource, store domain.DayStore, mirror domain.ClassifiedMirror, log zerolog.Logger) *Service {
	return &Service{source: source, store: store, mirror: mirror, log: log}
}

// Fetch загружает свечи за [from, to] и сохраняет их. Нулевые границы заменяются
// первым и последним непустым днём проекта.
func (s *Service) Fetch(ctx context.Context, project domain.Project, from, to time.Time) (domain.PriceSeries, error) {
	if project.CoinGeckoID == "" {
		return nil, fmt.Errorf("%s: %w", project.Name, ErrNoCoin)
	}
	if from.IsZero() || to.IsZero() {
		first, last, err := s.storedRange(project.Name)
		if err != nil {
			return nil, err
		}
		if from.IsZero() {
			from = first
		}
		if to.IsZero() {
			to = last
		}
	}
	prices, err := s.source.DailyOHLC(ctx, project.CoinGeckoID, from, to)
	if err != nil {
		return nil, err
	}
	if err := s.store.SavePrices(project.Name, prices); err != nil {
		return nil, fmt.Errorf("запись цен: %w", err)
	}
	s.log.Info().
		Str("project", project.Name).
		Str("coin", project.CoinGeckoID).
		Str("from", domain.FormatDate(from)).
		Str("to", domain.FormatDate(to)).
		Int("days", len(prices)).
		Msg("price: цены сохранены")
	if s.mirror != nil {
		if err := s.mirror.UpsertPrices(ctx, project.Name, prices); err != nil {
			s.log.Error().Err(err).Str("project", project.Name).Msg("price: не удалось обновить зеркало в Postgres")
		}
	}
	return prices, nil
}

func (s *Service) storedRange(project string) (time.Time, time.Time, error) {
	dates, err := s.store.ListDays(project)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	var nonEmpty []string
	for _, date := range dates {
		status, err := s.store.Status(project, date)
		if err != nil || !status.State.HasMessages() {
			continue
		}
		nonEmpty = append(nonEmpty, date)
	}
	if len(nonEmpty) == 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("%s: %w", project, ErrNoDays)
	}
	first, err := domain.ParseDate(nonEmpty[0])
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	last, err := domain.ParseDate(nonEmpty[len(nonEmpty)-1])
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return first, last, nil
}

// Point — день свёртки с ценой; Price равен nil, если цены за день нет.
type Point struct {
	Date  string       `json:"date"`
	Price *domain.OHLC `json:"price"`
}

// Align сопоставляет каждый календарный день свёртки с ценой по точному совпадению
// ключа. Дни без цены и дни, которых нет в свёртке, остаются пропусками.
func Align(rollup domain.RollupDocument, prices domain.PriceSeries) []Point {
	dates := make([]string, 0, len(rollup.DateData))
	for date := range rollup.DateData {
		dates = append(dates, date)
	}
	return AlignDates(domain.CalendarDays(dates), prices)
}

// AlignDates сопоставляет готовую ось дат с ценами.
func AlignDates(dates []string, prices domain.PriceSeries) []Point {
	out := make([]Point, len(dates))
	for i, date := range dates {
		out[i] = Point{Date: date}
		if candle, ok := prices[date]; ok {
			c := candle
			out[i].Price = &c
		}
	}
	return out
}
