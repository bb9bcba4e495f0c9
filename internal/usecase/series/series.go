package series

import (
	"errors"
	"fmt"
	"sort"

	"tg-meme-pulse/internal/domain"
	"tg-meme-pulse/internal/usecase/price"
)

// ErrUnknownMetric возвращается для имени метрики, которого нет в свёртке.
var ErrUnknownMetric = errors.New("неизвестная метрика")

const (
	// MetricMessageCount — число отфильтрованных сообщений за день.
	MetricMessageCount = "message_count"
	// MetricUniqueUsers — число уникальных отправителей за день.
	MetricUniqueUsers = "unique_user_count"
)

// Series — значения одной метрики по датам; nil означает пропуск.
type Series struct {
	Metric string     `json:"metric"`
	Values []*float64 `json:"values"`
}

// Chart — данные для построения графиков проекта.
type Chart struct {
	Project string        `json:"project"`
	Window  int           `json:"window"`
	Dates   []string      `json:"dates"`
	Series  []Series      `json:"series"`
	Price   []price.Point `json:"price,omitempty"`
}

// Dates возвращает даты свёртки по возрастанию.
func Dates(rollup domain.RollupDocument) []string {
	dates := make([]string, 0, len(rollup.DateData))
	for date := range rollup.DateData {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates
}

// Extract возвращает значения метрики по датам.
func Extract(rollup domain.RollupDocument, dates []string, metric string) []*float64 {
	out := make([]*float64, len(dates))
	for i, date := range dates {
		day, ok := rollup.DateData[date]
		if !ok {
			continue
		}
		switch metric {
		case MetricMessageCount:
			v := float64(day.UserStats.MessageCount)
			out[i] = &v
		case MetricUniqueUsers:
			v := float64(day.UserStats.UniqueUserCount)
			out[i] = &v
		default:
			m, ok := day.Metrics.EmotionalMetrics[metric]
			if ok && m.Intensity != nil {
				v := float64(*m.Intensity)
				out[i] = &v
			}
		}
	}
	return out
}

// MovingAverage считает скользящее среднее по последним n позициям.
// Пропуски не входят ни в числитель, ни в знаменатель; результат nil,
// только если в окне нет ни одного значения.
func MovingAverage(values []*float64, n int) []*float64 {
	if n <= 1 {
		return append([]*float64(nil), values...)
	}
	out := make([]*float64, len(values))
	for i := range values {
		start := i - n + 1
		if start < 0 {
			start = 0
		}
		var sum float64
		var count int
		for _, v := range values[start : i+1] {
			if v != nil {
				sum += *v
				count++
			}
		}
		if count > 0 {
			avg := sum / float64(count)
			out[i] = &avg
		}
	}
	return out
}

// Available возвращает имена метрик, которые встречаются в свёртке.
func Available(rollup domain.RollupDocument) []string {
	seen := map[string]struct{}{}
	for _, day := range rollup.DateData {
		for name := range day.Metrics.EmotionalMetrics {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen)+2)
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return append([]string{MetricMessageCount, MetricUniqueUsers}, names...)
}

// Build собирает сглаженные ряды выбранных метрик и цену по тем же датам.
// Ось — каждый календарный день от первой до последней даты свёртки, поэтому
// окно сглаживания считается в днях, а отсутствующие дни дают пропуски.
func Build(rollup domain.RollupDocument, prices domain.PriceSeries, metrics []string, window int) (Chart, error) {
	known := map[string]struct{}{}
	for _, name := range Available(rollup) {
		known[name] = struct{}{}
	}
	if len(metrics) == 0 {
		metrics = []string{MetricMessageCount}
	}
	dates := domain.CalendarDays(Dates(rollup))
	chart := Chart{Project: rollup.ProjectName, Window: window, Dates: dates}
	for _, metric := range metrics {
		if _, ok := known[metric]; !ok && len(rollup.DateData) > 0 {
			return Chart{}, fmt.Errorf("%w: %s", ErrUnknownMetric, metric)
		}
		chart.Series = append(chart.Series, Series{
			Metric: metric,
			Values: MovingAverage(Extract(rollup, dates, metric), window),
		})
	}
	if prices != nil {
		chart.Price = price.AlignDates(dates, prices)
	}
	return chart, nil
}
