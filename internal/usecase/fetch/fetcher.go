package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gotd/td/tgerr"
	"github.com/rs/zerolog"

	"tg-meme-pulse/internal/domain"
	"tg-meme-pulse/internal/infra/metrics"
)

const (
	defaultPageSize = 100
	// размер обёртки {"discussions":[]} без элементов
	envelopeBytes = len(`{"discussions":[]}`)
)

// Fetcher загружает сообщения одного календарного дня с учётом FLOOD_WAIT.
type Fetcher struct {
	pager       domain.HistoryPager
	pageSize    int
	maxDayBytes int
	log         zerolog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
	floodWait   func(err error) (time.Duration, bool)
}

var _ domain.DayFetcher = (*Fetcher)(nil)

// NewFetcher создаёт загрузчик дня. maxDayBytes <= 0 отключает ограничение.
func NewFetcher(pager domain.HistoryPager, pageSize, maxDayBytes int, log zerolog.Logger) *Fetcher {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Fetcher{
		pager:       pager,
		pageSize:    pageSize,
		maxDayBytes: maxDayBytes,
		log:         log,
		sleep:       sleepCtx,
		floodWait:   tgerr.AsFloodWait,
	}
}

// FetchDay возвращает все сообщения за [day, day+24h) и отфильтрованное подмножество
// без ботов и подряд идущих повторов текста. Если отфильтрованный список упирается
// в ограничение по размеру, сбор останавливается и запись помечается Truncated;
// в этом случае сохраняется самая свежая часть дня.
func (f *Fetcher) FetchDay(ctx context.Context, source string, day time.Time) (domain.DayRecord, error) {
	start := domain.DayStart(day)
	end := start.Add(24 * time.Hour)
	log := f.log.With().Str("source", source).Str("date", domain.FormatDate(start)).Logger()

	col := newCollector(f.maxDayBytes)
	offsetID := 0
	seen := make(map[int]struct{})

pages:
	for {
		page, err := f.pager.HistoryPage(ctx, source, offsetID, end, f.pageSize)
		if err != nil {
			if wait, ok := f.floodWait(err); ok {
				metrics.ObserveFloodWait(wait)
				log.Warn().Dur("wait", wait).Int("offset_id", offsetID).Msg("fetch: FLOOD_WAIT, ждём и продолжаем")
				if err := f.sleep(ctx, wait); err != nil {
					return domain.DayRecord{}, err
				}
				continue
			}
			return domain.DayRecord{}, fmt.Errorf("история %s: %w", source, err)
		}
		if len(page) == 0 {
			break
		}
		prevOffset := offsetID
		for _, m := range page {
			if offsetID == 0 || m.ID < offsetID {
				offsetID = m.ID
			}
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			if m.Time.IsZero() {
				continue
			}
			t := m.Time.UTC()
			if !t.Before(end) {
				continue
			}
			if t.Before(start) {
				break pages
			}
			if m.Service || m.Text == "" {
				continue
			}
			if !col.add(m) {
				log.Warn().Int("bytes", col.size).Int("limit", f.maxDayBytes).Msg("fetch: достигнут лимит размера дня, день неполный")
				break pages
			}
		}
		// источник вернул только уже прочитанные ID
		if offsetID == prevOffset {
			log.Warn().Int("offset_id", offsetID).Msg("fetch: страница не сдвинула offset, останавливаемся")
			break
		}
	}

	raw, filtered := col.result()
	return domain.DayRecord{
		Date:      domain.FormatDate(start),
		Raw:       raw,
		Filtered:  filtered,
		Truncated: col.truncated,
	}, nil
}

// collector накапливает сообщения от новых к старым. Повторы текста схлопываются
// так, чтобы в хронологическом порядке оставалось самое раннее сообщение серии.
type collector struct {
	raw       []domain.Message
	filtered  []domain.Message
	sizes     []int
	size      int
	limit     int
	truncated bool
}

func newCollector(limit int) *collector {
	return &collector{size: envelopeBytes, limit: limit}
}

func (c *collector) add(m domain.SourceMessage) bool {
	msg := domain.Message{
		ID:   m.ID,
		Date: m.Time.UTC().Format(domain.MessageTimeLayout),
		User: m.Sender,
		Text: m.Text,
		Bot:  m.Bot,
	}
	if m.Bot {
		c.raw = append(c.raw, msg)
		return true
	}
	kept := msg
	kept.Bot = false
	n := entrySize(kept)
	last := len(c.filtered) - 1
	if last >= 0 && c.filtered[last].Text == msg.Text {
		next := c.size - c.sizes[last] + n
		if c.limit > 0 && next > c.limit {
			c.truncated = true
			return false
		}
		c.filtered[last] = kept
		c.sizes[last] = n
		c.size = next
		c.raw = append(c.raw, msg)
		return true
	}
	if c.limit > 0 && c.size+n > c.limit {
		c.truncated = true
		return false
	}
	c.filtered = append(c.filtered, kept)
	c.sizes = append(c.sizes, n)
	c.size += n
	c.raw = append(c.raw, msg)
	return true
}

// result возвращает списки в хронологическом порядке.
func (c *collector) result() ([]domain.Message, []domain.Message) {
	return reversed(c.raw), reversed(c.filtered)
}

func entrySize(m domain.Message) int {
	b, err := json.Marshal(m)
	if err != nil {
		return 0
	}
	// запятая-разделитель
	return len(b) + 1
}

func reversed(in []domain.Message) []domain.Message {
	out := make([]domain.Message, len(in))
	for i, m := range in {
		out[len(in)-1-i] = m
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
