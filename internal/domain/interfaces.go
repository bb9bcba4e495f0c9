package domain

import (
	"context"
	"time"
)

// HistoryPager отдаёт страницу истории чата, от новых сообщений к старым.
// Возвращаются сообщения строго старше offsetID (если он > 0) и отправленные до offsetDate.
// Страница содержит все записи ответа, включая служебные; пустая страница — конец истории.
type HistoryPager interface {
	HistoryPage(ctx context.Context, source string, offsetID int, offsetDate time.Time, limit int) ([]SourceMessage, error)
}

// DayFetcher загружает сообщения одного дня.
type DayFetcher interface {
	FetchDay(ctx context.Context, source string, day time.Time) (DayRecord, error)
}

// DayStore хранит дневные файлы проекта.
type DayStore interface {
	Status(project, date string) (DayStatus, error)
	SaveDay(record DayRecord, fetchedAt time.Time) (DayStatus, error)
	SaveStatus(project string, status DayStatus) error
	LoadFiltered(project, date string) (DayFile, error)
	ListDays(project string) ([]string, error)
	SaveClassified(day ClassifiedDay) error
	LoadClassified(project, date string, version Version) (ClassifiedDay, error)
	SaveRejected(project, date string, version Version, raw string) error
	SaveRollup(doc RollupDocument) error
	LoadRollup(project string, version Version) (RollupDocument, error)
	SavePrices(project string, prices PriceSeries) error
	LoadPrices(project string) (PriceSeries, error)
	ListProjects() ([]string, error)
}

// Classifier отправляет полезную нагрузку дня во внешний классификатор.
type Classifier interface {
	Version() Version
	Classify(ctx context.Context, payload string) (CommunityMetrics, error)
}

// Tokenizer считает длину текста в токенах.
type Tokenizer interface {
	Count(text string) int
}

// PriceSource отдаёт дневные свечи за период.
type PriceSource interface {
	DailyOHLC(ctx context.Context, coinID string, from, to time.Time) (PriceSeries, error)
}

// ProjectRegistry — конфигурационное хранилище проектов.
type ProjectRegistry interface {
	Get(name string) (Project, error)
	List() []Project
}

// Locker выдаёт эксклюзивную блокировку каталога проекта.
type Locker interface {
	Lock(ctx context.Context, project string) (unlock func() error, err error)
}

// ClassifiedMirror дублирует свёртку во внешнее хранилище.
type ClassifiedMirror interface {
	UpsertRollup(ctx context.Context, doc RollupDocument) error
	UpsertPrices(ctx context.Context, project string, prices PriceSeries) error
}

// Notifier отправляет отчёт о прогоне.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}
