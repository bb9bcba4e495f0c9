package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"tg-meme-pulse/internal/adapters/store"
	"tg-meme-pulse/internal/domain"
)

type fakeFetcher struct {
	// даты с сообщениями: дата -> количество
	days  map[string]int
	fail  map[string]bool
	calls []string
}

func (f *fakeFetcher) FetchDay(_ context.Context, _ string, day time.Time) (domain.DayRecord, error) {
	date := domain.FormatDate(day)
	f.calls = append(f.calls, date)
	if f.fail[date] {
		return domain.DayRecord{}, errors.New("сеть недоступна")
	}
	var msgs []domain.Message
	for i := 0; i < f.days[date]; i++ {
		msgs = append(msgs, domain.Message{ID: i + 1, Date: date + " 12:00", User: fmt.Sprintf("@u%d", i), Text: fmt.Sprintf("m%d", i)})
	}
	return domain.DayRecord{Date: date, Raw: msgs, Filtered: msgs}, nil
}

var zyn = domain.Project{Name: "zyn", Source: "@zyn"}

func d(s string) time.Time {
	t, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestRunIsIdempotentForFetchedDays(t *testing.T) {
	fs := store.NewFS(t.TempDir())
	fetcher := &fakeFetcher{days: map[string]int{"2024-10-15": 3, "2024-10-16": 2}}
	b := NewBatcher(fetcher, fs, DefaultOptions(), zerolog.Nop())

	if _, err := b.Run(context.Background(), zyn, d("2024-10-15"), d("2024-10-17"), domain.DirectionForward); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	path := fs.FilteredPath("zyn", "2024-10-15")
	before, err := os.Stat(path)
	if err != nil {
		t.Fatalf("ожидали файл дня: %v", err)
	}

	fetcher.calls = nil
	report, err := b.Run(context.Background(), zyn, d("2024-10-15"), d("2024-10-17"), domain.DirectionForward)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	// пустой день загружается повторно, непустые пропускаются
	if diff := cmp.Diff([]string{"2024-10-17"}, fetcher.calls); diff != "" {
		t.Fatalf("неожиданные загрузки:\n%s", diff)
	}
	if diff := cmp.Diff([]string{"2024-10-15", "2024-10-16"}, report.Skipped); diff != "" {
		t.Fatalf("неожиданные пропуски:\n%s", diff)
	}
	after, err := os.Stat(path)
	if err != nil {
		t.Fatalf("файл пропал: %v", err)
	}
	if !after.ModTime().Equal(before.ModTime()) || after.Size() != before.Size() {
		t.Fatalf("файл пропущенного дня изменён")
	}
}

func TestRunBackwardStopsAtFoundingDate(t *testing.T) {
	fs := store.NewFS(t.TempDir())
	// сообщения только в трёх последних днях из десяти
	fetcher := &fakeFetcher{days: map[string]int{"2024-10-10": 4, "2024-10-09": 6, "2024-10-08": 5}}
	b := NewBatcher(fetcher, fs, DefaultOptions(), zerolog.Nop())

	report, err := b.Run(context.Background(), zyn, d("2024-10-01"), d("2024-10-10"), domain.DirectionBackward)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if report.StoppedAt != "2024-10-03" {
		t.Fatalf("ожидали остановку на 2024-10-03, получили %q", report.StoppedAt)
	}
	for _, date := range fetcher.calls {
		if date == "2024-10-02" || date == "2024-10-01" {
			t.Fatalf("день %s не должен загружаться", date)
		}
	}
	if len(report.Empty) != 5 || len(report.NonEmpty) != 3 {
		t.Fatalf("ожидали 5 пустых и 3 непустых, получили %d и %d", len(report.Empty), len(report.NonEmpty))
	}
}

func TestRunForwardIgnoresStopRule(t *testing.T) {
	fs := store.NewFS(t.TempDir())
	fetcher := &fakeFetcher{days: map[string]int{"2024-10-10": 1}}
	b := NewBatcher(fetcher, fs, DefaultOptions(), zerolog.Nop())

	report, err := b.Run(context.Background(), zyn, d("2024-10-01"), d("2024-10-10"), domain.DirectionForward)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if report.StoppedAt != "" || len(fetcher.calls) != 10 {
		t.Fatalf("прямой обход не должен останавливаться: %d загрузок", len(fetcher.calls))
	}
}

func TestRunContinuesAfterDayFailure(t *testing.T) {
	fs := store.NewFS(t.TempDir())
	fetcher := &fakeFetcher{
		days: map[string]int{"2024-10-15": 1, "2024-10-16": 1, "2024-10-17": 1},
		fail: map[string]bool{"2024-10-16": true},
	}
	b := NewBatcher(fetcher, fs, DefaultOptions(), zerolog.Nop())

	report, err := b.Run(context.Background(), zyn, d("2024-10-15"), d("2024-10-17"), domain.DirectionForward)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, ok := report.Failed["2024-10-16"]; !ok {
		t.Fatalf("ожидали ошибку дня 2024-10-16")
	}
	if len(report.NonEmpty) != 2 {
		t.Fatalf("ожидали 2 сохранённых дня, получили %d", len(report.NonEmpty))
	}
	status, err := fs.Status("zyn", "2024-10-16")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if status.State != domain.DayPending {
		t.Fatalf("день с ошибкой должен остаться pending, получили %s", status.State)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	fs := store.NewFS(t.TempDir())
	b := NewBatcher(&fakeFetcher{}, fs, DefaultOptions(), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Run(ctx, zyn, d("2024-10-15"), d("2024-10-17"), domain.DirectionForward); !errors.Is(err, context.Canceled) {
		t.Fatalf("ожидали context.Canceled, получили %v", err)
	}
}

func TestRunRejectsInvertedRange(t *testing.T) {
	b := NewBatcher(&fakeFetcher{}, store.NewFS(t.TempDir()), DefaultOptions(), zerolog.Nop())
	if _, err := b.Run(context.Background(), zyn, d("2024-10-17"), d("2024-10-15"), domain.DirectionForward); !errors.Is(err, ErrEmptyRange) {
		t.Fatalf("ожидали ErrEmptyRange, получили %v", err)
	}
}
