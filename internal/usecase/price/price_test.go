package price

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"tg-meme-pulse/internal/adapters/store"
	"tg-meme-pulse/internal/domain"
)

type fakeSource struct {
	from, to time.Time
	coin     string
}

func (f *fakeSource) DailyOHLC(_ context.Context, coinID string, from, to time.Time) (domain.PriceSeries, error) {
	f.coin, f.from, f.to = coinID, from, to
	return domain.PriceSeries{"2024-10-15": {Open: 1, High: 2, Low: 0.5, Close: 1.5}}, nil
}

func seedDay(t *testing.T, fs *store.FS, date string, n int) {
	t.Helper()
	var msgs []domain.Message
	for i := 0; i < n; i++ {
		msgs = append(msgs, domain.Message{ID: i + 1, Date: date + " 10:00", User: "@a", Text: "gm"})
	}
	if _, err := fs.SaveDay(domain.DayRecord{Project: "zyn", Date: date, Raw: msgs, Filtered: msgs}, time.Now()); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestFetchDefaultsToStoredRange(t *testing.T) {
	fs := store.NewFS(t.TempDir())
	seedDay(t, fs, "2024-10-10", 0)
	seedDay(t, fs, "2024-10-12", 3)
	seedDay(t, fs, "2024-10-15", 1)
	seedDay(t, fs, "2024-10-20", 0)
	src := &fakeSource{}
	svc := NewService(src, fs, nil, zerolog.Nop())

	project := domain.Project{Name: "zyn", CoinGeckoID: "zyn-coin"}
	if _, err := svc.Fetch(context.Background(), project, time.Time{}, time.Time{}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if src.coin != "zyn-coin" || domain.FormatDate(src.from) != "2024-10-12" || domain.FormatDate(src.to) != "2024-10-15" {
		t.Fatalf("неожиданный запрос: %s %s..%s", src.coin, src.from, src.to)
	}
	saved, err := fs.LoadPrices("zyn")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if saved["2024-10-15"].Close != 1.5 {
		t.Fatalf("неожиданные цены: %+v", saved)
	}
}

func TestFetchRequiresCoinAndDays(t *testing.T) {
	svc := NewService(&fakeSource{}, store.NewFS(t.TempDir()), nil, zerolog.Nop())
	if _, err := svc.Fetch(context.Background(), domain.Project{Name: "zyn"}, time.Time{}, time.Time{}); !errors.Is(err, ErrNoCoin) {
		t.Fatalf("ожидали ErrNoCoin, получили %v", err)
	}
	if _, err := svc.Fetch(context.Background(), domain.Project{Name: "zyn", CoinGeckoID: "z"}, time.Time{}, time.Time{}); !errors.Is(err, ErrNoDays) {
		t.Fatalf("ожидали ErrNoDays, получили %v", err)
	}
}

func TestAlignLeavesGaps(t *testing.T) {
	rollup := domain.RollupDocument{DateData: map[string]domain.RollupDay{
		"2024-10-17": {}, "2024-10-15": {},
	}}
	prices := domain.PriceSeries{
		"2024-10-15": {Open: 1, High: 1, Low: 1, Close: 1},
		"2024-10-17": {Open: 3, High: 3, Low: 3, Close: 3},
		"2024-10-30": {Open: 9, High: 9, Low: 9, Close: 9},
	}
	one, three := prices["2024-10-15"], prices["2024-10-17"]
	want := []Point{
		{Date: "2024-10-15", Price: &one},
		// дня нет ни в свёртке, ни в ценах, но он остаётся на оси
		{Date: "2024-10-16"},
		{Date: "2024-10-17", Price: &three},
	}
	if diff := cmp.Diff(want, Align(rollup, prices)); diff != "" {
		t.Fatalf("выравнивание отличается:\n%s", diff)
	}
}
