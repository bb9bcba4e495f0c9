package rollup

import (
	"bytes"
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

var version = domain.Version{Classifier: "gpt-4o-mini", Schema: "v1"}

func classified(t *testing.T, fs *store.FS, date string, v domain.Version, users int) {
	t.Helper()
	n := 70
	if err := fs.SaveClassified(domain.ClassifiedDay{
		Project:           "zyn",
		Date:              date,
		ClassifierVersion: v.Classifier,
		SchemaVersion:     v.Schema,
		ClassifiedAt:      time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC),
		Metrics: domain.CommunityMetrics{
			EmotionalMetrics: map[string]domain.Intensity{"vibes": {Intensity: &n, Context: "good"}, "fairness": {Context: "no signal"}},
			Catchphrase:      "wagmi",
			CommunityTheme:   "pouches",
		},
		UserStats: domain.UserStats{UniqueUserCount: users, MessageCount: users * 2},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

type fakeMirror struct {
	docs []domain.RollupDocument
	err  error
}

func (m *fakeMirror) UpsertRollup(_ context.Context, doc domain.RollupDocument) error {
	m.docs = append(m.docs, doc)
	return m.err
}

func (m *fakeMirror) UpsertPrices(context.Context, string, domain.PriceSeries) error { return nil }

func TestBuildCollectsMatchingVersion(t *testing.T) {
	fs := store.NewFS(t.TempDir())
	classified(t, fs, "2024-10-17", version, 3)
	classified(t, fs, "2024-10-15", version, 2)
	classified(t, fs, "2024-10-16", domain.Version{Classifier: "other", Schema: "v1"}, 9)
	if err := os.MkdirAll(fs.ProjectDir("zyn")+"/notes", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	mirror := &fakeMirror{err: errors.New("pg down")}
	b := NewBuilder(fs, mirror, zerolog.Nop())

	doc, err := b.Build(context.Background(), "zyn", version)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	var dates []string
	for d := range doc.DateData {
		dates = append(dates, d)
	}
	if len(dates) != 2 || doc.DateData["2024-10-15"].UserStats.UniqueUserCount != 2 || doc.DateData["2024-10-17"].UserStats.UniqueUserCount != 3 {
		t.Fatalf("неожиданные дни: %+v", doc.DateData)
	}
	if len(mirror.docs) != 1 {
		t.Fatalf("ожидали обновление зеркала")
	}
	loaded, err := fs.LoadRollup("zyn", version)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if diff := cmp.Diff(doc.DateData, loaded.DateData); diff != "" {
		t.Fatalf("записанная свёртка отличается:\n%s", diff)
	}
}

func TestBuildIsIdempotent(t *testing.T) {
	fs := store.NewFS(t.TempDir())
	classified(t, fs, "2024-10-15", version, 2)
	classified(t, fs, "2024-10-16", version, 4)
	b := NewBuilder(fs, nil, zerolog.Nop())
	fixed := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	if _, err := b.Build(context.Background(), "zyn", version); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	first, err := os.ReadFile(fs.RollupPath("zyn", version))
	if err != nil {
		t.Fatalf("чтение: %v", err)
	}
	if _, err := b.Build(context.Background(), "zyn", version); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	second, err := os.ReadFile(fs.RollupPath("zyn", version))
	if err != nil {
		t.Fatalf("чтение: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("повторная свёртка отличается")
	}
}

func TestBuildEmptyProject(t *testing.T) {
	b := NewBuilder(store.NewFS(t.TempDir()), nil, zerolog.Nop())
	doc, err := b.Build(context.Background(), "ghost", version)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(doc.DateData) != 0 {
		t.Fatalf("ожидали пустую свёртку")
	}
}

// missingStore отвечает ErrNotFound домена на дни из missing.
type missingStore struct {
	*store.FS
	missing map[string]bool
}

func (s missingStore) LoadClassified(project, date string, v domain.Version) (domain.ClassifiedDay, error) {
	if s.missing[date] {
		return domain.ClassifiedDay{}, fmt.Errorf("%s %s: %w", project, date, domain.ErrNotFound)
	}
	return s.FS.LoadClassified(project, date, v)
}

func TestBuildSkipsDaysNotFoundInAnyStore(t *testing.T) {
	fs := store.NewFS(t.TempDir())
	classified(t, fs, "2024-10-15", version, 2)
	classified(t, fs, "2024-10-16", version, 5)
	b := NewBuilder(missingStore{FS: fs, missing: map[string]bool{"2024-10-16": true}}, nil, zerolog.Nop())

	doc, err := b.Build(context.Background(), "zyn", version)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, ok := doc.DateData["2024-10-16"]; ok || len(doc.DateData) != 1 {
		t.Fatalf("день без документа должен быть пропущен: %+v", doc.DateData)
	}
}
