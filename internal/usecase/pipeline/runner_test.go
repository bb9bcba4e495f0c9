package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"tg-meme-pulse/internal/adapters/lock"
	"tg-meme-pulse/internal/adapters/store"
	"tg-meme-pulse/internal/adapters/tokenizer"
	"tg-meme-pulse/internal/domain"
	"tg-meme-pulse/internal/infra/projects"
	"tg-meme-pulse/internal/usecase/batch"
	"tg-meme-pulse/internal/usecase/classify"
	"tg-meme-pulse/internal/usecase/rollup"
	"tg-meme-pulse/internal/usecase/series"
)

type fakeFetcher struct {
	days map[string]int
}

func (f *fakeFetcher) FetchDay(_ context.Context, _ string, day time.Time) (domain.DayRecord, error) {
	date := domain.FormatDate(day)
	var msgs []domain.Message
	for i := 0; i < f.days[date]; i++ {
		msgs = append(msgs, domain.Message{ID: i + 1, Date: date + " 10:00", User: fmt.Sprintf("@u%d", i%3), Text: fmt.Sprintf("gm %d", i)})
	}
	return domain.DayRecord{Date: date, Raw: msgs, Filtered: msgs}, nil
}

type fakeClassifier struct {
	mu    sync.Mutex
	calls int
}

func (c *fakeClassifier) Version() domain.Version {
	return domain.Version{Classifier: "gpt-4o-mini", Schema: "v1"}
}

func (c *fakeClassifier) Classify(context.Context, string) (domain.CommunityMetrics, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	n := 55
	return domain.CommunityMetrics{
		EmotionalMetrics: map[string]domain.Intensity{"vibes": {Intensity: &n, Context: "бодро"}},
		Catchphrase:      "gm",
		CommunityTheme:   "утро",
	}, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *fakeNotifier) Notify(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return nil
}

type fakeExporter struct {
	mu   sync.Mutex
	docs []domain.RollupDocument
}

func (e *fakeExporter) Export(_ context.Context, doc domain.RollupDocument, _ domain.PriceSeries) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.docs = append(e.docs, doc)
	return "/tmp/" + doc.ProjectName + ".xlsx", nil
}

const registry = `
zyn:
  source: "@zynchat"
pepe:
  source: "@pepechat"
`

type env struct {
	runner     *Runner
	fs         *store.FS
	classifier *fakeClassifier
	notifier   *fakeNotifier
	exporter   *fakeExporter
	locker     *lock.File
}

func newEnv(t *testing.T, days map[string]int) env {
	t.Helper()
	root := t.TempDir()
	fs := store.NewFS(root)
	reg, err := projects.Parse([]byte(registry))
	if err != nil {
		t.Fatalf("реестр: %v", err)
	}
	cls := &fakeClassifier{}
	notifier := &fakeNotifier{}
	exporter := &fakeExporter{}
	locker := lock.NewFile(root)
	runner := NewRunner(Deps{
		Registry:   reg,
		Store:      fs,
		Locker:     locker,
		Batcher:    batch.NewBatcher(&fakeFetcher{days: days}, fs, batch.DefaultOptions(), zerolog.Nop()),
		Classifier: classify.NewService(fs, cls, tokenizer.Words{}, classify.Options{TokenCeiling: 10000, MinMessages: 5}, zerolog.Nop()),
		Rollup:     rollup.NewBuilder(fs, nil, zerolog.Nop()),
		Export:     exporter,
		Notifier:   notifier,
	}, zerolog.Nop())
	return env{runner: runner, fs: fs, classifier: cls, notifier: notifier, exporter: exporter, locker: locker}
}

func date(s string) time.Time {
	t, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestRunEndToEnd(t *testing.T) {
	e := newEnv(t, map[string]int{"2024-10-16": 6, "2024-10-17": 2, "2024-10-18": 7, "2024-10-20": 5})
	job := domain.IngestJob{Project: "zyn", From: date("2024-10-15"), To: date("2024-10-21"), Direction: domain.DirectionForward}

	report, err := e.runner.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if report.Failed() {
		t.Fatalf("не ожидали ошибок этапов: %v", report.Errors)
	}
	if report.JobID == "" {
		t.Fatalf("ожидали идентификатор задачи")
	}

	doc, err := e.fs.LoadRollup("zyn", e.classifier.Version())
	if err != nil {
		t.Fatalf("свёртка не записана: %v", err)
	}
	if diff := cmp.Diff([]string{"2024-10-16", "2024-10-18", "2024-10-20"}, series.Dates(doc)); diff != "" {
		t.Fatalf("неожиданные даты свёртки:\n%s", diff)
	}
	if doc.DateData["2024-10-18"].UserStats.MessageCount != 7 {
		t.Fatalf("неожиданная статистика: %+v", doc.DateData["2024-10-18"].UserStats)
	}
	if diff := cmp.Diff([]string{"2024-10-17"}, report.Classify.TooFew); diff != "" {
		t.Fatalf("неожиданные малые дни:\n%s", diff)
	}
	if len(e.exporter.docs) != 1 || report.Exported == "" {
		t.Fatalf("ожидали выгрузку")
	}
	if len(e.notifier.texts) != 1 || !strings.Contains(e.notifier.texts[0], "Свёртка: 3 дней") {
		t.Fatalf("неожиданный отчёт: %q", e.notifier.texts)
	}

	// повторный прогон не загружает и не классифицирует заново
	calls := e.classifier.calls
	again, err := e.runner.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if e.classifier.calls != calls || len(again.Fetch.Skipped) != 4 {
		t.Fatalf("повторный прогон должен пропускать готовые дни: %d вызовов, %v пропусков", e.classifier.calls-calls, again.Fetch.Skipped)
	}
}

func TestRunOnlySelectedStages(t *testing.T) {
	e := newEnv(t, map[string]int{"2024-10-16": 6})
	job := domain.IngestJob{Project: "zyn", From: date("2024-10-16"), To: date("2024-10-16"), Stages: []domain.Stage{domain.StageFetch}}
	report, err := e.runner.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if report.Classify != nil || e.classifier.calls != 0 || len(e.exporter.docs) != 0 {
		t.Fatalf("выполнены лишние этапы")
	}
	if _, err := e.fs.LoadRollup("zyn", e.classifier.Version()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("свёртка не должна создаваться, получили %v", err)
	}
}

func TestRunSkipsLockedProject(t *testing.T) {
	e := newEnv(t, nil)
	unlock, err := e.locker.Lock(context.Background(), "zyn")
	if err != nil {
		t.Fatalf("блокировка: %v", err)
	}
	defer unlock()
	_, err = e.runner.Run(context.Background(), domain.IngestJob{Project: "zyn", From: date("2024-10-16"), To: date("2024-10-16")})
	if !errors.Is(err, domain.ErrLocked) {
		t.Fatalf("ожидали ErrLocked, получили %v", err)
	}
}

func TestRunAllKeepsGoingAfterProjectFailure(t *testing.T) {
	e := newEnv(t, map[string]int{"2024-10-16": 6})
	jobs := JobsFor([]domain.Project{{Name: "zyn"}, {Name: "ghost"}, {Name: "pepe"}}, date("2024-10-16"), date("2024-10-16"), domain.DirectionForward, nil, false, time.Now())

	reports, err := e.runner.RunAll(context.Background(), jobs, 2)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("ожидали 3 отчёта, получили %d", len(reports))
	}
	if reports[0].Failed() || reports[2].Failed() {
		t.Fatalf("проекты zyn и pepe должны пройти: %v %v", reports[0].Errors, reports[2].Errors)
	}
	if reports[1].Err == nil {
		t.Fatalf("ожидали ошибку неизвестного проекта")
	}
	for _, p := range []string{"zyn", "pepe"} {
		if _, err := e.fs.LoadRollup(p, e.classifier.Version()); err != nil {
			t.Fatalf("нет свёртки %s: %v", p, err)
		}
	}
}
