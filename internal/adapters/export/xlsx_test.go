package export

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"tg-meme-pulse/internal/domain"
)

func intensity(v int) domain.Intensity {
	return domain.Intensity{Intensity: &v, Context: "ctx"}
}

func TestWriteXLSX(t *testing.T) {
	doc := domain.RollupDocument{
		ProjectName: "zyn",
		DateData: map[string]domain.RollupDay{
			"2024-10-16": {
				Metrics:   domain.CommunityMetrics{EmotionalMetrics: map[string]domain.Intensity{"vibes": intensity(70)}, Catchphrase: "zyn up", CommunityTheme: "pouches"},
				UserStats: domain.UserStats{MessageCount: 12, UniqueUserCount: 4},
			},
			"2024-10-15": {
				Metrics:   domain.CommunityMetrics{EmotionalMetrics: map[string]domain.Intensity{"vibes": {Context: "нет данных"}}},
				UserStats: domain.UserStats{MessageCount: 5, UniqueUserCount: 2},
			},
		},
	}
	prices := domain.PriceSeries{"2024-10-16": {Open: 1, High: 2, Low: 0.5, Close: 1.5}}

	var buf bytes.Buffer
	if err := WriteXLSX(&buf, doc, prices, []string{"vibes"}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("чтение xlsx: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("строки: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("ожидали заголовок и 2 строки, получили %d", len(rows))
	}
	if diff := cmp.Diff(Header([]string{"vibes"}), rows[0]); diff != "" {
		t.Fatalf("неожиданный заголовок:\n%s", diff)
	}
	// день без оценки и без цены: пустые ячейки
	if diff := cmp.Diff([]string{"2024-10-15", "5", "2"}, rows[1][:3]); diff != "" {
		t.Fatalf("неожиданная первая строка:\n%s", diff)
	}
	for _, cell := range rows[1][3:] {
		if cell != "" {
			t.Fatalf("ожидали пустые ячейки, получили %q", rows[1])
		}
	}
	want := []string{"2024-10-16", "12", "4", "70", "1", "2", "0.5", "1.5", "zyn up", "pouches"}
	if diff := cmp.Diff(want, rows[2]); diff != "" {
		t.Fatalf("неожиданная вторая строка:\n%s", diff)
	}
}

func TestFileExporterPath(t *testing.T) {
	root := t.TempDir()
	e := NewFileExporter(root, []string{"vibes"})
	doc := domain.RollupDocument{ProjectName: "zyn", ClassifierVersion: "openai/gpt-4o", SchemaVersion: "v1"}
	path, err := e.Export(context.Background(), doc, nil)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	want := filepath.Join(root, "zyn", "zyn_llm=openai_gpt-4o_prompt=v1.xlsx")
	if path != want {
		t.Fatalf("ожидали %s, получили %s", want, path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("файл не создан: %v", err)
	}
}
