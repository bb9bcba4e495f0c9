package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tg-meme-pulse/internal/domain"
)

// FileExporter пишет xlsx рядом с данными проекта.
type FileExporter struct {
	root        string
	metricNames []string
}

// NewFileExporter создаёт экспорт в каталог root/<project>.
func NewFileExporter(root string, metricNames []string) *FileExporter {
	return &FileExporter{root: root, metricNames: metricNames}
}

// Path возвращает путь выгрузки для проекта и пары версий.
func (e *FileExporter) Path(project string, v domain.Version) string {
	name := fmt.Sprintf("%s_llm=%s_prompt=%s.xlsx", project, safe(v.Classifier), safe(v.Schema))
	return filepath.Join(e.root, project, name)
}

// Export записывает таблицу и возвращает путь к файлу.
func (e *FileExporter) Export(_ context.Context, doc domain.RollupDocument, prices domain.PriceSeries) (string, error) {
	path := e.Path(doc.ProjectName, domain.Version{Classifier: doc.ClassifierVersion, Schema: doc.SchemaVersion})
	if err := WriteFile(path, doc, prices, e.metricNames); err != nil {
		return "", err
	}
	return path, nil
}

// WriteFile атомарно пишет xlsx по пути path.
func WriteFile(path string, doc domain.RollupDocument, prices domain.PriceSeries, metricNames []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("создание каталога: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*")
	if err != nil {
		return fmt.Errorf("временный файл: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := WriteXLSX(tmp, doc, prices, metricNames); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("закрытие %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("переименование %s: %w", path, err)
	}
	return nil
}

func safe(s string) string {
	return strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(s)
}
