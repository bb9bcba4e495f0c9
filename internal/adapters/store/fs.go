package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"tg-meme-pulse/internal/domain"
)

// ErrNotFound возвращается, если запрошенного файла нет.
var ErrNotFound = domain.ErrNotFound

const statusFile = "status.json"

// FS хранит состояние проектов в дереве каталогов
// <root>/<project>/<YYYY-MM-DD>/<project>_{raw|filtered}_<date>.json.
type FS struct {
	root string
}

var _ domain.DayStore = (*FS)(nil)

// NewFS создаёт хранилище с корнем root.
func NewFS(root string) *FS {
	return &FS{root: root}
}

// Root возвращает корневой каталог.
func (s *FS) Root() string { return s.root }

// ProjectDir возвращает каталог проекта.
func (s *FS) ProjectDir(project string) string {
	return filepath.Join(s.root, project)
}

func (s *FS) dayDir(project, date string) string {
	return filepath.Join(s.root, project, date)
}

// RawPath возвращает путь к файлу сырых сообщений.
func (s *FS) RawPath(project, date string) string {
	return filepath.Join(s.dayDir(project, date), fmt.Sprintf("%s_raw_%s.json", project, date))
}

// FilteredPath возвращает путь к файлу отфильтрованных сообщений.
func (s *FS) FilteredPath(project, date string) string {
	return filepath.Join(s.dayDir(project, date), fmt.Sprintf("%s_filtered_%s.json", project, date))
}

// ClassifiedPath возвращает путь к документу классификации для пары версий.
func (s *FS) ClassifiedPath(project, date string, v domain.Version) string {
	name := fmt.Sprintf("%s_filtered_%s_llm=%s_prompt=%s.json", project, date, versionPart(v.Classifier), versionPart(v.Schema))
	return filepath.Join(s.dayDir(project, date), name)
}

// RejectedPath возвращает путь к сырому ответу, не прошедшему проверку схемы.
func (s *FS) RejectedPath(project, date string, v domain.Version) string {
	return strings.TrimSuffix(s.ClassifiedPath(project, date, v), ".json") + ".rejected.txt"
}

// RollupPath возвращает путь к свёртке проекта.
func (s *FS) RollupPath(project string, v domain.Version) string {
	name := fmt.Sprintf("%s_llm=%s_prompt=%s_rollup.json", project, versionPart(v.Classifier), versionPart(v.Schema))
	return filepath.Join(s.ProjectDir(project), name)
}

// PricePath возвращает путь к ценам проекта.
func (s *FS) PricePath(project string) string {
	return filepath.Join(s.ProjectDir(project), project+"_price.json")
}

func versionPart(v string) string {
	return strings.NewReplacer("/", "-", "\\", "-", " ", "_").Replace(v)
}

// Status возвращает статус дня. Для каталогов без status.json статус
// восстанавливается по наличию файла отфильтрованных сообщений.
func (s *FS) Status(project, date string) (domain.DayStatus, error) {
	var status domain.DayStatus
	err := readJSON(filepath.Join(s.dayDir(project, date), statusFile), &status)
	if err == nil {
		return status, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return domain.DayStatus{}, err
	}
	var file domain.DayFile
	err = readJSON(s.FilteredPath(project, date), &file)
	if errors.Is(err, ErrNotFound) {
		return domain.DayStatus{Date: date, State: domain.DayPending}, nil
	}
	if err != nil {
		return domain.DayStatus{}, err
	}
	state := domain.DayFetchedEmpty
	if len(file.Discussions) > 0 {
		state = domain.DayFetchedNonEmpty
	}
	return domain.DayStatus{Date: date, State: state, FilteredCount: len(file.Discussions), Truncated: file.Truncated}, nil
}

// SaveStatus перезаписывает статус дня.
func (s *FS) SaveStatus(project string, status domain.DayStatus) error {
	return writeJSON(filepath.Join(s.dayDir(project, status.Date), statusFile), status)
}

// SaveDay записывает файлы дня и его статус. Пустой день получает только статус.
func (s *FS) SaveDay(record domain.DayRecord, fetchedAt time.Time) (domain.DayStatus, error) {
	if len(record.Raw) > 0 {
		raw := domain.DayFile{Discussions: record.Raw, Truncated: record.Truncated}
		if err := writeJSON(s.RawPath(record.Project, record.Date), raw); err != nil {
			return domain.DayStatus{}, err
		}
		filtered := domain.DayFile{Discussions: nonNil(record.Filtered), Truncated: record.Truncated}
		if err := writeJSON(s.FilteredPath(record.Project, record.Date), filtered); err != nil {
			return domain.DayStatus{}, err
		}
	}
	state := domain.DayFetchedEmpty
	if len(record.Filtered) > 0 {
		state = domain.DayFetchedNonEmpty
	}
	status := domain.DayStatus{
		Date:          record.Date,
		State:         state,
		RawCount:      len(record.Raw),
		FilteredCount: len(record.Filtered),
		Truncated:     record.Truncated,
		FetchedAt:     fetchedAt.UTC(),
	}
	if err := s.SaveStatus(record.Project, status); err != nil {
		return domain.DayStatus{}, err
	}
	return status, nil
}

// LoadFiltered читает отфильтрованные сообщения дня.
func (s *FS) LoadFiltered(project, date string) (domain.DayFile, error) {
	var file domain.DayFile
	if err := readJSON(s.FilteredPath(project, date), &file); err != nil {
		return domain.DayFile{}, err
	}
	return file, nil
}

// ListDays возвращает каталоги дней проекта в порядке возрастания.
func (s *FS) ListDays(project string) ([]string, error) {
	entries, err := os.ReadDir(s.ProjectDir(project))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("чтение каталога проекта: %w", err)
	}
	var days []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := domain.ParseDate(e.Name()); err != nil {
			continue
		}
		days = append(days, e.Name())
	}
	sort.Strings(days)
	return days, nil
}

// ListProjects возвращает каталоги проектов.
func (s *FS) ListProjects() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("чтение корня данных: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// SaveClassified записывает документ классификации целиком и отмечает версию в статусе.
func (s *FS) SaveClassified(day domain.ClassifiedDay) error {
	v := domain.Version{Classifier: day.ClassifierVersion, Schema: day.SchemaVersion}
	if err := writeJSON(s.ClassifiedPath(day.Project, day.Date, v), day); err != nil {
		return err
	}
	status, err := s.Status(day.Project, day.Date)
	if err != nil {
		return err
	}
	kept := status.Classifications[:0]
	for _, c := range status.Classifications {
		if c.ClassifierVersion == v.Classifier && c.SchemaVersion == v.Schema {
			continue
		}
		kept = append(kept, c)
	}
	status.Classifications = append(kept, domain.Classification{
		ClassifierVersion: v.Classifier,
		SchemaVersion:     v.Schema,
		ClassifiedAt:      day.ClassifiedAt.UTC(),
	})
	status.Date = day.Date
	status.State = domain.DayClassified
	return s.SaveStatus(day.Project, status)
}

// LoadClassified читает документ классификации для пары версий.
func (s *FS) LoadClassified(project, date string, v domain.Version) (domain.ClassifiedDay, error) {
	var day domain.ClassifiedDay
	if err := readJSON(s.ClassifiedPath(project, date, v), &day); err != nil {
		return domain.ClassifiedDay{}, err
	}
	return day, nil
}

// SaveRejected сохраняет сырой ответ классификатора для диагностики.
func (s *FS) SaveRejected(project, date string, v domain.Version, raw string) error {
	return writeFile(s.RejectedPath(project, date, v), []byte(raw))
}

// SaveRollup записывает свёртку проекта.
func (s *FS) SaveRollup(doc domain.RollupDocument) error {
	v := domain.Version{Classifier: doc.ClassifierVersion, Schema: doc.SchemaVersion}
	return writeJSON(s.RollupPath(doc.ProjectName, v), doc)
}

// LoadRollup читает свёртку проекта.
func (s *FS) LoadRollup(project string, v domain.Version) (domain.RollupDocument, error) {
	var doc domain.RollupDocument
	if err := readJSON(s.RollupPath(project, v), &doc); err != nil {
		return domain.RollupDocument{}, err
	}
	return doc, nil
}

// SavePrices записывает дневные свечи проекта.
func (s *FS) SavePrices(project string, prices domain.PriceSeries) error {
	if prices == nil {
		prices = domain.PriceSeries{}
	}
	return writeJSON(s.PricePath(project), prices)
}

// LoadPrices читает дневные свечи проекта.
func (s *FS) LoadPrices(project string) (domain.PriceSeries, error) {
	prices := domain.PriceSeries{}
	if err := readJSON(s.PricePath(project), &prices); err != nil {
		return nil, err
	}
	return prices, nil
}

func nonNil(messages []domain.Message) []domain.Message {
	if messages == nil {
		return []domain.Message{}
	}
	return messages
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("чтение %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("разбор %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("кодирование %s: %w", path, err)
	}
	return writeFile(path, buf.Bytes())
}

// writeFile пишет файл через временный файл и rename в том же каталоге.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("создание каталога %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("временный файл: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("запись %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("закрытие %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("переименование %s: %w", path, err)
	}
	return nil
}
