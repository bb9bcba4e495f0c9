package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"tg-meme-pulse/internal/domain"
	"tg-meme-pulse/internal/usecase/batch"
	"tg-meme-pulse/internal/usecase/classify"
)

// RunReport — итог прогона одного проекта.
type RunReport struct {
	JobID      string
	Project    string
	From       time.Time
	To         time.Time
	Started    time.Time
	Finished   time.Time
	Fetch      *batch.Report
	Classify   *classify.Report
	RollupDays int
	PriceDays  int
	Exported   string
	Errors     map[domain.Stage]error
	// Err — ошибка, из-за которой прогон не выполнен (заполняется в RunAll).
	Err error
}

// Failed сообщает, были ли ошибки этапов или прогона.
func (r RunReport) Failed() bool {
	return r.Err != nil || len(r.Errors) > 0
}

// Text форматирует отчёт для отправки в Telegram.
func (r RunReport) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Проект %s, %s..%s\n", r.Project, domain.FormatDate(r.From), domain.FormatDate(r.To))
	if r.Err != nil {
		fmt.Fprintf(&b, "Прогон не выполнен: %v\n", r.Err)
		return b.String()
	}
	if f := r.Fetch; f != nil {
		fmt.Fprintf(&b, "Загрузка: новых %d, пустых %d, пропущено %d, ошибок %d", len(f.NonEmpty), len(f.Empty), len(f.Skipped), len(f.Failed))
		if len(f.Truncated) > 0 {
			fmt.Fprintf(&b, ", усечено %d", len(f.Truncated))
		}
		if f.StoppedAt != "" {
			fmt.Fprintf(&b, ", начало истории %s", f.StoppedAt)
		}
		b.WriteString("\n")
	}
	if c := r.Classify; c != nil {
		fmt.Fprintf(&b, "Классификация: %d, уже было %d, мало сообщений %d, отклонено %d, ошибок %d\n",
			len(c.Classified), len(c.AlreadyDone), len(c.TooFew), len(c.SchemaErrors), len(c.Failed))
	}
	if r.RollupDays > 0 {
		fmt.Fprintf(&b, "Свёртка: %d дней\n", r.RollupDays)
	}
	if r.PriceDays > 0 {
		fmt.Fprintf(&b, "Цены: %d дней\n", r.PriceDays)
	}
	if r.Exported != "" {
		fmt.Fprintf(&b, "Выгрузка: %s\n", r.Exported)
	}
	stages := make([]string, 0, len(r.Errors))
	for stage := range r.Errors {
		stages = append(stages, string(stage))
	}
	sort.Strings(stages)
	for _, stage := range stages {
		fmt.Fprintf(&b, "Ошибка %s: %v\n", stage, r.Errors[domain.Stage(stage)])
	}
	if !r.Finished.IsZero() {
		fmt.Fprintf(&b, "Время: %s\n", r.Finished.Sub(r.Started).Round(time.Second))
	}
	return b.String()
}
