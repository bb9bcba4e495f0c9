package domain

import (
	"time"
)

// DateLayout формат ключа календарного дня (UTC).
const DateLayout = "2006-01-02"

// MessageTimeLayout формат времени сообщения с точностью до минуты.
const MessageTimeLayout = "2006-01-02 15:04"

// Project описывает отслеживаемое сообщество.
type Project struct {
	Name            string
	Source          string
	Chain           string
	ContractAddress string
	CoinGeckoID     string
	Healthy         bool
}

// SourceMessage — сообщение в том виде, в каком его отдаёт источник истории.
// Service отмечает служебные записи (вступления, закрепы, удалённые): текста в них нет,
// но они занимают место в странице и двигают offset.
type SourceMessage struct {
	ID      int
	Time    time.Time
	Sender  string
	Bot     bool
	Text    string
	Service bool
}

// Message — запись сообщения в файлах дня.
type Message struct {
	ID   int    `json:"id,omitempty"`
	Date string `json:"date"`
	User string `json:"user"`
	Text string `json:"message"`
	Bot  bool   `json:"bot,omitempty"`
}

// DayRecord хранит сырые и отфильтрованные сообщения за один день.
type DayRecord struct {
	Project   string
	Date      string
	Raw       []Message
	Filtered  []Message
	Truncated bool
}

// DayFile — формат файлов <project>_{raw|filtered}_<date>.json.
type DayFile struct {
	Discussions []Message `json:"discussions"`
	Truncated   bool      `json:"truncated,omitempty"`
}

// DayState описывает стадию обработки дня.
type DayState string

const (
	// DayPending — день ещё не загружен.
	DayPending DayState = "pending"
	// DayFetchedEmpty — день загружен, сообщений после фильтрации нет.
	DayFetchedEmpty DayState = "fetched-empty"
	// DayFetchedNonEmpty — день загружен и содержит сообщения.
	DayFetchedNonEmpty DayState = "fetched-nonempty"
	// DayClassified — день классифицирован хотя бы одной версией классификатора.
	DayClassified DayState = "classified"
)

// HasMessages сообщает, что данные дня уже сохранены и не пусты.
func (s DayState) HasMessages() bool {
	return s == DayFetchedNonEmpty || s == DayClassified
}

// Classification отмечает версию классификатора, которой обработан день.
type Classification struct {
	ClassifierVersion string    `json:"classifier_version"`
	SchemaVersion     string    `json:"schema_version"`
	ClassifiedAt      time.Time `json:"classified_at"`
}

// DayStatus — статус дня, хранится рядом с данными.
type DayStatus struct {
	Date            string           `json:"date"`
	State           DayState         `json:"state"`
	RawCount        int              `json:"raw_count"`
	FilteredCount   int              `json:"filtered_count"`
	Truncated       bool             `json:"truncated,omitempty"`
	FetchedAt       time.Time        `json:"fetched_at"`
	Classifications []Classification `json:"classifications,omitempty"`
}

// ClassifiedWith сообщает, есть ли классификация для пары версий.
func (s DayStatus) ClassifiedWith(classifierVersion, schemaVersion string) bool {
	for _, c := range s.Classifications {
		if c.ClassifierVersion == classifierVersion && c.SchemaVersion == schemaVersion {
			return true
		}
	}
	return false
}

// Version идентифицирует классификатор и схему ответа.
type Version struct {
	Classifier string
	Schema     string
}

// Intensity — ограниченная оценка 0–100 с пояснением.
type Intensity struct {
	Intensity *int   `json:"intensity"`
	Context   string `json:"context"`
}

// TopLineMetrics — сводка журнала дня в оценке классификатора.
// Любое поле может быть null, если модель не смогла его определить.
type TopLineMetrics struct {
	MessageCount      *int    `json:"message_count"`
	MessageCountExBot *int    `json:"message_count_ex_bot"`
	DateMin           *string `json:"date_min"`
	DateMax           *string `json:"date_max"`
	UserCount         *int    `json:"user_count"`
	UserCountExBot    *int    `json:"user_count_ex_bot"`
}

// Reference — часто упоминаемый проект или аккаунт.
type Reference struct {
	Description    *string `json:"description"`
	Topic          *string `json:"topic"`
	ReferenceCount *int    `json:"reference_count"`
	URL            *string `json:"url"`
	CA             *string `json:"ca"`
}

// CommunityMetrics — структурированный ответ классификатора.
// Ссылки на проекты и аккаунты упорядочены по популярности.
type CommunityMetrics struct {
	Message          *TopLineMetrics      `json:"message,omitempty"`
	EmotionalMetrics map[string]Intensity `json:"emotional_metrics"`
	ProjectReference []Reference          `json:"project_reference,omitempty"`
	SocialReference  []Reference          `json:"social_reference,omitempty"`
	Catchphrase      string               `json:"catchphrase"`
	CommunityTheme   string               `json:"community_theme"`
}

// AccountMention — внешний профиль и количество упоминаний.
type AccountMention struct {
	URL   string `json:"url"`
	Count int    `json:"count"`
}

// UserStats — статистика, посчитанная локально без классификатора.
type UserStats struct {
	UniqueUserCount      int              `json:"unique_user_count"`
	MessageCount         int              `json:"message_count"`
	TopMentionedAccounts []AccountMention `json:"top_mentioned_accounts"`
}

// InputStats описывает, что именно ушло в классификатор.
type InputStats struct {
	MessageCount   int  `json:"message_count"`
	SubmittedCount int  `json:"submitted_count"`
	Tokens         int  `json:"tokens"`
	Truncated      bool `json:"truncated"`
	PartialDay     bool `json:"partial_day,omitempty"`
}

// ClassifiedDay — итог классификации одного дня. Не изменяется после записи.
type ClassifiedDay struct {
	Project           string           `json:"project"`
	Date              string           `json:"date"`
	ClassifierVersion string           `json:"classifier_version"`
	SchemaVersion     string           `json:"schema_version"`
	ClassifiedAt      time.Time        `json:"classified_at"`
	Input             InputStats       `json:"input"`
	Metrics           CommunityMetrics `json:"metrics"`
	UserStats         UserStats        `json:"user_stats"`
}

// RollupDay — значение дня в свёртке проекта.
type RollupDay struct {
	Metrics   CommunityMetrics `json:"metrics"`
	UserStats UserStats        `json:"user_stats"`
}

// RollupDocument — упорядоченный временной ряд классифицированных дней.
type RollupDocument struct {
	ProjectName       string               `json:"project_name"`
	ClassifierVersion string               `json:"classifier_version"`
	SchemaVersion     string               `json:"schema_version"`
	GeneratedAt       time.Time            `json:"generated_at"`
	DateData          map[string]RollupDay `json:"date_data"`
}

// OHLC — дневная свеча.
type OHLC struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// PriceSeries — дневные свечи по ключу даты.
type PriceSeries map[string]OHLC

// FormatDate возвращает ключ дня в UTC.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDate разбирает ключ дня как полночь UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// DayStart приводит момент времени к началу его дня в UTC.
func DayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// CalendarDays возвращает каждый календарный день от самой ранней до самой поздней
// даты набора, включая дни, которых в наборе нет. Некорректные ключи пропускаются.
func CalendarDays(dates []string) []string {
	var first, last time.Time
	for _, d := range dates {
		t, err := ParseDate(d)
		if err != nil {
			continue
		}
		if first.IsZero() || t.Before(first) {
			first = t
		}
		if last.IsZero() || t.After(last) {
			last = t
		}
	}
	if first.IsZero() {
		return nil
	}
	out := make([]string, 0, int(last.Sub(first).Hours()/24)+1)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		out = append(out, FormatDate(d))
	}
	return out
}
