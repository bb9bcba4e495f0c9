package classifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"tg-meme-pulse/internal/domain"
)

// SchemaName — имя схемы в response_format.
const SchemaName = "community_metrics"

// Число мест в блоках ссылок на проекты и аккаунты.
const (
	ProjectReferenceSlots = 4
	SocialReferenceSlots  = 8

	projectReferencePrefix = "project_reference_"
	socialReferencePrefix  = "social_reference_"
)

// SchemaError — ответ классификатора, не прошедший проверку схемы.
type SchemaError struct {
	Raw    string
	Reason string
}

func (e *SchemaError) Error() string {
	return "ответ не соответствует схеме: " + e.Reason
}

// Schema возвращает JSON-схему ответа для строгого режима.
func Schema() json.RawMessage {
	intensity := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"intensity", "context"},
		"properties": map[string]any{
			"intensity": map[string]any{
				"type":        []string{"integer", "null"},
				"description": "Integer from 0 to 100, null when the log gives no signal.",
			},
			"context": map[string]any{
				"type":        "string",
				"description": "One sentence explaining the rating.",
			},
		},
	}
	props := make(map[string]any, len(Metrics))
	for _, m := range Metrics {
		p := make(map[string]any, len(intensity)+1)
		for k, v := range intensity {
			p[k] = v
		}
		p["description"] = m.Description
		props[m.Name] = p
	}
	schema := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"message", "emotional_metrics", "project_reference", "social_reference", "catchphrase", "community_theme"},
		"properties": map[string]any{
			"message": topLineSchema(),
			"emotional_metrics": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             MetricNames(),
				"properties":           props,
			},
			"project_reference": referenceBlockSchema(projectReferencePrefix, ProjectReferenceSlots,
				"Frequently referenced crypto projects, most popular first."),
			"social_reference": referenceBlockSchema(socialReferencePrefix, SocialReferenceSlots,
				"Frequently referenced influencers and social accounts (x.com, tiktok, youtube, telegram and others), most popular first."),
			"catchphrase": map[string]any{
				"type":        "string",
				"description": "The most representative phrase the members repeat.",
			},
			"community_theme": map[string]any{
				"type":        "string",
				"description": "One line describing what the community is about.",
			},
		},
	}
	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("classifier schema: %v", err))
	}
	return data
}

func nullable(kind, description string) map[string]any {
	return map[string]any{"type": []string{kind, "null"}, "description": description}
}

func topLineSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"description":          "High level usage and date metrics of the chat log.",
		"required":             []string{"message_count", "message_count_ex_bot", "date_min", "date_max", "user_count", "user_count_ex_bot"},
		"properties": map[string]any{
			"message_count":        nullable("integer", "Total messages in the log."),
			"message_count_ex_bot": nullable("integer", "Total messages excluding bot activity (price bots, buy notifications, spam, ban bots)."),
			"date_min":             nullable("string", "The earliest date of a chat entry."),
			"date_max":             nullable("string", "The latest date of a chat entry."),
			"user_count":           nullable("integer", "Number of unique participants."),
			"user_count_ex_bot":    nullable("integer", "Number of unique participants excluding bots."),
		},
	}
}

func referenceSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"description", "topic", "reference_count", "url", "ca"},
		"properties": map[string]any{
			"description":     nullable("string", "One sentence describing the topic or account in the context of the discussion."),
			"topic":           nullable("string", "One or two word name of the topic or account."),
			"reference_count": nullable("integer", "Number of unique references over the log."),
			"url":             nullable("string", "URL of the topic or account."),
			"ca":              nullable("string", "Contract address connected with the topic, if any."),
		},
	}
}

func referenceBlockSchema(prefix string, slots int, description string) map[string]any {
	props := make(map[string]any, slots)
	required := make([]string, slots)
	for i := 1; i <= slots; i++ {
		key := prefix + strconv.Itoa(i)
		props[key] = referenceSchema()
		required[i-1] = key
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"description":          description,
		"required":             required,
		"properties":           props,
	}
}

type rawIntensity struct {
	Intensity json.RawMessage `json:"intensity"`
	Context   *string         `json:"context"`
}

type rawResponse struct {
	Message          *domain.TopLineMetrics      `json:"message"`
	EmotionalMetrics map[string]rawIntensity     `json:"emotional_metrics"`
	ProjectReference map[string]domain.Reference `json:"project_reference"`
	SocialReference  map[string]domain.Reference `json:"social_reference"`
	Catchphrase      *string                     `json:"catchphrase"`
	CommunityTheme   *string                     `json:"community_theme"`
}

// Parse строго разбирает ответ классификатора. Любое отклонение от схемы
// возвращает *SchemaError с исходным текстом. Блоки message, project_reference
// и social_reference необязательны, но если пришли, проверяются так же строго.
func Parse(raw string) (domain.CommunityMetrics, error) {
	fail := func(format string, args ...any) (domain.CommunityMetrics, error) {
		return domain.CommunityMetrics{}, &SchemaError{Raw: raw, Reason: fmt.Sprintf(format, args...)}
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	var resp rawResponse
	if err := dec.Decode(&resp); err != nil {
		return fail("разбор JSON: %v", err)
	}
	if dec.More() {
		return fail("лишние данные после объекта")
	}
	if resp.Catchphrase == nil || strings.TrimSpace(*resp.Catchphrase) == "" {
		return fail("пустое поле catchphrase")
	}
	if resp.CommunityTheme == nil || strings.TrimSpace(*resp.CommunityTheme) == "" {
		return fail("пустое поле community_theme")
	}
	if resp.EmotionalMetrics == nil {
		return fail("нет emotional_metrics")
	}

	known := make(map[string]struct{}, len(Metrics))
	for _, m := range Metrics {
		known[m.Name] = struct{}{}
	}
	for name := range resp.EmotionalMetrics {
		if _, ok := known[name]; !ok {
			return fail("неизвестная метрика %q", name)
		}
	}

	out := domain.CommunityMetrics{
		EmotionalMetrics: make(map[string]domain.Intensity, len(Metrics)),
		Catchphrase:      strings.TrimSpace(*resp.Catchphrase),
		CommunityTheme:   strings.TrimSpace(*resp.CommunityTheme),
	}
	for _, m := range Metrics {
		v, ok := resp.EmotionalMetrics[m.Name]
		if !ok {
			return fail("нет метрики %q", m.Name)
		}
		if v.Context == nil {
			return fail("метрика %q без context", m.Name)
		}
		if len(v.Intensity) == 0 {
			return fail("метрика %q без intensity", m.Name)
		}
		var value domain.Intensity
		value.Context = strings.TrimSpace(*v.Context)
		if !bytes.Equal(v.Intensity, []byte("null")) {
			var n int
			if err := json.Unmarshal(v.Intensity, &n); err != nil {
				return fail("метрика %q: intensity не целое: %s", m.Name, v.Intensity)
			}
			if n < 0 || n > 100 {
				return fail("метрика %q: intensity %d вне 0..100", m.Name, n)
			}
			value.Intensity = &n
		}
		out.EmotionalMetrics[m.Name] = value
	}

	if resp.Message != nil {
		if reason := checkTopLine(*resp.Message); reason != "" {
			return fail("message: %s", reason)
		}
		out.Message = resp.Message
	}
	refs, reason := orderReferences(resp.ProjectReference, projectReferencePrefix, ProjectReferenceSlots)
	if reason != "" {
		return fail("project_reference: %s", reason)
	}
	out.ProjectReference = refs
	if refs, reason = orderReferences(resp.SocialReference, socialReferencePrefix, SocialReferenceSlots); reason != "" {
		return fail("social_reference: %s", reason)
	}
	out.SocialReference = refs
	return out, nil
}

func checkTopLine(m domain.TopLineMetrics) string {
	counts := map[string]*int{
		"message_count":        m.MessageCount,
		"message_count_ex_bot": m.MessageCountExBot,
		"user_count":           m.UserCount,
		"user_count_ex_bot":    m.UserCountExBot,
	}
	for name, v := range counts {
		if v != nil && *v < 0 {
			return fmt.Sprintf("отрицательное %s: %d", name, *v)
		}
	}
	return ""
}

// orderReferences превращает блок prefix1..prefixN в список по рангу.
// Пустой блок допустим, частично заполненный — нет.
func orderReferences(block map[string]domain.Reference, prefix string, slots int) ([]domain.Reference, string) {
	if len(block) == 0 {
		return nil, ""
	}
	out := make([]domain.Reference, slots)
	for key, ref := range block {
		rank, err := strconv.Atoi(strings.TrimPrefix(key, prefix))
		if !strings.HasPrefix(key, prefix) || err != nil || rank < 1 || rank > slots {
			return nil, fmt.Sprintf("неизвестный ключ %q", key)
		}
		if ref.ReferenceCount != nil && *ref.ReferenceCount < 0 {
			return nil, fmt.Sprintf("%s: отрицательный reference_count", key)
		}
		out[rank-1] = ref
	}
	if len(block) != slots {
		return nil, fmt.Sprintf("ожидали %d мест, получили %d", slots, len(block))
	}
	return out, ""
}
