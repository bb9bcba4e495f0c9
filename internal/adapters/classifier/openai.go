package classifier

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"tg-meme-pulse/internal/domain"
	openai "tg-meme-pulse/internal/infra/openai"
)

//go:embed prompt.txt
var defaultPrompt string

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI классифицирует дневные логи через Chat Completions со строгой схемой.
type OpenAI struct {
	client        chatClient
	model         string
	schemaVersion string
	prompt        string
	log           zerolog.Logger
}

var _ domain.Classifier = (*OpenAI)(nil)

// NewOpenAI создаёт классификатор. Пустой prompt заменяется встроенной инструкцией.
func NewOpenAI(client chatClient, model, schemaVersion, prompt string, log zerolog.Logger) *OpenAI {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if schemaVersion == "" {
		schemaVersion = "v1"
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = defaultPrompt
	}
	return &OpenAI{client: client, model: model, schemaVersion: schemaVersion, prompt: prompt, log: log}
}

// LoadPrompt читает инструкцию из файла; пустой путь означает встроенную.
func LoadPrompt(path string) (string, error) {
	if path == "" {
		return defaultPrompt, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("чтение инструкции: %w", err)
	}
	return string(data), nil
}

// Version возвращает пару (модель, версия схемы).
func (c *OpenAI) Version() domain.Version {
	return domain.Version{Classifier: c.model, Schema: c.schemaVersion}
}

// Classify отправляет payload и проверяет ответ. Нарушение схемы возвращает *SchemaError.
func (c *OpenAI) Classify(ctx context.Context, payload string) (domain.CommunityMetrics, error) {
	temperature := 0.0
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: &temperature,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleSystem, Content: c.prompt},
			{Role: openai.RoleUser, Content: payload},
		},
		ResponseFormat: openai.SchemaFormat(SchemaName, Schema()),
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return domain.CommunityMetrics{}, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.CommunityMetrics{}, &SchemaError{Reason: "пустой ответ"}
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return domain.CommunityMetrics{}, &SchemaError{Raw: choice.Message.Refusal, Reason: "модель отказалась отвечать"}
	}
	content := strings.TrimSpace(choice.Message.Content)
	if choice.FinishReason == "length" {
		return domain.CommunityMetrics{}, &SchemaError{Raw: content, Reason: "ответ обрезан по длине"}
	}
	metrics, err := Parse(content)
	if err != nil {
		c.log.Warn().Err(err).Str("llm", c.model).Str("raw", clip(content, 512)).Msg("classifier: ответ отклонён")
		return domain.CommunityMetrics{}, err
	}
	return metrics, nil
}

func clip(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}
