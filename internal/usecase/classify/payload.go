package classify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"tg-meme-pulse/internal/domain"
)

// ErrPayloadTooLarge возвращается, если даже одно сообщение не помещается в потолок.
var ErrPayloadTooLarge = errors.New("сообщения дня не помещаются в потолок токенов")

type payloadRecord struct {
	Date    string `json:"date"`
	User    string `json:"user"`
	Message string `json:"message"`
}

// BuildPayload сериализует сообщения в JSON-массив записей {date,user,message}.
func BuildPayload(messages []domain.Message) (string, error) {
	records := make([]payloadRecord, len(messages))
	for i, m := range messages {
		records[i] = payloadRecord{Date: m.Date, User: m.User, Message: m.Text}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(records); err != nil {
		return "", fmt.Errorf("кодирование сообщений: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// Truncated — полезная нагрузка после проверки потолка токенов.
type Truncated struct {
	Payload string
	Kept    int
	Tokens  int
	// Steps — количество сообщений после каждого шага усечения.
	Steps []int
}

// Truncate оставляет префикс сообщений, укладывающийся в ceiling токенов.
// Пока T > C, количество сообщений уменьшается до floor(n*C/T) и пересчитывается.
func Truncate(messages []domain.Message, tok domain.Tokenizer, ceiling int) (Truncated, error) {
	n := len(messages)
	payload, err := BuildPayload(messages)
	if err != nil {
		return Truncated{}, err
	}
	tokens := tok.Count(payload)
	out := Truncated{}
	for tokens > ceiling {
		next := int(int64(n) * int64(ceiling) / int64(tokens))
		if next >= n {
			next = n - 1
		}
		if next <= 0 {
			return Truncated{}, fmt.Errorf("%w: %d токенов при потолке %d", ErrPayloadTooLarge, tokens, ceiling)
		}
		n = next
		out.Steps = append(out.Steps, n)
		if payload, err = BuildPayload(messages[:n]); err != nil {
			return Truncated{}, err
		}
		tokens = tok.Count(payload)
	}
	out.Payload = payload
	out.Kept = n
	out.Tokens = tokens
	return out, nil
}
