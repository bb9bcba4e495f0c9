package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"tg-meme-pulse/internal/domain"
)

// Tiktoken считает токены BPE-кодировкой OpenAI.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

var _ domain.Tokenizer = (*Tiktoken)(nil)

var offlineOnce sync.Once

// NewTiktoken загружает кодировку по имени, например cl100k_base.
// Словари BPE встроены в бинарник, сеть не нужна.
func NewTiktoken(encoding string) (*Tiktoken, error) {
	offlineOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("кодировка %s: %w", encoding, err)
	}
	return &Tiktoken{enc: enc}, nil
}

// Count возвращает число токенов текста.
func (t *Tiktoken) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// Words — приближённый счётчик по словам для тестов. Занижает число токенов
// JSON-нагрузки, поэтому как потолок для модели не годится.
type Words struct{}

var _ domain.Tokenizer = Words{}

// Count возвращает число слов текста.
func (Words) Count(text string) int {
	return len(strings.Fields(text))
}
