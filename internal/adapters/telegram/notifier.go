package telegram

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-meme-pulse/internal/domain"
	"tg-meme-pulse/internal/infra/metrics"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier отправляет отчёты в чат администратора через Bot API.
type Notifier struct {
	bot    sender
	chatID int64
	log    zerolog.Logger
}

var _ domain.Notifier = (*Notifier)(nil)

// NewNotifier создаёт отправителя отчётов.
func NewNotifier(bot sender, chatID int64, log zerolog.Logger) *Notifier {
	return &Notifier{bot: bot, chatID: chatID, log: log}
}

// NewBotNotifier подключается к Bot API по токену.
func NewBotNotifier(token string, chatID int64, log zerolog.Logger) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("bot api: %w", err)
	}
	return NewNotifier(bot, chatID, log), nil
}

// Notify отправляет текст, разбивая его по лимиту Telegram.
func (n *Notifier) Notify(ctx context.Context, text string) error {
	for _, part := range SplitMessage(text, MessageLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(n.chatID, part)
		msg.DisableWebPagePreview = true
		start := time.Now()
		_, err := n.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", "report", start, err)
		if err != nil {
			return fmt.Errorf("отправка отчёта: %w", err)
		}
	}
	n.log.Debug().Int64("chat_id", n.chatID).Msg("telegram: отчёт отправлен")
	return nil
}
