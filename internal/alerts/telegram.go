package alerts

import (
	"context"
	"errors"
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/vouchr/storefront-backend/pkg/config"
	"github.com/vouchr/storefront-backend/pkg/logger"
)

// telegram messages are capped at 4096 characters.
const telegramTextLimit = 4096

type messageSender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// TelegramNotifier posts alerts to one operator chat.
type TelegramNotifier struct {
	bot    messageSender
	chatID int64
}

// NewTelegramNotifier builds a bot client from the alert settings.
func NewTelegramNotifier(cfg config.AlertsConfig) (*TelegramNotifier, error) {
	if !cfg.TelegramEnabled() {
		return nil, errors.New("telegram bot token and chat id are required")
	}
	bot, err := telego.NewBot(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: cfg.TelegramChatID}, nil
}

func (n *TelegramNotifier) Notify(ctx context.Context, alert Alert) error {
	text := alert.Text()
	if len(text) > telegramTextLimit {
		text = text[:telegramTextLimit]
	}
	if _, err := n.bot.SendMessage(ctx, tu.Message(tu.ID(n.chatID), text)); err != nil {
		return fmt.Errorf("send telegram alert: %w", err)
	}
	return nil
}

// NewNotifier returns the Telegram notifier when it is configured and Nop otherwise.
func NewNotifier(cfg config.AlertsConfig, logg *logger.Logger) (Notifier, error) {
	if !cfg.TelegramEnabled() {
		if logg != nil {
			logg.Warn(context.Background(), "telegram alerts disabled; using no-op notifier")
		}
		return Nop{}, nil
	}
	return NewTelegramNotifier(cfg)
}
