// Package notifications — telegram.go дублирует уведомления в Telegram через telego.
package notifications

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
)

// ChatResolver возвращает привязанный чат пользователя.
type ChatResolver interface {
	TelegramChatID(ctx context.Context, userID int64) (int64, bool, error)
}

// TelegramPusher отправляет уведомления в личный чат пользователя.
type TelegramPusher struct {
	bot   *telego.Bot
	chats ChatResolver
}

// NewTelegramPusher создаёт бота по токену. Пустой токен — не ошибка, возвращается nil:
// уведомления тогда остаются только в БД.
func NewTelegramPusher(token string, chats ChatResolver) (*TelegramPusher, error) {
	if token == "" {
		return nil, nil
	}
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram-бота: %w", err)
	}
	return &TelegramPusher{bot: bot, chats: chats}, nil
}

// Push отправляет уведомление, если у пользователя привязан чат.
func (p *TelegramPusher) Push(ctx context.Context, userID int64, n *Notification) error {
	chatID, ok, err := p.chats.TelegramChatID(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	_, err = p.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: chatID},
		Text:   formatPush(n),
	})
	if err != nil {
		return fmt.Errorf("ошибка отправки в Telegram (chat_id=%d): %w", chatID, err)
	}
	return nil
}

func formatPush(n *Notification) string {
	if n.Type == TypeReward {
		return "🎉 " + n.Message
	}
	return n.Message
}
