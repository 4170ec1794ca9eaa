// Package notifications хранит уведомления пользователей и дублирует их в Telegram.
package notifications

import "time"

// Типы уведомлений
const (
	TypeReward = "reward" // Начисление баллов
)

// Notification — уведомление пользователя. Не удаляется, только помечается прочитанным.
type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
