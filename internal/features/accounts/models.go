// Package accounts управляет пользователями сервиса: вход, профиль, привязка Telegram.
// models.go описывает структуры данных для работы с таблицей users.
package accounts

import "time"

// User — пользователь сервиса.
// Запись создаётся при первом входе, email уникален и после этого не меняется.
type User struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	TelegramChatID *int64    `json:"telegram_chat_id,omitempty"` // Чат для push-уведомлений (nil — не привязан)
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DisplayName возвращает имя пользователя, а если оно пустое — локальную часть email.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	for i, c := range u.Email {
		if c == '@' {
			return u.Email[:i]
		}
	}
	return u.Email
}
