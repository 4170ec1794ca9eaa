// Package admin реализует вход администратора по паролю.
// models.go описывает попытки входа.
package admin

import "time"

// LoginAttempt — попытка входа (для защиты от brute-force).
type LoginAttempt struct {
	ID          int64     `json:"id"`
	RemoteAddr  string    `json:"remote_addr"`
	Success     bool      `json:"success"`
	AttemptedAt time.Time `json:"attempted_at"`
}

// Ограничение попыток: MaxFailedAttempts неудач за LockoutWindow блокируют адрес.
const (
	MaxFailedAttempts = 3
	LockoutWindow     = time.Hour
)
