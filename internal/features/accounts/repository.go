// Package accounts — repository.go отвечает за все операции с таблицей users в БД.
// Каждая функция выполняет один SQL-запрос и возвращает результат или ошибку.
package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/waste-rewards/internal/common"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, email, name, telegram_chat_id, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.TelegramChatID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// Upsert создаёт пользователя по email или возвращает существующего.
// Непустое name перезаписывает сохранённое имя, пустое оставляет как было.
func (r *Repository) Upsert(ctx context.Context, email, name string) (*User, error) {
	query := `
		INSERT INTO users (email, name)
		VALUES ($1::TEXT, CASE WHEN $2::TEXT <> '' THEN $2::TEXT ELSE split_part($1::TEXT, '@', 1) END)
		ON CONFLICT (email) DO UPDATE
		SET name = CASE WHEN $2::TEXT <> '' THEN $2::TEXT ELSE users.name END,
		    updated_at = NOW()
		RETURNING ` + userColumns
	u, err := scanUser(r.db.QueryRow(ctx, query, email, name))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания/обновления пользователя: %w", err)
	}
	return u, nil
}

// GetByID: если не найден — common.ErrUserNotFound
func (r *Repository) GetByID(ctx context.Context, id int64) (*User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrUserNotFound
		}
		return nil, fmt.Errorf("ошибка чтения пользователя (id=%d): %w", id, err)
	}
	return u, nil
}

// SetTelegramChatID привязывает чат Telegram (nil — отвязывает).
func (r *Repository) SetTelegramChatID(ctx context.Context, id int64, chatID *int64) (*User, error) {
	query := `
		UPDATE users
		SET telegram_chat_id = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns
	u, err := scanUser(r.db.QueryRow(ctx, query, id, chatID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrUserNotFound
		}
		return nil, fmt.Errorf("ошибка привязки Telegram: %w", err)
	}
	return u, nil
}
