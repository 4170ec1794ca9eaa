// Package notifications — repository.go работает с таблицей notifications.
package notifications

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/waste-rewards/internal/common"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create сохраняет уведомление.
func (r *Repository) Create(ctx context.Context, userID int64, typ, message string) (*Notification, error) {
	n := Notification{UserID: userID, Type: typ, Message: message}
	err := r.db.QueryRow(ctx, `
		INSERT INTO notifications (user_id, type, message)
		VALUES ($1, $2, $3)
		RETURNING id, is_read, created_at
	`, userID, typ, message).Scan(&n.ID, &n.IsRead, &n.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания уведомления: %w", err)
	}
	return &n, nil
}

// Unread возвращает непрочитанные уведомления, новые первыми.
func (r *Repository) Unread(ctx context.Context, userID int64) ([]*Notification, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, type, message, is_read, created_at
		FROM notifications
		WHERE user_id = $1 AND is_read = FALSE
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения уведомлений: %w", err)
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования уведомления: %w", err)
		}
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения уведомлений: %w", err)
	}
	return out, nil
}

// MarkRead помечает уведомление прочитанным. Чужое уведомление считается ненайденным.
// Повторная пометка не ошибка.
func (r *Repository) MarkRead(ctx context.Context, userID, id int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return fmt.Errorf("ошибка обновления уведомления: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotificationNotFound
	}
	return nil
}
