// Package admin — repository.go работает с таблицей admin_login_attempts.
package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository работает с админ-таблицами.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// LogAttempt записывает попытку входа.
func (r *Repository) LogAttempt(ctx context.Context, remoteAddr string, success bool) error {
	query := `INSERT INTO admin_login_attempts (remote_addr, success) VALUES ($1, $2)`
	if _, err := r.db.Exec(ctx, query, remoteAddr, success); err != nil {
		return fmt.Errorf("ошибка записи попытки входа: %w", err)
	}
	return nil
}

// RecentFailures возвращает количество неудачных попыток с адреса с момента since.
func (r *Repository) RecentFailures(ctx context.Context, remoteAddr string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM admin_login_attempts
		WHERE remote_addr = $1 AND success = FALSE AND attempted_at >= $2
	`
	var count int
	if err := r.db.QueryRow(ctx, query, remoteAddr, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта попыток входа: %w", err)
	}
	return count, nil
}
