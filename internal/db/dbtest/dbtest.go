// Package dbtest поднимает пул к тестовой базе для интеграционных тестов репозиториев.
// Без TEST_DATABASE_URL тесты пропускаются.
package dbtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/waste-rewards/internal/db/migrations"
	"serotonyl.ru/waste-rewards/internal/db/postgres"
)

const advisoryLockKey = 7_340_001

// Pool подключается к TEST_DATABASE_URL, накатывает миграции и очищает таблицы.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL не задан, пропускаем интеграционный тест")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, dsn, 10, 0)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	// Пакеты тестируются параллельно, а база одна: сериализуем через advisory lock
	lockConn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	_, err = lockConn.Exec(context.Background(), "SELECT pg_advisory_lock($1)", advisoryLockKey)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = lockConn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", advisoryLockKey)
		lockConn.Release()
	})

	require.NoError(t, postgres.RunMigrations(ctx, pool, migrations.All))

	_, err = pool.Exec(ctx, `
		TRUNCATE admin_login_attempts, notifications, collected_wastes, reports,
		         transactions, reward_offers, wallets, users
		RESTART IDENTITY CASCADE
	`)
	require.NoError(t, err)
	return pool
}

// CreateUser добавляет пользователя и возвращает его id.
func CreateUser(t *testing.T, pool *pgxpool.Pool, email string) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(),
		`INSERT INTO users (email, name) VALUES ($1, $1) RETURNING id`, email).Scan(&id)
	require.NoError(t, err)
	return id
}
