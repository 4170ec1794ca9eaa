// Package ledger — repository.go выполняет все операции с таблицами wallets,
// transactions и reward_offers.
// Каждое изменение баланса и запись в журнал идут в одной транзакции БД;
// списания блокируют строку кошелька (SELECT ... FOR UPDATE).
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/waste-rewards/internal/common"
	"serotonyl.ru/waste-rewards/internal/db/postgres"
)

// pgForeignKeyViolation — SQLSTATE нарушения внешнего ключа.
const pgForeignKeyViolation = "23503"

// Repository предоставляет методы для работы с кошельками, журналом и каталогом.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий ledger.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const walletColumns = `user_id, points, level, created_at, updated_at`

func scanWallet(row pgx.Row) (*Wallet, error) {
	var w Wallet
	if err := row.Scan(&w.UserID, &w.Points, &w.Level, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

// ensureWallet создаёт кошелёк с нулевым балансом, если его ещё нет.
// Конкурентные вызовы безопасны: UNIQUE(user_id) + ON CONFLICT DO NOTHING.
func ensureWallet(ctx context.Context, q postgres.Querier, userID int64) error {
	_, err := q.Exec(ctx, `
		INSERT INTO wallets (user_id, points, level)
		VALUES ($1, 0, 1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return common.ErrUserNotFound
		}
		return fmt.Errorf("ошибка создания кошелька: %w", err)
	}
	return nil
}

// lockWallet блокирует строку кошелька до конца транзакции и возвращает баланс.
func lockWallet(ctx context.Context, q postgres.Querier, userID int64) (int64, error) {
	var points int64
	err := q.QueryRow(ctx, `SELECT points FROM wallets WHERE user_id = $1 FOR UPDATE`, userID).Scan(&points)
	if err != nil {
		return 0, fmt.Errorf("ошибка блокировки кошелька: %w", err)
	}
	return points, nil
}

// appendTransaction дописывает строку в журнал.
func appendTransaction(ctx context.Context, q postgres.Querier, userID int64, txType string, amount int64, description string, offerID *int64) (*Transaction, error) {
	t := Transaction{
		UserID:      userID,
		Type:        txType,
		Amount:      amount,
		Description: description,
		OfferID:     offerID,
	}
	err := q.QueryRow(ctx, `
		INSERT INTO transactions (user_id, type, amount, description, offer_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, userID, txType, amount, description, offerID).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("ошибка записи транзакции: %w", err)
	}
	return &t, nil
}

// EnsureWallet возвращает кошелёк пользователя, создавая его при первом обращении.
func (r *Repository) EnsureWallet(ctx context.Context, userID int64) (*Wallet, error) {
	if err := ensureWallet(ctx, r.db, userID); err != nil {
		return nil, err
	}
	w, err := scanWallet(r.db.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID))
	if err != nil {
		return nil, fmt.Errorf("ошибка получения кошелька: %w", err)
	}
	return w, nil
}

// CreditTx начисляет баллы внутри транзакции вызывающего.
// Используется сценариями, которым начисление нужно закоммитить вместе со своими изменениями
// (создание отчёта, подтверждённый сбор).
func CreditTx(ctx context.Context, q postgres.Querier, userID, amount int64, txType, description string) (*Wallet, *Transaction, error) {
	if err := ensureWallet(ctx, q, userID); err != nil {
		return nil, nil, err
	}

	// В SET все ссылки на points — старое значение строки
	w, err := scanWallet(q.QueryRow(ctx, `
		UPDATE wallets
		SET points = points + $2, level = (points + $2) / 1000 + 1, updated_at = NOW()
		WHERE user_id = $1
		RETURNING `+walletColumns, userID, amount))
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка начисления: %w", err)
	}

	t, err := appendTransaction(ctx, q, userID, txType, amount, description, nil)
	if err != nil {
		return nil, nil, err
	}
	return w, t, nil
}

// Credit начисляет баллы в собственной транзакции.
func (r *Repository) Credit(ctx context.Context, userID, amount int64, txType, description string) (*Wallet, *Transaction, error) {
	var (
		w *Wallet
		t *Transaction
	)
	err := postgres.InTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		w, t, err = CreditTx(ctx, tx, userID, amount, txType, description)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return w, t, nil
}

// debit уменьшает баланс. Вызывать только после lockWallet и проверки баланса.
func debit(ctx context.Context, q postgres.Querier, userID, amount int64) (*Wallet, error) {
	w, err := scanWallet(q.QueryRow(ctx, `
		UPDATE wallets
		SET points = points - $2, level = (points - $2) / 1000 + 1, updated_at = NOW()
		WHERE user_id = $1
		RETURNING `+walletColumns, userID, amount))
	if err != nil {
		return nil, fmt.Errorf("ошибка списания: %w", err)
	}
	return w, nil
}

// Redeem обменивает баллы на награду из каталога.
// Проверки (награда есть, доступна, цена совпадает, баллов хватает) идут под блокировкой кошелька,
// при любом отказе ничего не меняется.
func (r *Repository) Redeem(ctx context.Context, userID, offerID, expectedCost int64) (*Wallet, *Transaction, error) {
	var (
		w *Wallet
		t *Transaction
	)
	err := postgres.InTx(ctx, r.db, func(tx pgx.Tx) error {
		// FOR SHARE: цену нельзя поменять, пока идёт обмен
		offer, err := scanOffer(tx.QueryRow(ctx,
			`SELECT `+offerColumns+` FROM reward_offers WHERE id = $1 FOR SHARE`, offerID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return common.ErrRedeemRewardNotFound
			}
			return fmt.Errorf("ошибка получения награды: %w", err)
		}
		if !offer.IsAvailable {
			return common.ErrRewardUnavailable
		}
		if expectedCost > 0 && expectedCost != offer.Cost {
			return common.ErrRewardCostMismatch
		}

		if err := ensureWallet(ctx, tx, userID); err != nil {
			return err
		}
		points, err := lockWallet(ctx, tx, userID)
		if err != nil {
			return err
		}
		if points < offer.Cost {
			return common.ErrInsufficientPoints
		}

		if w, err = debit(ctx, tx, userID, offer.Cost); err != nil {
			return err
		}
		t, err = appendTransaction(ctx, tx, userID, TxRedeemed, offer.Cost, "Redeemed: "+offer.Name, &offer.ID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return w, t, nil
}

// RedeemAll обнуляет баланс. В журнал пишется баланс, который был до обнуления.
func (r *Repository) RedeemAll(ctx context.Context, userID int64) (*Wallet, *Transaction, error) {
	var (
		w *Wallet
		t *Transaction
	)
	err := postgres.InTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := ensureWallet(ctx, tx, userID); err != nil {
			return err
		}
		prior, err := lockWallet(ctx, tx, userID)
		if err != nil {
			return err
		}
		if prior == 0 {
			return common.ErrNothingToRedeem
		}

		if w, err = debit(ctx, tx, userID, prior); err != nil {
			return err
		}
		t, err = appendTransaction(ctx, tx, userID, TxRedeemed, prior,
			fmt.Sprintf("Redeemed all points: %d", prior), nil)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return w, t, nil
}

// ListTransactions возвращает последние limit транзакций пользователя, новые первыми.
func (r *Repository) ListTransactions(ctx context.Context, userID int64, limit int) ([]*Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, type, amount, description, offer_id, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения транзакций: %w", err)
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Description, &t.OfferID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования транзакции: %w", err)
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения транзакций: %w", err)
	}
	return out, nil
}

const offerColumns = `id, name, description, cost, is_available, created_at, updated_at`

func scanOffer(row pgx.Row) (*RewardOffer, error) {
	var o RewardOffer
	if err := row.Scan(&o.ID, &o.Name, &o.Description, &o.Cost, &o.IsAvailable, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

// ListOffers возвращает каталог, дешёвые первыми. onlyAvailable — только доступные к обмену.
func (r *Repository) ListOffers(ctx context.Context, onlyAvailable bool) ([]*RewardOffer, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+offerColumns+`
		FROM reward_offers
		WHERE ($1 = FALSE OR is_available)
		ORDER BY cost, id
	`, onlyAvailable)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения каталога: %w", err)
	}
	defer rows.Close()

	var out []*RewardOffer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования награды: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения каталога: %w", err)
	}
	return out, nil
}

// CreateOffer добавляет позицию в каталог.
func (r *Repository) CreateOffer(ctx context.Context, in OfferInput) (*RewardOffer, error) {
	available := true
	if in.IsAvailable != nil {
		available = *in.IsAvailable
	}
	o, err := scanOffer(r.db.QueryRow(ctx, `
		INSERT INTO reward_offers (name, description, cost, is_available)
		VALUES ($1, $2, $3, $4)
		RETURNING `+offerColumns, in.Name, in.Description, in.Cost, available))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания награды: %w", err)
	}
	return o, nil
}

// UpdateOffer частично обновляет позицию каталога.
func (r *Repository) UpdateOffer(ctx context.Context, id int64, p OfferPatch) (*RewardOffer, error) {
	o, err := scanOffer(r.db.QueryRow(ctx, `
		UPDATE reward_offers
		SET name = COALESCE($2, name),
		    description = COALESCE($3, description),
		    cost = COALESCE($4, cost),
		    is_available = COALESCE($5, is_available),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+offerColumns, id, p.Name, p.Description, p.Cost, p.IsAvailable))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrRewardNotFound
		}
		return nil, fmt.Errorf("ошибка обновления награды: %w", err)
	}
	return o, nil
}

// Leaderboard возвращает пользователей с наибольшим балансом.
func (r *Repository) Leaderboard(ctx context.Context, limit int) ([]*LeaderboardEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT u.id, u.name, w.points
		FROM wallets w
		JOIN users u ON u.id = w.user_id
		ORDER BY w.points DESC, u.id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения лидерборда: %w", err)
	}
	defer rows.Close()

	var out []*LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Name, &e.Points); err != nil {
			return nil, fmt.Errorf("ошибка сканирования лидерборда: %w", err)
		}
		e.Rank = len(out) + 1
		e.Level = common.LevelForPoints(e.Points)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения лидерборда: %w", err)
	}
	return out, nil
}

// Reconcile сверяет балансы кошельков с суммой по журналу и возвращает расхождения.
func (r *Repository) Reconcile(ctx context.Context) ([]Drift, error) {
	rows, err := r.db.Query(ctx, `
		SELECT w.user_id, w.points, COALESCE(j.total, 0)
		FROM wallets w
		LEFT JOIN (
			SELECT user_id,
			       SUM(CASE WHEN type = 'redeemed' THEN -amount ELSE amount END)::BIGINT AS total
			FROM transactions
			GROUP BY user_id
		) j ON j.user_id = w.user_id
		WHERE w.points <> COALESCE(j.total, 0)
		ORDER BY w.user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("ошибка сверки журнала: %w", err)
	}
	defer rows.Close()

	var out []Drift
	for rows.Next() {
		var d Drift
		if err := rows.Scan(&d.UserID, &d.WalletPoints, &d.JournalPoints); err != nil {
			return nil, fmt.Errorf("ошибка сканирования сверки: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
