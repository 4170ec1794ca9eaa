// Package reports — repository.go работает с таблицами reports и collected_wastes.
// Начисления за отчёт и за сбор идут через ledger.CreditTx в той же транзакции БД,
// что и смена статуса.
package reports

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/waste-rewards/internal/common"
	"serotonyl.ru/waste-rewards/internal/db/postgres"
	"serotonyl.ru/waste-rewards/internal/features/ledger"
	"serotonyl.ru/waste-rewards/internal/verification"
)

const pgForeignKeyViolation = "23503"

// Описания транзакций в журнале
const (
	reportRewardDescription  = "Points earned for reporting waste"
	collectRewardDescription = "Points earned for collecting waste"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const reportColumns = `id, user_id, collector_id, location, waste_type, amount, status,
	image_url, verification_result, claimed_at, created_at, updated_at`

func scanReport(row pgx.Row) (*Report, error) {
	var r Report
	err := row.Scan(&r.ID, &r.UserID, &r.CollectorID, &r.Location, &r.WasteType, &r.Amount, &r.Status,
		&r.ImageURL, &r.VerificationResult, &r.ClaimedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func collectReports(rows pgx.Rows) ([]*Report, error) {
	defer rows.Close()
	var out []*Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования отчёта: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения отчётов: %w", err)
	}
	return out, nil
}

// Create сохраняет отчёт и начисляет автору награду одной транзакцией.
func (r *Repository) Create(ctx context.Context, p CreateParams, reward int64) (*Report, *ledger.Wallet, error) {
	var (
		rep *Report
		w   *ledger.Wallet
	)
	err := postgres.InTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		rep, err = scanReport(tx.QueryRow(ctx, `
			INSERT INTO reports (user_id, location, waste_type, amount, status, image_url)
			VALUES ($1, $2, $3, $4, 'pending', $5)
			RETURNING `+reportColumns,
			p.UserID, p.Location, p.WasteType, p.Amount, p.ImageURL))
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
				return common.ErrUserNotFound
			}
			return fmt.Errorf("ошибка создания отчёта: %w", err)
		}

		w, _, err = ledger.CreditTx(ctx, tx, p.UserID, reward, ledger.TxEarnedReport, reportRewardDescription)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return rep, w, nil
}

// Get возвращает отчёт по id.
func (r *Repository) Get(ctx context.Context, id int64) (*Report, error) {
	rep, err := scanReport(r.db.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrReportNotFound
		}
		return nil, fmt.Errorf("ошибка получения отчёта (id=%d): %w", id, err)
	}
	return rep, nil
}

// Recent возвращает последние отчёты, новые первыми.
func (r *Repository) Recent(ctx context.Context, limit int) ([]*Report, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+reportColumns+`
		FROM reports
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения последних отчётов: %w", err)
	}
	return collectReports(rows)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListTasks возвращает страницу отчётов, у которых location содержит search (без учёта регистра),
// и общее число таких отчётов.
func (r *Repository) ListTasks(ctx context.Context, search string, limit, offset int) ([]*Report, int, error) {
	pattern := "%" + likeEscaper.Replace(search) + "%"

	var total int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM reports WHERE location ILIKE $1`, pattern,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта задач: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+reportColumns+`
		FROM reports
		WHERE location ILIKE $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, pattern, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка получения задач: %w", err)
	}
	tasks, err := collectReports(rows)
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// Claim закрепляет свободный отчёт за сборщиком.
func (r *Repository) Claim(ctx context.Context, id, collectorID int64) (*Report, error) {
	rep, err := scanReport(r.db.QueryRow(ctx, `
		UPDATE reports
		SET status = 'in_progress', collector_id = $2, claimed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+reportColumns, id, collectorID))
	if err == nil {
		return rep, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return nil, common.ErrUserNotFound
		}
		return nil, fmt.Errorf("ошибка захвата отчёта: %w", err)
	}

	// Ни одной строки: либо отчёта нет, либо он уже не pending
	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}
	return nil, common.ErrReportNotClaimable
}

// lockReport блокирует отчёт до конца транзакции.
func lockReport(ctx context.Context, q postgres.Querier, id int64) (*Report, error) {
	rep, err := scanReport(q.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrReportNotFound
		}
		return nil, fmt.Errorf("ошибка блокировки отчёта: %w", err)
	}
	return rep, nil
}

// Complete переводит отчёт в completed без начисления.
func (r *Repository) Complete(ctx context.Context, id, collectorID int64) (*Report, error) {
	var rep *Report
	err := postgres.InTx(ctx, r.db, func(tx pgx.Tx) error {
		cur, err := lockReport(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := CheckCollectable(cur, collectorID); err != nil {
			return err
		}
		rep, err = scanReport(tx.QueryRow(ctx, `
			UPDATE reports SET status = 'completed', updated_at = NOW()
			WHERE id = $1
			RETURNING `+reportColumns, id))
		if err != nil {
			return fmt.Errorf("ошибка завершения отчёта: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rep, nil
}

// SaveVerificationResult сохраняет неудачный вердикт модели, статус не меняется.
func (r *Repository) SaveVerificationResult(ctx context.Context, id, collectorID int64, res verification.Result) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE reports SET verification_result = $3, updated_at = NOW()
		WHERE id = $1 AND collector_id = $2 AND status = 'in_progress'
	`, id, collectorID, res)
	if err != nil {
		return fmt.Errorf("ошибка сохранения вердикта: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Пока модель думала, отчёт успели забрать или освободить
		return common.ErrReportNotClaimed
	}
	return nil
}

// CompleteCollection засчитывает сбор: статус verified, запись collected_wastes
// и начисление сборщику. Статус перепроверяется под блокировкой строки,
// UNIQUE(report_id) не даёт наградить дважды.
func (r *Repository) CompleteCollection(ctx context.Context, id, collectorID int64, res verification.Result, reward int64) (*Report, *CollectedWaste, *ledger.Wallet, error) {
	var (
		rep *Report
		cw  *CollectedWaste
		w   *ledger.Wallet
	)
	err := postgres.InTx(ctx, r.db, func(tx pgx.Tx) error {
		cur, err := lockReport(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := CheckCollectable(cur, collectorID); err != nil {
			return err
		}

		rep, err = scanReport(tx.QueryRow(ctx, `
			UPDATE reports SET status = 'verified', verification_result = $2, updated_at = NOW()
			WHERE id = $1
			RETURNING `+reportColumns, id, res))
		if err != nil {
			return fmt.Errorf("ошибка подтверждения отчёта: %w", err)
		}

		var c CollectedWaste
		err = tx.QueryRow(ctx, `
			INSERT INTO collected_wastes (report_id, collector_id, status, verification_result)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (report_id) DO NOTHING
			RETURNING id, report_id, collector_id, collected_at, status, verification_result
		`, id, collectorID, CollectedStatus, res).Scan(
			&c.ID, &c.ReportID, &c.CollectorID, &c.CollectedAt, &c.Status, &c.VerificationResult)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return common.ErrReportAlreadyCollected
			}
			return fmt.Errorf("ошибка записи сбора: %w", err)
		}
		cw = &c

		w, _, err = ledger.CreditTx(ctx, tx, collectorID, reward, ledger.TxEarnedCollect, collectRewardDescription)
		return err
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return rep, cw, w, nil
}

// CollectedByCollector возвращает сборы сборщика, новые первыми.
func (r *Repository) CollectedByCollector(ctx context.Context, collectorID int64) ([]*CollectedWaste, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, report_id, collector_id, collected_at, status, verification_result
		FROM collected_wastes
		WHERE collector_id = $1
		ORDER BY collected_at DESC, id DESC
	`, collectorID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения сборов: %w", err)
	}
	defer rows.Close()

	var out []*CollectedWaste
	for rows.Next() {
		var c CollectedWaste
		if err := rows.Scan(&c.ID, &c.ReportID, &c.CollectorID, &c.CollectedAt, &c.Status, &c.VerificationResult); err != nil {
			return nil, fmt.Errorf("ошибка сканирования сбора: %w", err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения сборов: %w", err)
	}
	return out, nil
}

// ReleaseStaleClaims возвращает в pending отчёты, захваченные раньше before.
func (r *Repository) ReleaseStaleClaims(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE reports
		SET status = 'pending', collector_id = NULL, claimed_at = NULL, updated_at = NOW()
		WHERE status = 'in_progress' AND claimed_at < $1
	`, before)
	if err != nil {
		return 0, fmt.Errorf("ошибка освобождения зависших задач: %w", err)
	}
	return tag.RowsAffected(), nil
}
