// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: ежечасную сверку кошельков с журналом
// и освобождение зависших заявок на сбор.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/waste-rewards/internal/common"
	"serotonyl.ru/waste-rewards/internal/features/ledger"
)

// Reconciler сверяет балансы с журналом транзакций.
type Reconciler interface {
	Reconcile(ctx context.Context) ([]ledger.Drift, error)
}

// ClaimReleaser возвращает в очередь заявки, которые сборщик взял и бросил.
type ClaimReleaser interface {
	ReleaseStaleClaims(ctx context.Context) (int64, error)
}

// Расписание задач
const (
	ReconcileSpec     = "0 * * * *"
	ReleaseClaimsSpec = "*/15 * * * *"
)

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron     *cron.Cron
	ledger   Reconciler
	reports  ClaimReleaser
	location *time.Location
	capture  func(message string)
}

// NewScheduler создаёт планировщик задач в часовом поясе приложения.
func NewScheduler(ledger Reconciler, reports ClaimReleaser, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		ledger:   ledger,
		reports:  reports,
		location: loc,
		capture:  func(message string) { sentry.CaptureMessage(message) },
	}
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(ReconcileSpec, func() { s.reconcile(ctx) }); err != nil {
		return fmt.Errorf("ошибка регистрации сверки: %w", err)
	}
	if _, err := s.cron.AddFunc(ReleaseClaimsSpec, func() { s.releaseClaims(ctx) }); err != nil {
		return fmt.Errorf("ошибка регистрации освобождения заявок: %w", err)
	}

	s.cron.Start()
	log.Infof("Планировщик задач запущен (%s)", s.location)
	return nil
}

// Stop останавливает планировщик и ждёт выполняющиеся задачи.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

func (s *Scheduler) reconcile(ctx context.Context) {
	log.Debug("[CRON] Сверка кошельков с журналом")
	drifts, err := s.ledger.Reconcile(ctx)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка сверки")
		return
	}
	for _, d := range drifts {
		diff := d.WalletPoints - d.JournalPoints
		log.WithFields(log.Fields{
			"user_id":        d.UserID,
			"wallet_points":  d.WalletPoints,
			"journal_points": d.JournalPoints,
		}).Error("[CRON] Баланс расходится с журналом")
		s.capture(fmt.Sprintf("wallet %d drifted from journal: balance %s, journal %s (%s)",
			d.UserID, common.FormatNumber(d.WalletPoints), common.FormatNumber(d.JournalPoints),
			common.FormatPointsDelta(diff)))
	}
	if len(drifts) == 0 {
		log.Debug("[CRON] Расхождений нет")
	}
}

func (s *Scheduler) releaseClaims(ctx context.Context) {
	released, err := s.reports.ReleaseStaleClaims(ctx)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка освобождения заявок")
		return
	}
	if released > 0 {
		log.WithField("released", released).Info("[CRON] Зависшие заявки возвращены в очередь")
	}
}
