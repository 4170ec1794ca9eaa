// Package reports — service.go содержит сценарии отчётов и сбора мусора.
package reports

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/waste-rewards/internal/common"
	"serotonyl.ru/waste-rewards/internal/features/ledger"
	"serotonyl.ru/waste-rewards/internal/features/notifications"
	"serotonyl.ru/waste-rewards/internal/media"
	"serotonyl.ru/waste-rewards/internal/verification"
)

// Размеры выборок
const (
	TasksPerPage       = 5
	DefaultRecentLimit = 10
	MaxRecentLimit     = 50
	maxFieldLength     = 255
)

// Store — хранилище отчётов.
type Store interface {
	Create(ctx context.Context, p CreateParams, reward int64) (*Report, *ledger.Wallet, error)
	Get(ctx context.Context, id int64) (*Report, error)
	Recent(ctx context.Context, limit int) ([]*Report, error)
	ListTasks(ctx context.Context, search string, limit, offset int) ([]*Report, int, error)
	Claim(ctx context.Context, id, collectorID int64) (*Report, error)
	Complete(ctx context.Context, id, collectorID int64) (*Report, error)
	SaveVerificationResult(ctx context.Context, id, collectorID int64, res verification.Result) error
	CompleteCollection(ctx context.Context, id, collectorID int64, res verification.Result, reward int64) (*Report, *CollectedWaste, *ledger.Wallet, error)
	CollectedByCollector(ctx context.Context, collectorID int64) ([]*CollectedWaste, error)
	ReleaseStaleClaims(ctx context.Context, before time.Time) (int64, error)
}

// Notifier отправляет уведомление в фоне.
type Notifier interface {
	Notify(ctx context.Context, userID int64, message, typ string)
}

// Options — награды и сроки.
type Options struct {
	ReportReward  int64         // Баллы автору отчёта
	CollectReward int64         // Баллы сборщику за подтверждённый сбор
	ClaimTTL      time.Duration // Через сколько захваченная задача освобождается
}

// Service управляет отчётами и сбором.
type Service struct {
	store    Store
	verifier verification.Verifier
	images   media.Store
	notifier Notifier
	opts     Options
	now      func() time.Time
}

// NewService создаёт сервис отчётов.
func NewService(store Store, verifier verification.Verifier, images media.Store, notifier Notifier, opts Options) *Service {
	return &Service{
		store:    store,
		verifier: verifier,
		images:   images,
		notifier: notifier,
		opts:     opts,
		now:      time.Now,
	}
}

// CreateResult — созданный отчёт и баланс автора после начисления.
type CreateResult struct {
	Report *Report        `json:"report"`
	Wallet *ledger.Wallet `json:"wallet"`
}

func requiredField(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", common.Invalid(name + " is required")
	}
	if len(value) > maxFieldLength {
		return "", common.Invalid(name + " is too long")
	}
	return value, nil
}

// CreateReport создаёт отчёт со статусом pending и начисляет автору ReportReward.
// Фото (если есть) сохраняется до транзакции начисления.
func (s *Service) CreateReport(ctx context.Context, userID int64, in NewReport) (*CreateResult, error) {
	var (
		p   = CreateParams{UserID: userID}
		err error
	)
	if p.Location, err = requiredField("location", in.Location); err != nil {
		return nil, err
	}
	if p.WasteType, err = requiredField("waste type", in.WasteType); err != nil {
		return nil, err
	}
	if p.Amount, err = requiredField("amount", in.Amount); err != nil {
		return nil, err
	}

	if in.Image != "" {
		img, err := media.ParseDataURI(in.Image)
		if err != nil {
			return nil, err
		}
		if p.ImageURL, err = s.images.Save(ctx, img, "reports"); err != nil {
			return nil, err
		}
	}

	rep, w, err := s.store.Create(ctx, p, s.opts.ReportReward)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id":   userID,
		"report_id": rep.ID,
		"amount":    s.opts.ReportReward,
	}).Info("Отчёт создан, автору начислены баллы")

	s.notifier.Notify(ctx, userID,
		fmt.Sprintf("You've earned %s for reporting waste!", common.FormatPoints(s.opts.ReportReward)),
		notifications.TypeReward)

	return &CreateResult{Report: rep, Wallet: w}, nil
}

// RecentReports возвращает последние отчёты.
func (s *Service) RecentReports(ctx context.Context, limit int) ([]*Report, error) {
	out, err := s.store.Recent(ctx, common.ClampLimit(limit, DefaultRecentLimit, MaxRecentLimit))
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*Report{}
	}
	return out, nil
}

// ListTasks возвращает страницу задач (по TasksPerPage), отфильтрованных по location.
// Страницы нумеруются с 1, номер меньше 1 считается первой страницей.
func (s *Service) ListTasks(ctx context.Context, search string, page int) (*TaskPage, error) {
	if page < 1 {
		page = 1
	}
	tasks, total, err := s.store.ListTasks(ctx, strings.TrimSpace(search), TasksPerPage, (page-1)*TasksPerPage)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []*Report{}
	}
	pageCount := (total + TasksPerPage - 1) / TasksPerPage
	if pageCount < 1 {
		pageCount = 1
	}
	return &TaskPage{Tasks: tasks, Total: total, Page: page, PerPage: TasksPerPage, PageCount: pageCount}, nil
}

// Claim закрепляет задачу за сборщиком.
func (s *Service) Claim(ctx context.Context, collectorID, reportID int64) (*Report, error) {
	rep, err := s.store.Claim(ctx, reportID, collectorID)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"user_id": collectorID, "report_id": reportID}).Info("Задача взята в работу")
	return rep, nil
}

// Complete отмечает задачу выполненной без фото и без награды.
func (s *Service) Complete(ctx context.Context, collectorID, reportID int64) (*Report, error) {
	rep, err := s.store.Complete(ctx, reportID, collectorID)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"user_id": collectorID, "report_id": reportID}).Info("Задача завершена без подтверждения")
	return rep, nil
}

// VerifyOutcome — итог проверки фото.
type VerifyOutcome struct {
	Verified   bool                `json:"verified"`
	Result     verification.Result `json:"result"`
	Report     *Report             `json:"report"`
	Collection *CollectedWaste     `json:"collection,omitempty"`
	Reward     int64               `json:"reward"`
	Wallet     *ledger.Wallet      `json:"wallet,omitempty"`
}

// VerifyCollection проверяет фото собранного мусора и при успехе засчитывает сбор.
// Уже собранный отчёт отклоняется до обращения к модели, повторной награды не бывает.
func (s *Service) VerifyCollection(ctx context.Context, collectorID, reportID int64, image string) (*VerifyOutcome, error) {
	img, err := media.ParseDataURI(image)
	if err != nil {
		return nil, err
	}

	rep, err := s.store.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if err := CheckCollectable(rep, collectorID); err != nil {
		return nil, err
	}

	res, err := s.verifier.Verify(ctx, img, rep.WasteType)
	if err != nil {
		return nil, err
	}

	logger := log.WithFields(log.Fields{
		"user_id":    collectorID,
		"report_id":  reportID,
		"confidence": res.Confidence,
		"match":      res.WasteTypeMatch,
	})

	if !res.Passed() {
		if err := s.store.SaveVerificationResult(ctx, reportID, collectorID, res); err != nil {
			return nil, err
		}
		rep.VerificationResult = &res
		logger.Info("Сбор не подтверждён моделью")
		return &VerifyOutcome{Verified: false, Result: res, Report: rep}, nil
	}

	rep, cw, w, err := s.store.CompleteCollection(ctx, reportID, collectorID, res, s.opts.CollectReward)
	if err != nil {
		return nil, err
	}
	logger.WithField("amount", s.opts.CollectReward).Info("Сбор подтверждён, сборщику начислены баллы")

	s.notifier.Notify(ctx, collectorID,
		fmt.Sprintf("You've earned %s for collecting waste!", common.FormatPoints(s.opts.CollectReward)),
		notifications.TypeReward)

	return &VerifyOutcome{
		Verified:   true,
		Result:     res,
		Report:     rep,
		Collection: cw,
		Reward:     s.opts.CollectReward,
		Wallet:     w,
	}, nil
}

// CollectedByCollector возвращает сборы пользователя.
func (s *Service) CollectedByCollector(ctx context.Context, collectorID int64) ([]*CollectedWaste, error) {
	out, err := s.store.CollectedByCollector(ctx, collectorID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*CollectedWaste{}
	}
	return out, nil
}

// ReleaseStaleClaims освобождает задачи, которые висят в работе дольше ClaimTTL.
func (s *Service) ReleaseStaleClaims(ctx context.Context) (int64, error) {
	return s.store.ReleaseStaleClaims(ctx, s.now().Add(-s.opts.ClaimTTL))
}
