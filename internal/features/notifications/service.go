// Package notifications — service.go содержит отправку уведомлений.
// Notify не блокирует вызывающего: запись и push идут в фоне,
// ошибки только логируются.
package notifications

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultTimeout — сколько фоновая доставка может занять.
const DefaultTimeout = 10 * time.Second

// Store — хранилище уведомлений.
type Store interface {
	Create(ctx context.Context, userID int64, typ, message string) (*Notification, error)
	Unread(ctx context.Context, userID int64) ([]*Notification, error)
	MarkRead(ctx context.Context, userID, id int64) error
}

// Pusher доставляет уведомление во внешний канал (Telegram).
type Pusher interface {
	Push(ctx context.Context, userID int64, n *Notification) error
}

// Service управляет уведомлениями.
type Service struct {
	store   Store
	pusher  Pusher // nil — только в БД
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewService создаёт сервис уведомлений. pusher может быть nil.
func NewService(store Store, pusher Pusher) *Service {
	return &Service{store: store, pusher: pusher, timeout: DefaultTimeout}
}

// Notify сохраняет уведомление и пушит его в фоне.
// Отмена ctx вызывающего доставку не прерывает, ограничивает только timeout.
func (s *Service) Notify(ctx context.Context, userID int64, message, typ string) {
	ctx = context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		logger := log.WithFields(log.Fields{"user_id": userID, "type": typ})

		n, err := s.store.Create(ctx, userID, typ, message)
		if err != nil {
			logger.WithError(err).Error("Ошибка сохранения уведомления")
			return
		}
		if s.pusher == nil {
			return
		}
		if err := s.pusher.Push(ctx, userID, n); err != nil {
			logger.WithError(err).Warn("Не удалось отправить уведомление в Telegram")
		}
	}()
}

// Wait дожидается фоновых доставок. Вызывается при остановке сервиса.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Unread возвращает непрочитанные уведомления пользователя.
func (s *Service) Unread(ctx context.Context, userID int64) ([]*Notification, error) {
	out, err := s.store.Unread(ctx, userID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*Notification{}
	}
	return out, nil
}

// MarkRead помечает уведомление прочитанным.
func (s *Service) MarkRead(ctx context.Context, userID, id int64) error {
	return s.store.MarkRead(ctx, userID, id)
}
