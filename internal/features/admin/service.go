// Package admin — service.go содержит вход администратора:
// проверку пароля, ограничение попыток и выпуск админского токена.
package admin

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/waste-rewards/internal/common"
	"serotonyl.ru/waste-rewards/internal/session"
)

// Store — журнал попыток входа.
type Store interface {
	LogAttempt(ctx context.Context, remoteAddr string, success bool) error
	RecentFailures(ctx context.Context, remoteAddr string, since time.Time) (int, error)
}

// Service управляет входом в админку.
type Service struct {
	store        Store
	sessions     *session.Manager
	passwordHash string
	now          func() time.Time
}

// NewService создаёт сервис админки.
func NewService(store Store, sessions *session.Manager, passwordHash string) *Service {
	return &Service{store: store, sessions: sessions, passwordHash: passwordHash, now: time.Now}
}

// Login проверяет пароль и выпускает админский токен.
// 3 неудачные попытки с одного адреса за час блокируют адрес до конца окна.
func (s *Service) Login(ctx context.Context, remoteAddr, password string) (string, session.Session, error) {
	logger := log.WithField("remote_addr", remoteAddr)

	failures, err := s.store.RecentFailures(ctx, remoteAddr, s.now().Add(-LockoutWindow))
	if err != nil {
		return "", session.Session{}, err
	}
	if failures >= MaxFailedAttempts {
		logger.Warn("Вход в админку заблокирован: слишком много попыток")
		return "", session.Session{}, common.ErrTooManyAttempts
	}

	match := password != "" && VerifyPassword(password, s.passwordHash)
	if err := s.store.LogAttempt(ctx, remoteAddr, match); err != nil {
		return "", session.Session{}, err
	}
	if !match {
		logger.Warn("Неверный пароль администратора")
		return "", session.Session{}, common.ErrWrongPassword
	}

	token, sess, err := s.sessions.Issue(0, session.RoleAdmin)
	if err != nil {
		return "", session.Session{}, err
	}
	logger.WithField("token_id", sess.TokenID).Info("Администратор вошёл")
	return token, sess, nil
}
