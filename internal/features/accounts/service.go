// Package accounts — service.go содержит бизнес-логику пользователей:
// вход по подтверждённому email, профиль и привязку Telegram.
package accounts

import (
	"context"
	"net/mail"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/waste-rewards/internal/common"
	"serotonyl.ru/waste-rewards/internal/features/ledger"
)

// Store — хранилище пользователей.
type Store interface {
	Upsert(ctx context.Context, email, name string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	SetTelegramChatID(ctx context.Context, id int64, chatID *int64) (*User, error)
}

// Wallets — часть ledger, нужная при входе: у каждого пользователя должен быть кошелёк.
type Wallets interface {
	GetOrCreateBalance(ctx context.Context, userID int64) (*ledger.Wallet, error)
}

// Service управляет пользователями.
type Service struct {
	store   Store
	wallets Wallets
}

// NewService создаёт новый сервис пользователей.
func NewService(store Store, wallets Wallets) *Service {
	return &Service{store: store, wallets: wallets}
}

// NormalizeEmail приводит email к каноническому виду (нижний регистр, без пробелов).
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", common.Invalid("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", common.Invalid("email is malformed")
	}
	return email, nil
}

// SignIn создаёт пользователя при первом входе или возвращает существующего.
// Личность уже подтверждена внешним провайдером, здесь только учёт.
// Кошелёк создаётся сразу, чтобы баланс был виден с первого запроса.
func (s *Service) SignIn(ctx context.Context, email, name string) (*User, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if len(name) > 255 {
		return nil, common.Invalid("name is too long")
	}

	u, err := s.store.Upsert(ctx, email, name)
	if err != nil {
		return nil, err
	}
	if _, err := s.wallets.GetOrCreateBalance(ctx, u.ID); err != nil {
		return nil, err
	}

	log.WithField("user_id", u.ID).Info("Пользователь вошёл")
	return u, nil
}

// Get возвращает пользователя по id.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.store.GetByID(ctx, id)
}

// LinkTelegram привязывает чат для push-уведомлений. chatID == nil отвязывает.
func (s *Service) LinkTelegram(ctx context.Context, userID int64, chatID *int64) (*User, error) {
	if chatID != nil && *chatID == 0 {
		return nil, common.Invalid("telegram chat id must be non-zero")
	}
	u, err := s.store.SetTelegramChatID(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"user_id": userID,
		"linked":  chatID != nil,
	}).Info("Привязка Telegram обновлена")
	return u, nil
}

// TelegramChatID возвращает привязанный чат пользователя. false — чат не привязан.
func (s *Service) TelegramChatID(ctx context.Context, userID int64) (int64, bool, error) {
	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return 0, false, err
	}
	if u.TelegramChatID == nil {
		return 0, false, nil
	}
	return *u.TelegramChatID, true, nil
}
