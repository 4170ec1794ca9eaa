// Package ledger — service.go содержит бизнес-логику баллов:
// валидацию, начисления, обмен, историю и каталог наград.
package ledger

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/waste-rewards/internal/common"
)

// Лимиты выборок
const (
	DefaultHistoryLimit     = 10
	MaxHistoryLimit         = 100
	DefaultLeaderboardLimit = 50
	MaxLeaderboardLimit     = 200
)

// Store — хранилище ledger. В проде это *Repository, в тестах — память.
type Store interface {
	EnsureWallet(ctx context.Context, userID int64) (*Wallet, error)
	Credit(ctx context.Context, userID, amount int64, txType, description string) (*Wallet, *Transaction, error)
	Redeem(ctx context.Context, userID, offerID, expectedCost int64) (*Wallet, *Transaction, error)
	RedeemAll(ctx context.Context, userID int64) (*Wallet, *Transaction, error)
	ListTransactions(ctx context.Context, userID int64, limit int) ([]*Transaction, error)
	ListOffers(ctx context.Context, onlyAvailable bool) ([]*RewardOffer, error)
	CreateOffer(ctx context.Context, in OfferInput) (*RewardOffer, error)
	UpdateOffer(ctx context.Context, id int64, p OfferPatch) (*RewardOffer, error)
	Leaderboard(ctx context.Context, limit int) ([]*LeaderboardEntry, error)
	Reconcile(ctx context.Context) ([]Drift, error)
}

// Service управляет баллами пользователей.
// Единственный, кто меняет кошельки и журнал.
type Service struct {
	store Store
	loc   *time.Location // Часовой пояс для календарных дат в истории
}

// NewService создаёт новый сервис ledger.
func NewService(store Store, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, loc: loc}
}

// GetOrCreateBalance возвращает кошелёк пользователя, создавая его с нулём при первом обращении.
func (s *Service) GetOrCreateBalance(ctx context.Context, userID int64) (*Wallet, error) {
	return s.store.EnsureWallet(ctx, userID)
}

// Credit начисляет баллы. amount > 0, тип — earned_report или earned_collect.
// Либо баланс и журнал обновятся оба, либо ни один.
func (s *Service) Credit(ctx context.Context, userID, amount int64, txType, description string) (*Wallet, error) {
	if amount <= 0 {
		return nil, common.ErrInvalidAmount
	}
	if !IsCredit(txType) {
		return nil, common.ErrInvalidTransactionType
	}

	w, _, err := s.store.Credit(ctx, userID, amount, txType, description)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"amount":  amount,
		"type":    txType,
		"balance": w.Points,
	}).Info("Баллы начислены")
	return w, nil
}

// Redeem обменивает баллы на награду из каталога.
// expectedCost — цена, которую видел клиент (0 — не сверять).
func (s *Service) Redeem(ctx context.Context, userID, offerID, expectedCost int64) (*Wallet, error) {
	if offerID <= 0 {
		return nil, common.ErrRedeemRewardNotFound
	}
	if expectedCost < 0 {
		return nil, common.ErrInvalidAmount
	}

	w, t, err := s.store.Redeem(ctx, userID, offerID, expectedCost)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id":  userID,
		"offer_id": offerID,
		"amount":   t.Amount,
		"balance":  w.Points,
	}).Info("Награда обменяна")
	return w, nil
}

// RedeemAll обменивает весь баланс разом. В журнал пишется сумма до обнуления.
func (s *Service) RedeemAll(ctx context.Context, userID int64) (*Wallet, error) {
	w, t, err := s.store.RedeemAll(ctx, userID)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"amount":  t.Amount,
	}).Info("Весь баланс обменян")
	return w, nil
}

// ListAvailableRewards возвращает запись «Your Points» с балансом пользователя,
// за ней — доступные позиции каталога. Чужие кошельки в список не попадают.
func (s *Service) ListAvailableRewards(ctx context.Context, userID int64) ([]RewardListing, error) {
	w, err := s.store.EnsureWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	offers, err := s.store.ListOffers(ctx, true)
	if err != nil {
		return nil, err
	}

	out := make([]RewardListing, 0, len(offers)+1)
	out = append(out, RewardListing{
		Kind:        ListingBalance,
		Name:        "Your Points",
		Description: "Redeem all your earned points",
		Cost:        w.Points,
	})
	for _, o := range offers {
		out = append(out, RewardListing{
			Kind:        ListingOffer,
			ID:          o.ID,
			Name:        o.Name,
			Description: o.Description,
			Cost:        o.Cost,
		})
	}
	return out, nil
}

// GetTransactionHistory возвращает последние limit транзакций (по умолчанию 10), новые первыми.
// Дата приводится к календарному дню в часовом поясе приложения.
func (s *Service) GetTransactionHistory(ctx context.Context, userID int64, limit int) ([]*Transaction, error) {
	limit = common.ClampLimit(limit, DefaultHistoryLimit, MaxHistoryLimit)

	txs, err := s.store.ListTransactions(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	for _, t := range txs {
		t.Date = common.FormatDate(t.CreatedAt, s.loc)
	}
	if txs == nil {
		txs = []*Transaction{}
	}
	return txs, nil
}

// Leaderboard возвращает таблицу лидеров.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]*LeaderboardEntry, error) {
	limit = common.ClampLimit(limit, DefaultLeaderboardLimit, MaxLeaderboardLimit)
	entries, err := s.store.Leaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*LeaderboardEntry{}
	}
	return entries, nil
}

// Reconcile сверяет кошельки с журналом. Каждое расхождение пишется в лог.
func (s *Service) Reconcile(ctx context.Context) ([]Drift, error) {
	drifts, err := s.store.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range drifts {
		log.WithFields(log.Fields{
			"user_id": d.UserID,
			"wallet":  d.WalletPoints,
			"journal": d.JournalPoints,
		}).Warn("Баланс кошелька расходится с журналом")
	}
	if drifts == nil {
		drifts = []Drift{}
	}
	return drifts, nil
}

// --- Каталог (админка) ---

// ListOffers возвращает каталог: весь (all=true) или только доступные позиции.
func (s *Service) ListOffers(ctx context.Context, all bool) ([]*RewardOffer, error) {
	offers, err := s.store.ListOffers(ctx, !all)
	if err != nil {
		return nil, err
	}
	if offers == nil {
		offers = []*RewardOffer{}
	}
	return offers, nil
}

// CreateOffer добавляет награду в каталог.
func (s *Service) CreateOffer(ctx context.Context, in OfferInput) (*RewardOffer, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if in.Name == "" {
		return nil, common.Invalid("reward name is required")
	}
	if in.Cost <= 0 {
		return nil, common.Invalid("reward cost must be positive")
	}

	o, err := s.store.CreateOffer(ctx, in)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"offer_id": o.ID, "cost": o.Cost}).Info("Награда добавлена в каталог")
	return o, nil
}

// UpdateOffer меняет награду каталога. Пустой патч — ошибка ввода.
func (s *Service) UpdateOffer(ctx context.Context, id int64, p OfferPatch) (*RewardOffer, error) {
	if p.Name == nil && p.Description == nil && p.Cost == nil && p.IsAvailable == nil {
		return nil, common.Invalid("nothing to update")
	}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, common.Invalid("reward name is required")
		}
		p.Name = &name
	}
	if p.Cost != nil && *p.Cost <= 0 {
		return nil, common.Invalid("reward cost must be positive")
	}

	o, err := s.store.UpdateOffer(ctx, id, p)
	if err != nil {
		return nil, err
	}
	log.WithField("offer_id", id).Info("Награда обновлена")
	return o, nil
}
