package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"serotonyl.ru/waste-rewards/internal/common"
)

// memStore — Store в памяти. Один мьютекс на всё повторяет сериализацию,
// которую в Postgres даёт блокировка строки кошелька.
type memStore struct {
	mu      sync.Mutex
	users   map[int64]string
	wallets map[int64]*Wallet
	txs     []*Transaction
	offers  map[int64]*RewardOffer
	nextTx  int64
	nextOff int64
	clock   time.Time
	// drift искусственно портит баланс для проверки сверки
	drift map[int64]int64
}

func newMemStore(userIDs ...int64) *memStore {
	s := &memStore{
		users:   map[int64]string{},
		wallets: map[int64]*Wallet{},
		offers:  map[int64]*RewardOffer{},
		clock:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		drift:   map[int64]int64{},
	}
	for _, id := range userIDs {
		s.users[id] = fmt.Sprintf("user-%d", id)
	}
	return s
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Minute)
	return s.clock
}

func (s *memStore) ensure(userID int64) (*Wallet, error) {
	if _, ok := s.users[userID]; !ok {
		return nil, common.ErrUserNotFound
	}
	w, ok := s.wallets[userID]
	if !ok {
		now := s.tick()
		w = &Wallet{UserID: userID, Level: 1, CreatedAt: now, UpdatedAt: now}
		s.wallets[userID] = w
	}
	return w, nil
}

func (s *memStore) apply(w *Wallet, delta int64) *Wallet {
	w.Points += delta + s.drift[w.UserID]
	delete(s.drift, w.UserID)
	w.Level = common.LevelForPoints(w.Points)
	w.UpdatedAt = s.tick()
	cp := *w
	return &cp
}

func (s *memStore) appendTx(userID int64, txType string, amount int64, desc string, offerID *int64) *Transaction {
	s.nextTx++
	t := &Transaction{
		ID: s.nextTx, UserID: userID, Type: txType, Amount: amount,
		Description: desc, OfferID: offerID, CreatedAt: s.tick(),
	}
	s.txs = append(s.txs, t)
	cp := *t
	return &cp
}

func (s *memStore) EnsureWallet(_ context.Context, userID int64) (*Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.ensure(userID)
	if err != nil {
		return nil, err
	}
	cp := *w
	return &cp, nil
}

func (s *memStore) Credit(_ context.Context, userID, amount int64, txType, description string) (*Wallet, *Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.ensure(userID)
	if err != nil {
		return nil, nil, err
	}
	return s.apply(w, amount), s.appendTx(userID, txType, amount, description, nil), nil
}

func (s *memStore) Redeem(_ context.Context, userID, offerID, expectedCost int64) (*Wallet, *Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[offerID]
	if !ok {
		return nil, nil, common.ErrRedeemRewardNotFound
	}
	if !o.IsAvailable {
		return nil, nil, common.ErrRewardUnavailable
	}
	if expectedCost > 0 && expectedCost != o.Cost {
		return nil, nil, common.ErrRewardCostMismatch
	}
	w, err := s.ensure(userID)
	if err != nil {
		return nil, nil, err
	}
	if w.Points < o.Cost {
		return nil, nil, common.ErrInsufficientPoints
	}
	id := o.ID
	return s.apply(w, -o.Cost), s.appendTx(userID, TxRedeemed, o.Cost, "Redeemed: "+o.Name, &id), nil
}

func (s *memStore) RedeemAll(_ context.Context, userID int64) (*Wallet, *Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.ensure(userID)
	if err != nil {
		return nil, nil, err
	}
	prior := w.Points
	if prior == 0 {
		return nil, nil, common.ErrNothingToRedeem
	}
	return s.apply(w, -prior), s.appendTx(userID, TxRedeemed, prior, fmt.Sprintf("Redeemed all points: %d", prior), nil), nil
}

func (s *memStore) ListTransactions(_ context.Context, userID int64, limit int) ([]*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Transaction
	for i := len(s.txs) - 1; i >= 0 && len(out) < limit; i-- {
		if s.txs[i].UserID == userID {
			cp := *s.txs[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) ListOffers(_ context.Context, onlyAvailable bool) ([]*RewardOffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*RewardOffer
	for _, o := range s.offers {
		if onlyAvailable && !o.IsAvailable {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Cost != out[j].Cost {
			return out[i].Cost < out[j].Cost
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memStore) CreateOffer(_ context.Context, in OfferInput) (*RewardOffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextOff++
	available := true
	if in.IsAvailable != nil {
		available = *in.IsAvailable
	}
	now := s.tick()
	o := &RewardOffer{
		ID: s.nextOff, Name: in.Name, Description: in.Description, Cost: in.Cost,
		IsAvailable: available, CreatedAt: now, UpdatedAt: now,
	}
	s.offers[o.ID] = o
	cp := *o
	return &cp, nil
}

func (s *memStore) UpdateOffer(_ context.Context, id int64, p OfferPatch) (*RewardOffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[id]
	if !ok {
		return nil, common.ErrRewardNotFound
	}
	if p.Name != nil {
		o.Name = *p.Name
	}
	if p.Description != nil {
		o.Description = *p.Description
	}
	if p.Cost != nil {
		o.Cost = *p.Cost
	}
	if p.IsAvailable != nil {
		o.IsAvailable = *p.IsAvailable
	}
	o.UpdatedAt = s.tick()
	cp := *o
	return &cp, nil
}

func (s *memStore) Leaderboard(_ context.Context, limit int) ([]*LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*LeaderboardEntry
	for _, w := range s.wallets {
		out = append(out, &LeaderboardEntry{UserID: w.UserID, Name: s.users[w.UserID], Points: w.Points})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		return out[i].UserID < out[j].UserID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	for i, e := range out {
		e.Rank = i + 1
		e.Level = common.LevelForPoints(e.Points)
	}
	return out, nil
}

func (s *memStore) Reconcile(_ context.Context) ([]Drift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	journal := map[int64]int64{}
	for _, t := range s.txs {
		if t.Type == TxRedeemed {
			journal[t.UserID] -= t.Amount
		} else {
			journal[t.UserID] += t.Amount
		}
	}
	var out []Drift
	for id, w := range s.wallets {
		if w.Points != journal[id] {
			out = append(out, Drift{UserID: id, WalletPoints: w.Points, JournalPoints: journal[id]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
