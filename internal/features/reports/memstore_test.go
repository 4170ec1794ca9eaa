package reports

import (
	"context"
	"strings"
	"sync"
	"time"

	"serotonyl.ru/waste-rewards/internal/common"
	"serotonyl.ru/waste-rewards/internal/features/ledger"
	"serotonyl.ru/waste-rewards/internal/verification"
)

// memStore — Store в памяти с балансами, чтобы проверять начисления.
type memStore struct {
	mu         sync.Mutex
	reports    map[int64]*Report
	order      []int64
	collected  map[int64]*CollectedWaste
	balances   map[int64]int64
	journal    []string
	clock      time.Time
	nextReport int64
	nextCW     int64
}

func newMemStore() *memStore {
	return &memStore{
		reports:   map[int64]*Report{},
		collected: map[int64]*CollectedWaste{},
		balances:  map[int64]int64{},
		clock:     time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

func (m *memStore) credit(userID, amount int64, txType string) *ledger.Wallet {
	m.balances[userID] += amount
	m.journal = append(m.journal, txType)
	return &ledger.Wallet{UserID: userID, Points: m.balances[userID], Level: common.LevelForPoints(m.balances[userID])}
}

func clone(r *Report) *Report {
	cp := *r
	return &cp
}

func (m *memStore) Create(_ context.Context, p CreateParams, reward int64) (*Report, *ledger.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextReport++
	now := m.tick()
	r := &Report{
		ID: m.nextReport, UserID: p.UserID, Location: p.Location, WasteType: p.WasteType,
		Amount: p.Amount, Status: StatusPending, ImageURL: p.ImageURL, CreatedAt: now, UpdatedAt: now,
	}
	m.reports[r.ID] = r
	m.order = append(m.order, r.ID)
	return clone(r), m.credit(p.UserID, reward, ledger.TxEarnedReport), nil
}

func (m *memStore) Get(_ context.Context, id int64) (*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, common.ErrReportNotFound
	}
	return clone(r), nil
}

func (m *memStore) Recent(_ context.Context, limit int) ([]*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Report
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, clone(m.reports[m.order[i]]))
	}
	return out, nil
}

func (m *memStore) ListTasks(_ context.Context, search string, limit, offset int) ([]*Report, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*Report
	for i := len(m.order) - 1; i >= 0; i-- {
		r := m.reports[m.order[i]]
		if strings.Contains(strings.ToLower(r.Location), strings.ToLower(search)) {
			matched = append(matched, clone(r))
		}
	}
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (m *memStore) Claim(_ context.Context, id, collectorID int64) (*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, common.ErrReportNotFound
	}
	if r.Status != StatusPending {
		return nil, common.ErrReportNotClaimable
	}
	now := m.tick()
	r.Status = StatusInProgress
	r.CollectorID = &collectorID
	r.ClaimedAt = &now
	return clone(r), nil
}

func (m *memStore) Complete(_ context.Context, id, collectorID int64) (*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, common.ErrReportNotFound
	}
	if err := CheckCollectable(r, collectorID); err != nil {
		return nil, err
	}
	r.Status = StatusCompleted
	return clone(r), nil
}

func (m *memStore) SaveVerificationResult(_ context.Context, id, collectorID int64, res verification.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok || r.Status != StatusInProgress || r.CollectorID == nil || *r.CollectorID != collectorID {
		return common.ErrReportNotClaimed
	}
	r.VerificationResult = &res
	return nil
}

func (m *memStore) CompleteCollection(_ context.Context, id, collectorID int64, res verification.Result, reward int64) (*Report, *CollectedWaste, *ledger.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, nil, nil, common.ErrReportNotFound
	}
	if err := CheckCollectable(r, collectorID); err != nil {
		return nil, nil, nil, err
	}
	if _, dup := m.collected[id]; dup {
		return nil, nil, nil, common.ErrReportAlreadyCollected
	}
	r.Status = StatusVerified
	r.VerificationResult = &res
	m.nextCW++
	cw := &CollectedWaste{
		ID: m.nextCW, ReportID: id, CollectorID: collectorID, CollectedAt: m.tick(),
		Status: CollectedStatus, VerificationResult: &res,
	}
	m.collected[id] = cw
	return clone(r), cw, m.credit(collectorID, reward, ledger.TxEarnedCollect), nil
}

func (m *memStore) CollectedByCollector(_ context.Context, collectorID int64) ([]*CollectedWaste, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*CollectedWaste
	for _, cw := range m.collected {
		if cw.CollectorID == collectorID {
			out = append(out, cw)
		}
	}
	return out, nil
}

func (m *memStore) ReleaseStaleClaims(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.reports {
		if r.Status == StatusInProgress && r.ClaimedAt != nil && r.ClaimedAt.Before(before) {
			r.Status = StatusPending
			r.CollectorID = nil
			r.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}
