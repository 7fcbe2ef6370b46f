package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"pump-sniper-bot/internal/domain"
	"pump-sniper-bot/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
// One mutex guards both the open index and the ledger so that Close is
// atomic: transition, index removal, and the ledger append happen under a
// single critical section.
type PositionStore struct {
	mu     sync.RWMutex
	open   map[string]*domain.Position            // keyed by mint
	ledger map[string][]*domain.TradeLedgerEntry  // keyed by day
	now    func() time.Time
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		open:   make(map[string]*domain.Position),
		ledger: make(map[string][]*domain.TradeLedgerEntry),
		now:    time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (s *PositionStore) WithClock(now func() time.Time) *PositionStore {
	s.now = now
	return s
}

// Open persists a new open position. Returns ErrDuplicatePosition if an
// open record for the mint already exists.
func (s *PositionStore) Open(_ context.Context, p *domain.Position) error {
	if p == nil || p.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.open[p.Mint]; exists {
		return storage.ErrDuplicatePosition
	}

	cp := *p
	cp.Status = domain.PositionOpen
	if !cp.MaxPriceSeen.IsPositive() {
		cp.MaxPriceSeen = cp.EntryPrice
	}
	s.open[p.Mint] = &cp
	return nil
}

// GetOpen retrieves the open position for a mint.
func (s *PositionStore) GetOpen(_ context.Context, mint string) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.open[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}

	cp := *p
	return &cp, nil
}

// UpdateMaxPrice raises MaxPriceSeen to observed if it is higher. No-op
// when the position has already been closed.
func (s *PositionStore) UpdateMaxPrice(_ context.Context, mint string, observed decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.open[mint]
	if !exists {
		return nil
	}
	if observed.GreaterThan(p.MaxPriceSeen) {
		p.MaxPriceSeen = observed
	}
	return nil
}

// Close transitions the open position to closed and appends one ledger
// entry for the current day. The second Close for a mint fails with
// ErrNotFound.
func (s *PositionStore) Close(_ context.Context, req storage.CloseRequest) (*domain.Position, error) {
	if req.Mint == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.open[req.Mint]
	if !exists {
		return nil, storage.ErrNotFound
	}

	p.ApplyClose(req.ExitPrice, req.SolReceived, req.Reason, req.TxRef, s.now())
	delete(s.open, req.Mint)

	entry := p.LedgerEntry()
	s.ledger[entry.Day] = append(s.ledger[entry.Day], entry)

	cp := *p
	return &cp, nil
}

// ListOpen returns all open positions, oldest entry first. Records without
// a mint or entry price are skipped.
func (s *PositionStore) ListOpen(_ context.Context) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Position
	for _, p := range s.open {
		if p.Mint == "" || !p.EntryPrice.IsPositive() {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].EntryTime.Before(result[j].EntryTime)
	})

	return result, nil
}

// CountOpen returns open position counts per slot category.
func (s *PositionStore) CountOpen(_ context.Context) (reserved, normal int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.open {
		if p.Category == domain.CategoryReserved {
			reserved++
		} else {
			normal++
		}
	}
	return reserved, normal, nil
}

// DailyPnL sums realized PnL over all ledger entries for a day.
func (s *PositionStore) DailyPnL(_ context.Context, day string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, e := range s.ledger[day] {
		total = total.Add(e.PnLSol)
	}
	return total, nil
}

// DailyStats aggregates the day's ledger.
func (s *PositionStore) DailyStats(_ context.Context, day string) (*domain.DailyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return domain.ComputeDailyStats(day, s.ledger[day]), nil
}

// LedgerEntries returns the raw ledger for a day, oldest first.
func (s *PositionStore) LedgerEntries(_ context.Context, day string) ([]*domain.TradeLedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.ledger[day]
	result := make([]*domain.TradeLedgerEntry, 0, len(entries))
	for _, e := range entries {
		cp := *e
		result = append(result, &cp)
	}
	return result, nil
}

var _ storage.PositionStore = (*PositionStore)(nil)
