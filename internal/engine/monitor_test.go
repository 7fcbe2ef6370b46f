package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"pump-sniper-bot/internal/domain"
	"pump-sniper-bot/internal/executor"
	"pump-sniper-bot/internal/observability"
	"pump-sniper-bot/internal/risk"
	"pump-sniper-bot/internal/storage"
	memstore "pump-sniper-bot/internal/storage/memory"
)

type mapPrices struct {
	mu    sync.Mutex
	snaps map[string]*domain.PriceSnapshot
}

func (m *mapPrices) set(mint, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snaps == nil {
		m.snaps = make(map[string]*domain.PriceSnapshot)
	}
	m.snaps[mint] = &domain.PriceSnapshot{Mint: mint, Price: dec(price), Source: domain.PriceSourcePrimary}
}

func (m *mapPrices) GetPriceWithFallback(_ context.Context, mint string) *domain.PriceSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snaps[mint]
}

type recordingExecutor struct {
	mu      sync.Mutex
	sells   []string
	sellErr error
}

func (r *recordingExecutor) Buy(_ context.Context, _ string, _ decimal.Decimal) (*executor.BuyResult, error) {
	return nil, errors.New("not used")
}

func (r *recordingExecutor) Sell(_ context.Context, mint string, tokenAmount decimal.Decimal) (*executor.SellResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sellErr != nil {
		return nil, r.sellErr
	}
	r.sells = append(r.sells, mint)
	return &executor.SellResult{
		SolReceived: dec("0.12"),
		ExitPrice:   dec("1.30"),
		TxRef:       "sell-" + mint,
	}, nil
}

func (r *recordingExecutor) sellCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sells)
}

type fakeBreaker struct {
	mu       sync.Mutex
	active   bool
	outcomes []decimal.Decimal
}

func (f *fakeBreaker) Check(_ context.Context) risk.BreakerStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return risk.BreakerStatus{Active: f.active}
}

func (f *fakeBreaker) RecordOutcome(pnl decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, pnl)
}

func openTestPosition(t *testing.T, store storage.PositionStore, mint, entry string) {
	t.Helper()
	err := store.Open(context.Background(), &domain.Position{
		Mint:        mint,
		Symbol:      "TEST",
		Category:    domain.CategoryNormal,
		EntryPrice:  dec(entry),
		EntryTime:   time.Now().Add(-time.Minute),
		SolSpent:    dec("0.1"),
		TokenAmount: dec("1000000"),
		Status:      domain.PositionOpen,
	})
	if err != nil {
		t.Fatalf("open position: %v", err)
	}
}

func TestMonitor_TakeProfitClosesPosition(t *testing.T) {
	store := memstore.NewPositionStore()
	prices := &mapPrices{}
	exec := &recordingExecutor{}
	breaker := &fakeBreaker{}

	openTestPosition(t, store, "mint1", "1.0")
	prices.set("mint1", "1.30")

	m := NewMonitor(store, prices, exec, testRules(), WithBreaker(breaker))
	m.Tick(context.Background())

	if exec.sellCount() != 1 {
		t.Fatalf("sells = %d, want 1", exec.sellCount())
	}
	if _, err := store.GetOpen(context.Background(), "mint1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("position still open after exit: %v", err)
	}

	entries, err := store.LedgerEntries(context.Background(), domain.Day(time.Now()))
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if len(entries) != 1 || entries[0].Reason != domain.CloseReasonTakeProfit {
		t.Errorf("ledger = %+v, want one take_profit entry", entries)
	}

	// Realized PnL reached the breaker: 0.12 received - 0.1 spent.
	if len(breaker.outcomes) != 1 || !breaker.outcomes[0].Equal(dec("0.02")) {
		t.Errorf("breaker outcomes = %v, want [0.02]", breaker.outcomes)
	}
}

func TestMonitor_PublishesDailyPnLGauge(t *testing.T) {
	store := memstore.NewPositionStore()
	prices := &mapPrices{}
	exec := &recordingExecutor{}
	metrics := observability.NewMetrics("test_monitor")

	openTestPosition(t, store, "mint1", "1.0")
	prices.set("mint1", "1.30")

	m := NewMonitor(store, prices, exec, testRules(), WithMonitorMetrics(metrics))

	// First tick closes the position at take profit; the next tick reads
	// the day's realized PnL into the gauge.
	m.Tick(context.Background())
	m.Tick(context.Background())

	if got := testutil.ToFloat64(metrics.DailyPnLSol); got != 0.02 {
		t.Errorf("daily pnl gauge = %v, want 0.02", got)
	}
}

func TestMonitor_NoPriceSkipsPosition(t *testing.T) {
	store := memstore.NewPositionStore()
	exec := &recordingExecutor{}

	openTestPosition(t, store, "mint1", "1.0")

	m := NewMonitor(store, &mapPrices{}, exec, testRules())
	m.Tick(context.Background())

	if exec.sellCount() != 0 {
		t.Error("sold without a price")
	}
	if _, err := store.GetOpen(context.Background(), "mint1"); err != nil {
		t.Errorf("position should remain open: %v", err)
	}
}

func TestMonitor_RaisesMaxPrice(t *testing.T) {
	store := memstore.NewPositionStore()
	prices := &mapPrices{}

	openTestPosition(t, store, "mint1", "1.0")
	prices.set("mint1", "1.15")

	m := NewMonitor(store, prices, &recordingExecutor{}, testRules())
	m.Tick(context.Background())

	pos, err := store.GetOpen(context.Background(), "mint1")
	if err != nil {
		t.Fatalf("GetOpen: %v", err)
	}
	if !pos.MaxPriceSeen.Equal(dec("1.15")) {
		t.Errorf("MaxPriceSeen = %s, want 1.15", pos.MaxPriceSeen)
	}
}

func TestMonitor_BreakerSuppressesSellsNotBookkeeping(t *testing.T) {
	store := memstore.NewPositionStore()
	prices := &mapPrices{}
	exec := &recordingExecutor{}
	breaker := &fakeBreaker{active: true}

	openTestPosition(t, store, "mint1", "1.0")
	prices.set("mint1", "1.50") // would fire take-profit

	m := NewMonitor(store, prices, exec, testRules(), WithBreaker(breaker))
	m.Tick(context.Background())

	if exec.sellCount() != 0 {
		t.Error("sold while the breaker was active")
	}

	pos, err := store.GetOpen(context.Background(), "mint1")
	if err != nil {
		t.Fatalf("GetOpen: %v", err)
	}
	if !pos.MaxPriceSeen.Equal(dec("1.50")) {
		t.Errorf("MaxPriceSeen = %s, bookkeeping must continue", pos.MaxPriceSeen)
	}
}

func TestMonitor_FailedSellLeavesPositionOpen(t *testing.T) {
	store := memstore.NewPositionStore()
	prices := &mapPrices{}
	exec := &recordingExecutor{sellErr: errors.New("venue rejected")}

	openTestPosition(t, store, "mint1", "1.0")
	prices.set("mint1", "1.50")

	m := NewMonitor(store, prices, exec, testRules())
	m.Tick(context.Background())

	if _, err := store.GetOpen(context.Background(), "mint1"); err != nil {
		t.Fatalf("position must stay open after a failed sell: %v", err)
	}

	// The next tick retries and succeeds.
	exec.sellErr = nil
	m.Tick(context.Background())
	if exec.sellCount() != 1 {
		t.Errorf("sells = %d, want 1 on retry tick", exec.sellCount())
	}
}

func TestMonitor_OneFailureDoesNotBlockOthers(t *testing.T) {
	store := memstore.NewPositionStore()
	prices := &mapPrices{}
	exec := &recordingExecutor{}

	openTestPosition(t, store, "mint-nopx", "1.0")
	openTestPosition(t, store, "mint-tp", "1.0")
	prices.set("mint-tp", "1.40")

	m := NewMonitor(store, prices, exec, testRules())
	m.Tick(context.Background())

	if exec.sellCount() != 1 {
		t.Errorf("sells = %d, want the priced position closed", exec.sellCount())
	}
}

func TestMonitor_CloseObserverFires(t *testing.T) {
	store := memstore.NewPositionStore()
	prices := &mapPrices{}

	openTestPosition(t, store, "mint1", "1.0")
	prices.set("mint1", "1.40")

	var closed []string
	m := NewMonitor(store, prices, &recordingExecutor{}, testRules(),
		WithCloseObserver(func(mint string) { closed = append(closed, mint) }))
	m.Tick(context.Background())

	if len(closed) != 1 || closed[0] != "mint1" {
		t.Errorf("close observer calls = %v, want [mint1]", closed)
	}
}

type countingWaiter struct{ calls int }

func (c *countingWaiter) Wait(_ context.Context) error {
	c.calls++
	return nil
}

func TestMonitor_WaitsBeforeEveryRead(t *testing.T) {
	store := memstore.NewPositionStore()
	prices := &mapPrices{}
	waiter := &countingWaiter{}

	openTestPosition(t, store, "mint1", "1.0")
	openTestPosition(t, store, "mint2", "1.0")
	prices.set("mint1", "1.01")
	prices.set("mint2", "1.01")

	m := NewMonitor(store, prices, &recordingExecutor{}, testRules(), WithRateLimiter(waiter))
	m.Tick(context.Background())

	if waiter.calls != 2 {
		t.Errorf("limiter waits = %d, want one per position", waiter.calls)
	}
}

func TestMonitor_RunStopsOnCancel(t *testing.T) {
	store := memstore.NewPositionStore()
	m := NewMonitor(store, &mapPrices{}, &recordingExecutor{}, testRules(),
		WithTickInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
