package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pump-sniper-bot/internal/domain"
	"pump-sniper-bot/internal/solana"
	"pump-sniper-bot/internal/storage"
	memstore "pump-sniper-bot/internal/storage/memory"
)

type fakeReader struct {
	calls    int
	failures int // fail this many leading calls
	err      error
	reserves *solana.ReserveState
}

func (f *fakeReader) ReadReserves(_ context.Context, _ string) (*solana.ReserveState, error) {
	f.calls++
	if f.calls <= f.failures {
		if f.err != nil {
			return nil, f.err
		}
		return nil, errors.New("endpoint down")
	}
	if f.reserves == nil {
		return nil, errors.New("endpoint down")
	}
	r := *f.reserves
	return &r, nil
}

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	f.sleeps = append(f.sleeps, d)
	f.now = f.now.Add(d)
	return nil
}

func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }

func goodReserves() *solana.ReserveState {
	return &solana.ReserveState{
		TokenReserves: decimal.NewFromInt(1_000_000_000),
		SolReserves:   decimal.RequireFromString("31.2"),
		TotalSupply:   decimal.NewFromInt(1_000_000_000),
	}
}

func newTestCache(primary ReserveReader, clock *fakeClock, opts ...Option) *Cache {
	opts = append(opts, WithClock(clock.Now, clock.Sleep))
	return New(primary, Config{}, opts...)
}

func TestCache_FetchAndLocalHit(t *testing.T) {
	reader := &fakeReader{reserves: goodReserves()}
	clock := &fakeClock{now: time.Now()}
	cache := newTestCache(reader, clock)

	snap, err := cache.GetPrice(context.Background(), "mint1", false)
	if err != nil {
		t.Fatalf("GetPrice failed: %v", err)
	}
	if snap.Source != domain.PriceSourcePrimary {
		t.Errorf("Source = %s, want primary", snap.Source)
	}
	want := decimal.RequireFromString("0.0000000312")
	if !snap.Price.Equal(want) {
		t.Errorf("Price = %s, want %s", snap.Price, want)
	}

	// Second read inside the TTL comes from the local tier.
	snap2, err := cache.GetPrice(context.Background(), "mint1", false)
	if err != nil {
		t.Fatalf("GetPrice failed: %v", err)
	}
	if snap2.Source != domain.PriceSourceCached {
		t.Errorf("Source = %s, want cached", snap2.Source)
	}
	if reader.calls != 1 {
		t.Errorf("reader calls = %d, want 1", reader.calls)
	}
}

func TestCache_LocalExpiry(t *testing.T) {
	reader := &fakeReader{reserves: goodReserves()}
	clock := &fakeClock{now: time.Now()}
	cache := newTestCache(reader, clock)

	if _, err := cache.GetPrice(context.Background(), "mint1", false); err != nil {
		t.Fatalf("GetPrice failed: %v", err)
	}

	clock.advance(DefaultLocalTTL + time.Second)

	if _, err := cache.GetPrice(context.Background(), "mint1", false); err != nil {
		t.Fatalf("GetPrice failed: %v", err)
	}
	if reader.calls != 2 {
		t.Errorf("reader calls = %d, want 2 after expiry", reader.calls)
	}
}

func TestCache_ForceFreshBypassesTiers(t *testing.T) {
	reader := &fakeReader{reserves: goodReserves()}
	clock := &fakeClock{now: time.Now()}
	cache := newTestCache(reader, clock)

	cache.GetPrice(context.Background(), "mint1", false)
	cache.GetPrice(context.Background(), "mint1", true)

	if reader.calls != 2 {
		t.Errorf("reader calls = %d, want 2 with forceFresh", reader.calls)
	}
}

func TestCache_SharedTierRepopulatesLocal(t *testing.T) {
	reader := &fakeReader{reserves: goodReserves()}
	clock := &fakeClock{now: time.Now()}
	shared := memstore.NewSnapshotCache()
	cache := newTestCache(reader, clock, WithSharedCache(shared))

	snap := &domain.PriceSnapshot{
		Mint:      "mint1",
		Price:     decimal.RequireFromString("0.00000005"),
		Source:    domain.PriceSourcePrimary,
		FetchedAt: clock.Now(),
	}
	if err := shared.Set(context.Background(), snap, time.Minute); err != nil {
		t.Fatalf("seed shared cache: %v", err)
	}

	got, err := cache.GetPrice(context.Background(), "mint1", false)
	if err != nil {
		t.Fatalf("GetPrice failed: %v", err)
	}
	if got.Source != domain.PriceSourceCached {
		t.Errorf("Source = %s, want cached", got.Source)
	}
	if reader.calls != 0 {
		t.Errorf("reader calls = %d, want 0 on shared hit", reader.calls)
	}

	// Local tier now holds the snapshot too.
	cache.GetPrice(context.Background(), "mint1", false)
	if reader.calls != 0 {
		t.Errorf("reader calls = %d, want 0 on local hit", reader.calls)
	}
}

func TestCache_RetryWithLinearBackoff(t *testing.T) {
	reader := &fakeReader{failures: 2, reserves: goodReserves()}
	clock := &fakeClock{now: time.Now()}
	cache := newTestCache(reader, clock)

	snap, err := cache.GetPrice(context.Background(), "mint1", true)
	if err != nil {
		t.Fatalf("GetPrice failed: %v", err)
	}
	if snap.Source != domain.PriceSourcePrimary {
		t.Errorf("Source = %s, want primary", snap.Source)
	}
	if reader.calls != 3 {
		t.Errorf("reader calls = %d, want 3", reader.calls)
	}

	// Backoff grows linearly with the attempt number.
	want := []time.Duration{DefaultRetryDelay, 2 * DefaultRetryDelay}
	if len(clock.sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", clock.sleeps, want)
	}
	for i := range want {
		if clock.sleeps[i] != want[i] {
			t.Errorf("sleep[%d] = %v, want %v", i, clock.sleeps[i], want[i])
		}
	}
}

func TestCache_FallbackAfterPrimaryExhausted(t *testing.T) {
	primary := &fakeReader{failures: 10}
	fallback := &fakeReader{reserves: goodReserves()}
	clock := &fakeClock{now: time.Now()}
	cache := newTestCache(primary, clock, WithFallback(fallback))

	snap, err := cache.GetPrice(context.Background(), "mint1", true)
	if err != nil {
		t.Fatalf("GetPrice failed: %v", err)
	}
	if snap.Source != domain.PriceSourceFallback {
		t.Errorf("Source = %s, want fallback", snap.Source)
	}
	if primary.calls != DefaultMaxRetries {
		t.Errorf("primary calls = %d, want %d", primary.calls, DefaultMaxRetries)
	}
	if fallback.calls != 1 {
		t.Errorf("fallback calls = %d, want 1 (single attempt)", fallback.calls)
	}
}

func TestCache_AllEndpointsFail(t *testing.T) {
	primary := &fakeReader{failures: 10}
	fallback := &fakeReader{failures: 10}
	clock := &fakeClock{now: time.Now()}
	cache := newTestCache(primary, clock, WithFallback(fallback))

	if _, err := cache.GetPrice(context.Background(), "mint1", true); err == nil {
		t.Fatal("expected error when every endpoint fails")
	}
	if fallback.calls != 1 {
		t.Errorf("fallback calls = %d, want 1", fallback.calls)
	}
}

func TestCache_InvalidReservesNotCached(t *testing.T) {
	reader := &fakeReader{reserves: &solana.ReserveState{
		TokenReserves: decimal.Zero,
		SolReserves:   decimal.NewFromInt(30),
		TotalSupply:   decimal.NewFromInt(1_000_000_000),
	}}
	clock := &fakeClock{now: time.Now()}
	cache := newTestCache(reader, clock)

	if _, err := cache.GetPrice(context.Background(), "mint1", true); !errors.Is(err, ErrInvalidReserves) {
		t.Fatalf("err = %v, want ErrInvalidReserves", err)
	}

	// The bad read must not have populated the cache.
	if snap := cache.localGet("mint1"); snap != nil {
		t.Errorf("invalid snapshot was cached: %+v", snap)
	}
}

func TestCache_AnomalousPriceStillCached(t *testing.T) {
	// Price above 1 SOL per token is flagged but served.
	reader := &fakeReader{reserves: &solana.ReserveState{
		TokenReserves: decimal.NewFromInt(10),
		SolReserves:   decimal.NewFromInt(30),
		TotalSupply:   decimal.NewFromInt(1_000_000_000),
	}}
	clock := &fakeClock{now: time.Now()}
	cache := newTestCache(reader, clock)

	snap, err := cache.GetPrice(context.Background(), "mint1", true)
	if err != nil {
		t.Fatalf("GetPrice failed: %v", err)
	}
	if !snap.Anomalous {
		t.Error("expected anomaly flag")
	}

	cached, err := cache.GetPrice(context.Background(), "mint1", false)
	if err != nil {
		t.Fatalf("GetPrice failed: %v", err)
	}
	if !cached.Anomalous {
		t.Error("anomaly flag lost on the cached copy")
	}
	if reader.calls != 1 {
		t.Errorf("reader calls = %d, want 1", reader.calls)
	}
}

func TestCache_LowLiquidityFlagged(t *testing.T) {
	reader := &fakeReader{reserves: &solana.ReserveState{
		TokenReserves: decimal.NewFromInt(1_000_000_000),
		SolReserves:   decimal.RequireFromString("0.05"),
		TotalSupply:   decimal.NewFromInt(1_000_000_000),
	}}
	clock := &fakeClock{now: time.Now()}
	cache := newTestCache(reader, clock)

	snap, err := cache.GetPrice(context.Background(), "mint1", true)
	if err != nil {
		t.Fatalf("GetPrice failed: %v", err)
	}
	if !snap.Anomalous {
		t.Error("pool under the liquidity floor should be flagged")
	}
}

func TestCache_GraduationIndex(t *testing.T) {
	graduated := goodReserves()
	graduated.Complete = true
	reader := &fakeReader{reserves: graduated}
	clock := &fakeClock{now: time.Now()}
	cache := newTestCache(reader, clock)

	snap, err := cache.GetPrice(context.Background(), "mint1", true)
	if err != nil {
		t.Fatalf("GetPrice failed: %v", err)
	}
	if !snap.Graduated {
		t.Error("snapshot should carry the graduation flag")
	}
	if !cache.IsGraduated(context.Background(), "mint1") {
		t.Error("graduation index not updated")
	}
	if cache.IsGraduated(context.Background(), "other") {
		t.Error("unrelated mint reported as graduated")
	}

	clock.advance(DefaultGraduationTTL + time.Hour)
	if cache.IsGraduated(context.Background(), "mint1") {
		t.Error("graduation mark should expire")
	}
}

func TestCache_MarkGraduatedWritesShared(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	shared := memstore.NewSnapshotCache()
	cache := newTestCache(&fakeReader{}, clock, WithSharedCache(shared))

	cache.MarkGraduated(context.Background(), "mint1")

	graduated, err := shared.IsGraduated(context.Background(), "mint1")
	if err != nil {
		t.Fatalf("IsGraduated failed: %v", err)
	}
	if !graduated {
		t.Error("shared graduation mark missing")
	}
}

type fakePositions struct {
	pos *domain.Position
	err error
}

func (f *fakePositions) GetOpen(_ context.Context, _ string) (*domain.Position, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pos, nil
}

func TestCache_GetPriceWithFallback_EntryPrice(t *testing.T) {
	reader := &fakeReader{failures: 100}
	clock := &fakeClock{now: time.Now()}
	positions := &fakePositions{pos: &domain.Position{
		Mint:       "mint1",
		EntryPrice: decimal.RequireFromString("0.00000004"),
	}}
	cache := newTestCache(reader, clock, WithPositionSource(positions))

	snap := cache.GetPriceWithFallback(context.Background(), "mint1")
	if snap == nil {
		t.Fatal("expected synthesized snapshot")
	}
	if snap.Source != domain.PriceSourceEntryFallback {
		t.Errorf("Source = %s, want entry_fallback", snap.Source)
	}
	if !snap.Price.Equal(positions.pos.EntryPrice) {
		t.Errorf("Price = %s, want entry price", snap.Price)
	}
}

func TestCache_GetPriceWithFallback_NoPosition(t *testing.T) {
	reader := &fakeReader{failures: 100}
	clock := &fakeClock{now: time.Now()}
	cache := newTestCache(reader, clock,
		WithPositionSource(&fakePositions{err: storage.ErrNotFound}))

	if snap := cache.GetPriceWithFallback(context.Background(), "mint1"); snap != nil {
		t.Errorf("expected nil without a live price or a position, got %+v", snap)
	}
}

func TestCache_GetPriceWithFallback_PrefersLive(t *testing.T) {
	reader := &fakeReader{reserves: goodReserves()}
	clock := &fakeClock{now: time.Now()}
	cache := newTestCache(reader, clock,
		WithPositionSource(&fakePositions{pos: &domain.Position{
			Mint:       "mint1",
			EntryPrice: decimal.NewFromInt(1),
		}}))

	snap := cache.GetPriceWithFallback(context.Background(), "mint1")
	if snap == nil {
		t.Fatal("expected snapshot")
	}
	if snap.Source != domain.PriceSourcePrimary {
		t.Errorf("Source = %s, want primary when the oracle answers", snap.Source)
	}
}

func TestCache_CalculateCurrentValue(t *testing.T) {
	reader := &fakeReader{reserves: goodReserves()}
	clock := &fakeClock{now: time.Now()}
	cache := newTestCache(reader, clock)

	val, err := cache.CalculateCurrentValue(context.Background(), "mint1", decimal.NewFromInt(1_000_000))
	if err != nil {
		t.Fatalf("CalculateCurrentValue failed: %v", err)
	}
	// 1e6 tokens * 0.0000000312 SOL = 0.0312 SOL.
	want := decimal.RequireFromString("0.0312")
	if !val.SolValue.Equal(want) {
		t.Errorf("SolValue = %s, want %s", val.SolValue, want)
	}
}

func TestCache_CalculateCurrentValue_BadAmount(t *testing.T) {
	cache := newTestCache(&fakeReader{reserves: goodReserves()}, &fakeClock{now: time.Now()})

	if _, err := cache.CalculateCurrentValue(context.Background(), "mint1", decimal.Zero); err == nil {
		t.Error("expected error for zero token amount")
	}
	if _, err := cache.CalculateCurrentValue(context.Background(), "mint1", decimal.NewFromInt(-5)); err == nil {
		t.Error("expected error for negative token amount")
	}
}

func TestCache_CalculateCurrentValue_NoPrice(t *testing.T) {
	cache := newTestCache(&fakeReader{failures: 100}, &fakeClock{now: time.Now()})

	if _, err := cache.CalculateCurrentValue(context.Background(), "mint1", decimal.NewFromInt(100)); err == nil {
		t.Error("expected error when no price is available")
	}
}
