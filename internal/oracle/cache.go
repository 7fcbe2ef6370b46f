// Package oracle implements the price oracle cache: a two-tier cached,
// retrying, fallback-backed view of bonding-curve prices that the risk
// loop can poll without stalling.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"pump-sniper-bot/internal/domain"
	"pump-sniper-bot/internal/observability"
	"pump-sniper-bot/internal/solana"
	"pump-sniper-bot/internal/storage"
)

// Default policy values.
const (
	DefaultLocalTTL      = 3 * time.Second
	DefaultSharedTTL     = 10 * time.Second
	DefaultGraduationTTL = 24 * time.Hour
	DefaultMaxRetries    = 3
	DefaultRetryDelay    = 500 * time.Millisecond
)

// ErrInvalidReserves is returned when the chain reports non-positive
// reserves or supply. Such data is never cached.
var ErrInvalidReserves = errors.New("invalid reserve data")

// ReserveReader reads the current reserve state for a mint. Reads must be
// idempotent so they can be retried.
type ReserveReader interface {
	ReadReserves(ctx context.Context, mint string) (*solana.ReserveState, error)
}

// PositionSource looks up the open position for a mint, enabling the
// entry-price fallback.
type PositionSource interface {
	GetOpen(ctx context.Context, mint string) (*domain.Position, error)
}

// Config holds the cache policy.
type Config struct {
	LocalTTL      time.Duration
	SharedTTL     time.Duration
	GraduationTTL time.Duration

	// MaxRetries is the number of primary read attempts. Backoff between
	// attempts grows linearly: RetryDelay * attempt.
	MaxRetries int
	RetryDelay time.Duration

	// Anomaly band. Prices outside [MinPrice, MaxPrice] or pools holding
	// less than MinLiquiditySol are flagged, logged, and still cached.
	MinPrice        decimal.Decimal
	MaxPrice        decimal.Decimal
	MinLiquiditySol decimal.Decimal
}

func (c *Config) withDefaults() {
	if c.LocalTTL <= 0 {
		c.LocalTTL = DefaultLocalTTL
	}
	if c.SharedTTL <= 0 {
		c.SharedTTL = DefaultSharedTTL
	}
	if c.GraduationTTL <= 0 {
		c.GraduationTTL = DefaultGraduationTTL
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if !c.MinPrice.IsPositive() {
		c.MinPrice = decimal.New(1, -9)
	}
	if !c.MaxPrice.IsPositive() {
		c.MaxPrice = decimal.NewFromInt(1)
	}
	if !c.MinLiquiditySol.IsPositive() {
		c.MinLiquiditySol = decimal.RequireFromString("0.1")
	}
}

type localEntry struct {
	snap      domain.PriceSnapshot
	expiresAt time.Time
}

// Cache is the price oracle cache. The in-process tier holds snapshots for
// a few seconds; the optional shared tier extends that across processes.
// On a full miss the primary endpoint is read with linear backoff, and the
// fallback endpoint is tried once after the last primary attempt fails.
type Cache struct {
	cfg       Config
	primary   ReserveReader
	fallback  ReserveReader
	shared    storage.SnapshotCache
	positions PositionSource
	history   storage.PriceHistoryStore
	metrics   *observability.Metrics

	mu        sync.RWMutex
	local     map[string]localEntry
	graduated map[string]time.Time // mint -> expiry

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures the Cache.
type Option func(*Cache)

// WithFallback sets the fallback reserve reader, tried once after the
// primary's retries are exhausted.
func WithFallback(r ReserveReader) Option {
	return func(c *Cache) {
		c.fallback = r
	}
}

// WithSharedCache sets the shared snapshot cache tier.
func WithSharedCache(s storage.SnapshotCache) Option {
	return func(c *Cache) {
		c.shared = s
	}
}

// WithPositionSource enables the entry-price fallback.
func WithPositionSource(p PositionSource) Option {
	return func(c *Cache) {
		c.positions = p
	}
}

// WithHistorySink mirrors every fetched snapshot to the history store.
func WithHistorySink(h storage.PriceHistoryStore) Option {
	return func(c *Cache) {
		c.history = h
	}
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// WithClock injects the time and sleep functions. Test hook.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Cache) {
		c.now = now
		c.sleep = sleep
	}
}

// New creates a price oracle cache over the primary reserve reader.
func New(primary ReserveReader, cfg Config, opts ...Option) *Cache {
	cfg.withDefaults()
	c := &Cache{
		cfg:       cfg,
		primary:   primary,
		local:     make(map[string]localEntry),
		graduated: make(map[string]time.Time),
		now:       time.Now,
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetPrice returns the current price snapshot for a mint, serving from the
// cache tiers unless forceFresh is set. A nil error always carries a
// snapshot. Errors mean "no price this cycle" and are safe to skip over.
func (c *Cache) GetPrice(ctx context.Context, mint string, forceFresh bool) (*domain.PriceSnapshot, error) {
	if mint == "" {
		return nil, fmt.Errorf("%w: empty mint", ErrInvalidReserves)
	}

	if !forceFresh {
		if snap := c.localGet(mint); snap != nil {
			c.countCacheHit("local")
			return snap, nil
		}
		if snap := c.sharedGet(ctx, mint); snap != nil {
			c.countCacheHit("shared")
			return snap, nil
		}
		if c.metrics != nil {
			c.metrics.CacheMisses.Inc()
		}
	}

	reserves, source, err := c.fetchReserves(ctx, mint)
	if err != nil {
		if c.metrics != nil {
			c.metrics.OracleFetchErrors.Inc()
		}
		log.Warn().Err(err).Str("mint", mint).Msg("price fetch failed on every endpoint")
		return nil, err
	}

	snap, err := c.buildSnapshot(mint, reserves, source)
	if err != nil {
		log.Warn().Err(err).Str("mint", mint).Msg("rejecting reserve data")
		return nil, err
	}

	c.store(ctx, snap)
	return snap, nil
}

// GetPriceWithFallback always forces a fresh read, then falls back to the
// stored entry price of an open position when no live price is available.
// Returns nil only when both the oracle and the fallback come up empty, so
// monitoring never stalls just because the oracle is unreachable.
func (c *Cache) GetPriceWithFallback(ctx context.Context, mint string) *domain.PriceSnapshot {
	snap, err := c.GetPrice(ctx, mint, true)
	if err == nil && snap.Price.IsPositive() {
		return snap
	}

	if c.positions == nil {
		return nil
	}
	pos, posErr := c.positions.GetOpen(ctx, mint)
	if posErr != nil || pos == nil || !pos.EntryPrice.IsPositive() {
		return nil
	}

	if c.metrics != nil {
		c.metrics.EntryFallbacks.Inc()
	}
	log.Warn().Str("mint", mint).Str("entry_price", pos.EntryPrice.String()).
		Msg("oracle unavailable, synthesizing snapshot from entry price")

	return &domain.PriceSnapshot{
		Mint:      mint,
		Price:     pos.EntryPrice,
		Graduated: c.IsGraduated(ctx, mint),
		Source:    domain.PriceSourceEntryFallback,
		FetchedAt: c.now(),
	}
}

// CalculateCurrentValue prices a token holding via GetPriceWithFallback.
// Returns an error when the amount or the resolved price is non-positive.
func (c *Cache) CalculateCurrentValue(ctx context.Context, mint string, tokenAmount decimal.Decimal) (*domain.Valuation, error) {
	if !tokenAmount.IsPositive() {
		return nil, fmt.Errorf("non-positive token amount for %s", mint)
	}

	snap := c.GetPriceWithFallback(ctx, mint)
	if snap == nil || !snap.Price.IsPositive() {
		return nil, fmt.Errorf("no price available for %s", mint)
	}

	return &domain.Valuation{
		Mint:      mint,
		SolValue:  tokenAmount.Mul(snap.Price),
		Price:     snap.Price,
		Graduated: snap.Graduated,
		Source:    snap.Source,
	}, nil
}

// MarkGraduated records a mint as migrated off the bonding curve in both
// the local and shared side indexes.
func (c *Cache) MarkGraduated(ctx context.Context, mint string) {
	c.mu.Lock()
	c.graduated[mint] = c.now().Add(c.cfg.GraduationTTL)
	c.mu.Unlock()

	if c.shared != nil {
		if err := c.shared.MarkGraduated(ctx, mint, c.cfg.GraduationTTL); err != nil {
			log.Warn().Err(err).Str("mint", mint).Msg("shared graduation mark failed")
		}
	}
}

// IsGraduated reports whether a mint is known to have graduated.
func (c *Cache) IsGraduated(ctx context.Context, mint string) bool {
	c.mu.RLock()
	expiry, ok := c.graduated[mint]
	c.mu.RUnlock()
	if ok && c.now().Before(expiry) {
		return true
	}

	if c.shared != nil {
		graduated, err := c.shared.IsGraduated(ctx, mint)
		if err == nil && graduated {
			return true
		}
	}
	return false
}

func (c *Cache) localGet(mint string) *domain.PriceSnapshot {
	c.mu.RLock()
	entry, ok := c.local[mint]
	c.mu.RUnlock()

	if !ok || c.now().After(entry.expiresAt) {
		return nil
	}
	snap := entry.snap
	snap.Source = domain.PriceSourceCached
	return &snap
}

func (c *Cache) sharedGet(ctx context.Context, mint string) *domain.PriceSnapshot {
	if c.shared == nil {
		return nil
	}
	snap, err := c.shared.Get(ctx, mint)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Debug().Err(err).Str("mint", mint).Msg("shared cache read failed")
		}
		return nil
	}

	// Repopulate the faster tier.
	c.mu.Lock()
	c.local[mint] = localEntry{snap: *snap, expiresAt: c.now().Add(c.cfg.LocalTTL)}
	c.mu.Unlock()

	out := *snap
	out.Source = domain.PriceSourceCached
	return &out
}

// fetchReserves reads reserves with up to MaxRetries primary attempts and
// linear backoff, then one fallback attempt.
func (c *Cache) fetchReserves(ctx context.Context, mint string) (*solana.ReserveState, domain.PriceSource, error) {
	start := c.now()
	defer func() {
		if c.metrics != nil {
			c.metrics.OracleLatency.Observe(c.now().Sub(start).Seconds())
		}
	}()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		reserves, err := c.primary.ReadReserves(ctx, mint)
		if err == nil {
			c.countFetch("primary")
			return reserves, domain.PriceSourcePrimary, nil
		}
		lastErr = err
		log.Debug().Err(err).Str("mint", mint).Int("attempt", attempt).Msg("primary reserve read failed")

		if attempt < c.cfg.MaxRetries {
			if serr := c.sleep(ctx, c.cfg.RetryDelay*time.Duration(attempt)); serr != nil {
				return nil, "", serr
			}
		}
	}

	if c.fallback != nil {
		reserves, err := c.fallback.ReadReserves(ctx, mint)
		if err == nil {
			c.countFetch("fallback")
			return reserves, domain.PriceSourceFallback, nil
		}
		lastErr = fmt.Errorf("fallback: %w (primary: %w)", err, lastErr)
	}

	return nil, "", fmt.Errorf("read reserves for %s: %w", mint, lastErr)
}

// buildSnapshot validates reserves and derives the price. Validation
// failures are hard errors; anomalies are advisory.
func (c *Cache) buildSnapshot(mint string, r *solana.ReserveState, source domain.PriceSource) (*domain.PriceSnapshot, error) {
	if !r.TokenReserves.IsPositive() || !r.SolReserves.IsPositive() || !r.TotalSupply.IsPositive() {
		return nil, fmt.Errorf("%w: tokens=%s sol=%s supply=%s",
			ErrInvalidReserves, r.TokenReserves, r.SolReserves, r.TotalSupply)
	}

	price := r.Price()
	snap := &domain.PriceSnapshot{
		Mint:          mint,
		Price:         price,
		TokenReserves: r.TokenReserves,
		SolReserves:   r.SolReserves,
		TotalSupply:   r.TotalSupply,
		Graduated:     r.Complete,
		Source:        source,
		FetchedAt:     c.now(),
	}

	if price.LessThan(c.cfg.MinPrice) || price.GreaterThan(c.cfg.MaxPrice) ||
		r.SolReserves.LessThan(c.cfg.MinLiquiditySol) {
		snap.Anomalous = true
		if c.metrics != nil {
			c.metrics.OracleAnomalies.Inc()
		}
		log.Warn().Str("mint", mint).
			Str("price", price.String()).
			Str("sol_reserves", r.SolReserves.String()).
			Msg("price snapshot outside sane band")
	}

	return snap, nil
}

// store writes the snapshot through both cache tiers, updates the
// graduation index, and mirrors to the history sink.
func (c *Cache) store(ctx context.Context, snap *domain.PriceSnapshot) {
	now := c.now()

	c.mu.Lock()
	c.local[snap.Mint] = localEntry{snap: *snap, expiresAt: now.Add(c.cfg.LocalTTL)}
	if snap.Graduated {
		c.graduated[snap.Mint] = now.Add(c.cfg.GraduationTTL)
	}
	c.mu.Unlock()

	if c.shared != nil {
		if err := c.shared.Set(ctx, snap, c.cfg.SharedTTL); err != nil {
			log.Debug().Err(err).Str("mint", snap.Mint).Msg("shared cache write failed")
		}
		if snap.Graduated {
			if err := c.shared.MarkGraduated(ctx, snap.Mint, c.cfg.GraduationTTL); err != nil {
				log.Debug().Err(err).Str("mint", snap.Mint).Msg("shared graduation mark failed")
			}
		}
	}

	if c.history != nil {
		if err := c.history.InsertBulk(ctx, []*domain.PriceSnapshot{snap}); err != nil {
			log.Debug().Err(err).Str("mint", snap.Mint).Msg("history sink write failed")
		}
	}
}

func (c *Cache) countCacheHit(tier string) {
	if c.metrics != nil {
		c.metrics.CacheHits.WithLabelValues(tier).Inc()
	}
}

func (c *Cache) countFetch(source string) {
	if c.metrics != nil {
		c.metrics.OracleFetches.WithLabelValues(source).Inc()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
