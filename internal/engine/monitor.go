package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"pump-sniper-bot/internal/domain"
	"pump-sniper-bot/internal/executor"
	"pump-sniper-bot/internal/notify"
	"pump-sniper-bot/internal/observability"
	"pump-sniper-bot/internal/risk"
	"pump-sniper-bot/internal/storage"
)

// DefaultTickInterval is how often the monitor rescans open positions.
const DefaultTickInterval = 5 * time.Second

// PriceProvider resolves prices for monitoring. A nil snapshot means "no
// price this tick".
type PriceProvider interface {
	GetPriceWithFallback(ctx context.Context, mint string) *domain.PriceSnapshot
}

// Waiter blocks until the caller may issue one more upstream read.
type Waiter interface {
	Wait(ctx context.Context) error
}

// BreakerState gates automated exits and receives realized outcomes.
type BreakerState interface {
	Check(ctx context.Context) risk.BreakerStatus
	RecordOutcome(pnlSol decimal.Decimal)
}

// Monitor is the exit loop: on every tick it walks the open positions,
// refreshes prices through the rate limiter, raises the price high-water
// mark, and sells when an exit rule fires.
type Monitor struct {
	store    storage.PositionStore
	prices   PriceProvider
	limiter  Waiter
	exec     executor.Executor
	breaker  BreakerState
	rules    ExitRules
	notifier notify.Notifier
	metrics  *observability.Metrics

	onClose func(mint string)

	tick time.Duration
	now  func() time.Time
}

// MonitorOption configures the Monitor.
type MonitorOption func(*Monitor)

// WithTickInterval overrides the scan interval.
func WithTickInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.tick = d
		}
	}
}

// WithBreaker attaches the circuit breaker. While tripped, ticks update
// bookkeeping but never sell.
func WithBreaker(b BreakerState) MonitorOption {
	return func(m *Monitor) { m.breaker = b }
}

// WithRateLimiter throttles oracle reads issued by the tick loop.
func WithRateLimiter(w Waiter) MonitorOption {
	return func(m *Monitor) { m.limiter = w }
}

// WithNotifier attaches the trade event sink.
func WithNotifier(n notify.Notifier) MonitorOption {
	return func(m *Monitor) { m.notifier = n }
}

// WithMonitorMetrics attaches Prometheus metrics.
func WithMonitorMetrics(metrics *observability.Metrics) MonitorOption {
	return func(m *Monitor) { m.metrics = metrics }
}

// WithCloseObserver registers a callback invoked after every successful
// close. Used to restart the entry-side re-entry cooldown.
func WithCloseObserver(fn func(mint string)) MonitorOption {
	return func(m *Monitor) { m.onClose = fn }
}

// WithMonitorClock overrides the time source. Test hook.
func WithMonitorClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

// NewMonitor creates an exit monitor. At most one monitor should gate a
// given risk budget: breaker state is process-local.
func NewMonitor(store storage.PositionStore, prices PriceProvider, exec executor.Executor, rules ExitRules, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		store:  store,
		prices: prices,
		exec:   exec,
		rules:  rules,
		tick:   DefaultTickInterval,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run ticks until the context is cancelled. The tick in progress always
// finishes: cancellation is only observed between ticks, so a sell and
// its close are never separated by shutdown.
func (m *Monitor) Run(ctx context.Context) error {
	log.Info().Dur("tick", m.tick).Msg("exit monitor started")
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("exit monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.Tick(context.WithoutCancel(ctx))
		}
	}
}

// Tick evaluates every open position once. A failure on one position
// never blocks the rest.
func (m *Monitor) Tick(ctx context.Context) {
	start := m.now()
	defer func() {
		if m.metrics != nil {
			m.metrics.TicksTotal.Inc()
			m.metrics.TickDuration.Observe(m.now().Sub(start).Seconds())
		}
	}()

	positions, err := m.store.ListOpen(ctx)
	if err != nil {
		log.Error().Err(err).Msg("list open positions failed, skipping tick")
		return
	}
	if m.metrics != nil {
		m.metrics.OpenPositions.Set(float64(len(positions)))
		if pnl, err := m.store.DailyPnL(ctx, domain.Day(m.now())); err == nil {
			m.metrics.DailyPnLSol.Set(pnl.InexactFloat64())
		}
	}
	if len(positions) == 0 {
		return
	}

	suppressed := false
	if m.breaker != nil {
		if status := m.breaker.Check(ctx); status.Active {
			suppressed = true
			log.Debug().Str("reason", status.Reason).Dur("remaining", status.Remaining).
				Msg("breaker active, bookkeeping-only tick")
		}
	}

	for _, pos := range positions {
		if err := m.evaluate(ctx, pos, suppressed); err != nil {
			log.Warn().Err(err).Str("mint", pos.Mint).Msg("position evaluation failed")
		}
	}
}

func (m *Monitor) evaluate(ctx context.Context, pos *domain.Position, suppressed bool) error {
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	snap := m.prices.GetPriceWithFallback(ctx, pos.Mint)
	if snap == nil || !snap.Price.IsPositive() {
		log.Debug().Str("mint", pos.Mint).Msg("no price this tick")
		return nil
	}

	if snap.Price.GreaterThan(pos.MaxPriceSeen) {
		if err := m.store.UpdateMaxPrice(ctx, pos.Mint, snap.Price); err != nil {
			log.Warn().Err(err).Str("mint", pos.Mint).Msg("max price update failed")
		} else {
			pos.MaxPriceSeen = snap.Price
		}
	}

	if suppressed {
		return nil
	}

	reason, fire := m.rules.Evaluate(pos, snap, m.now())
	if !fire {
		return nil
	}

	log.Info().Str("mint", pos.Mint).Str("reason", string(reason)).
		Str("price", snap.Price.String()).
		Str("pnl_percent", pos.PnLPercentAt(snap.Price).StringFixed(2)).
		Msg("exit triggered")

	return m.sell(ctx, pos, reason)
}

// sell executes the exit and records it. A failed sell leaves the
// position open; the next tick retries with no extra backoff.
func (m *Monitor) sell(ctx context.Context, pos *domain.Position, reason domain.CloseReason) error {
	res, err := m.exec.Sell(ctx, pos.Mint, pos.TokenAmount)
	if err != nil {
		if m.metrics != nil {
			m.metrics.ExitErrors.Inc()
		}
		return fmt.Errorf("sell %s: %w", pos.Mint, err)
	}

	closed, err := m.store.Close(ctx, storage.CloseRequest{
		Mint:        pos.Mint,
		ExitPrice:   res.ExitPrice,
		SolReceived: res.SolReceived,
		Reason:      reason,
		TxRef:       res.TxRef,
	})
	if err != nil {
		// The fill happened but the record is gone; a concurrent close
		// won the race and already accounted for this position.
		return fmt.Errorf("close %s after fill %s: %w", pos.Mint, res.TxRef, err)
	}

	if m.breaker != nil {
		m.breaker.RecordOutcome(closed.PnLSol)
	}
	if m.onClose != nil {
		m.onClose(closed.Mint)
	}
	if m.metrics != nil {
		m.metrics.ExitsTotal.WithLabelValues(string(reason)).Inc()
	}
	if m.notifier != nil {
		m.notifier.Notify(ctx, fmt.Sprintf("closed %s (%s): %s SOL (%s%%)",
			closed.Symbol, reason, closed.PnLSol.StringFixed(4), closed.PnLPercent.StringFixed(2)))
	}

	log.Info().Str("mint", pos.Mint).Str("reason", string(reason)).
		Str("pnl_sol", closed.PnLSol.String()).
		Str("pnl_percent", closed.PnLPercent.StringFixed(2)).
		Msg("position closed")
	return nil
}
