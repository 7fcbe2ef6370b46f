package risk

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"pump-sniper-bot/internal/domain"
	"pump-sniper-bot/internal/observability"
)

type nowFunc func() time.Time

func defaultNow() time.Time { return time.Now() }

// Trip reasons.
const (
	TripConsecutiveLosses = "consecutive_losses"
	TripMaxDailyLoss      = "max_daily_loss"
)

// BreakerStatus is the result of a breaker check.
type BreakerStatus struct {
	Active    bool
	Reason    string
	Remaining time.Duration
}

// BreakerConfig holds the trip thresholds.
type BreakerConfig struct {
	MaxLossesInRow  int
	MaxDailyLossSol decimal.Decimal
	PauseDuration   time.Duration
}

// DailyPnLSource provides the day's realized PnL for the loss trigger.
type DailyPnLSource interface {
	DailyPnL(ctx context.Context, day string) (decimal.Decimal, error)
}

// CircuitBreaker pauses trading after a losing streak or a daily loss
// breach. State is process-local: at most one breaker instance should
// gate a given risk budget.
type CircuitBreaker struct {
	cfg     BreakerConfig
	pnl     DailyPnLSource
	metrics *observability.Metrics
	now     nowFunc

	onTrip func(reason string, until time.Time)

	mu                sync.Mutex
	active            bool
	activeUntil       time.Time
	reason            string
	consecutiveLosses int
}

// BreakerOption configures the CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithBreakerMetrics attaches Prometheus metrics.
func WithBreakerMetrics(m *observability.Metrics) BreakerOption {
	return func(b *CircuitBreaker) { b.metrics = m }
}

// WithBreakerClock overrides the time source. Test hook.
func WithBreakerClock(now nowFunc) BreakerOption {
	return func(b *CircuitBreaker) { b.now = now }
}

// WithTripObserver registers a callback invoked on every trip, outside
// the breaker's lock. Used to fan out alerts without coupling the breaker
// to a notification channel.
func WithTripObserver(fn func(reason string, until time.Time)) BreakerOption {
	return func(b *CircuitBreaker) { b.onTrip = fn }
}

// NewCircuitBreaker creates an armed breaker.
func NewCircuitBreaker(pnl DailyPnLSource, cfg BreakerConfig, opts ...BreakerOption) *CircuitBreaker {
	b := &CircuitBreaker{cfg: cfg, pnl: pnl, now: defaultNow}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Check evaluates the triggers and returns the current status. A tripped
// breaker re-arms once the cool-down elapses, resetting the loss streak.
func (b *CircuitBreaker) Check(ctx context.Context) BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.active {
		if now.Before(b.activeUntil) {
			return BreakerStatus{Active: true, Reason: b.reason, Remaining: b.activeUntil.Sub(now)}
		}
		b.rearm()
	}

	if b.cfg.MaxLossesInRow > 0 && b.consecutiveLosses >= b.cfg.MaxLossesInRow {
		b.trip(now, TripConsecutiveLosses)
		return BreakerStatus{Active: true, Reason: b.reason, Remaining: b.activeUntil.Sub(now)}
	}

	if b.cfg.MaxDailyLossSol.IsPositive() && b.pnl != nil {
		dailyPnL, err := b.pnl.DailyPnL(ctx, domain.Day(now))
		if err != nil {
			log.Warn().Err(err).Msg("daily pnl read failed, breaker stays armed")
		} else if dailyPnL.LessThan(b.cfg.MaxDailyLossSol.Neg()) {
			b.trip(now, TripMaxDailyLoss)
			return BreakerStatus{Active: true, Reason: b.reason, Remaining: b.activeUntil.Sub(now)}
		}
	}

	return BreakerStatus{}
}

// RecordOutcome feeds a realized trade result into the loss streak and
// re-evaluates the consecutive-loss trigger. Wins and break-even trades
// reset the streak.
func (b *CircuitBreaker) RecordOutcome(pnlSol decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if pnlSol.IsNegative() {
		b.consecutiveLosses++
	} else {
		b.consecutiveLosses = 0
	}

	if !b.active && b.cfg.MaxLossesInRow > 0 && b.consecutiveLosses >= b.cfg.MaxLossesInRow {
		b.trip(b.now(), TripConsecutiveLosses)
	}
}

// ConsecutiveLosses returns the current loss streak.
func (b *CircuitBreaker) ConsecutiveLosses() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveLosses
}

// caller holds b.mu
func (b *CircuitBreaker) trip(now time.Time, reason string) {
	b.active = true
	b.activeUntil = now.Add(b.cfg.PauseDuration)
	b.reason = reason
	if b.metrics != nil {
		b.metrics.CircuitBreakerOn.Set(1)
	}
	log.Warn().Str("reason", reason).Time("until", b.activeUntil).
		Int("consecutive_losses", b.consecutiveLosses).Msg("circuit breaker tripped")
	if b.onTrip != nil {
		go b.onTrip(reason, b.activeUntil)
	}
}

// caller holds b.mu
func (b *CircuitBreaker) rearm() {
	b.active = false
	b.reason = ""
	b.consecutiveLosses = 0
	if b.metrics != nil {
		b.metrics.CircuitBreakerOn.Set(0)
	}
	log.Info().Msg("circuit breaker re-armed")
}

var _ Breaker = (*CircuitBreaker)(nil)
