// Package risk implements entry admission control: the slot and loss-cap
// gate plus the circuit breaker.
package risk

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"pump-sniper-bot/internal/domain"
	"pump-sniper-bot/internal/observability"
)

// Rejection reasons, in the order the gate evaluates them.
const (
	ReasonCircuitBreaker    = "circuit_breaker_cooldown"
	ReasonReservedSlotsFull = "reserved_slots_full"
	ReasonNormalSlotsFull   = "normal_slots_full"
	ReasonMaxTotalPositions = "max_total_positions"
	ReasonDailyLossLimit    = "daily_loss_limit"
	ReasonLowLiquidity      = "low_liquidity"
	ReasonInvalidPrice      = "invalid_price"
)

// GateConfig holds the admission limits and sizing parameters.
type GateConfig struct {
	ReservedSlots int
	NormalSlots   int
	MaxTotalSlots int

	// MaxDailyLossSol rejects new entries once the day's realized PnL is
	// below its negation.
	MaxDailyLossSol decimal.Decimal

	// MinLiquiditySol is the pool liquidity floor for admission.
	MinLiquiditySol decimal.Decimal

	// MaxEntryPrice is the absolute sanity ceiling on entry prices.
	MaxEntryPrice decimal.Decimal

	// BaseSizeSol is the quote amount committed per entry.
	BaseSizeSol decimal.Decimal

	StopLossPercent   decimal.Decimal
	TakeProfitPercent decimal.Decimal
}

// SignalContext carries the facts about an entry signal the gate needs.
type SignalContext struct {
	Category    domain.SlotCategory
	SolReserves decimal.Decimal
}

// Decision is the gate's verdict. When Allowed, SizeSol and the absolute
// stop-loss/take-profit levels are populated.
type Decision struct {
	Allowed    bool
	Reason     string
	SizeSol    decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
	Category   domain.SlotCategory
}

// SlotCounter is the subset of the position store the gate reads.
type SlotCounter interface {
	CountOpen(ctx context.Context) (reserved, normal int, err error)
	DailyPnL(ctx context.Context, day string) (decimal.Decimal, error)
}

// Breaker is checked before every other admission rule.
type Breaker interface {
	Check(ctx context.Context) BreakerStatus
}

// Gate decides admission for new entries. It is stateless: every call
// reads current occupancy and daily PnL from the store.
type Gate struct {
	cfg     GateConfig
	store   SlotCounter
	breaker Breaker
	metrics *observability.Metrics
	now     nowFunc
}

// GateOption configures the Gate.
type GateOption func(*Gate)

// WithBreaker attaches the circuit breaker; a tripped breaker rejects
// every entry before any other check runs.
func WithBreaker(b Breaker) GateOption {
	return func(g *Gate) { g.breaker = b }
}

// WithGateMetrics attaches Prometheus metrics.
func WithGateMetrics(m *observability.Metrics) GateOption {
	return func(g *Gate) { g.metrics = m }
}

// WithGateClock overrides the time source. Test hook.
func WithGateClock(now nowFunc) GateOption {
	return func(g *Gate) { g.now = now }
}

// NewGate creates an entry gate over the position store.
func NewGate(store SlotCounter, cfg GateConfig, opts ...GateOption) *Gate {
	g := &Gate{cfg: cfg, store: store, now: defaultNow}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ShouldEnter evaluates the admission checks in declared order; the first
// failing check wins. On success the decision carries the base position
// size and the absolute stop-loss/take-profit levels.
func (g *Gate) ShouldEnter(ctx context.Context, mint string, entryPrice decimal.Decimal, sig SignalContext) (*Decision, error) {
	if g.breaker != nil {
		if status := g.breaker.Check(ctx); status.Active {
			return g.reject(mint, ReasonCircuitBreaker), nil
		}
	}

	reserved, normal, err := g.store.CountOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("count open positions: %w", err)
	}

	category := sig.Category
	if category == "" {
		category = domain.CategoryNormal
	}

	switch category {
	case domain.CategoryReserved:
		if reserved >= g.cfg.ReservedSlots {
			return g.reject(mint, ReasonReservedSlotsFull), nil
		}
	default:
		if normal >= g.cfg.NormalSlots {
			return g.reject(mint, ReasonNormalSlotsFull), nil
		}
	}

	if reserved+normal >= g.cfg.MaxTotalSlots {
		return g.reject(mint, ReasonMaxTotalPositions), nil
	}

	dailyPnL, err := g.store.DailyPnL(ctx, domain.Day(g.now()))
	if err != nil {
		return nil, fmt.Errorf("daily pnl: %w", err)
	}
	if dailyPnL.LessThan(g.cfg.MaxDailyLossSol.Neg()) {
		return g.reject(mint, ReasonDailyLossLimit), nil
	}

	if sig.SolReserves.LessThan(g.cfg.MinLiquiditySol) {
		return g.reject(mint, ReasonLowLiquidity), nil
	}

	if !entryPrice.IsPositive() || entryPrice.GreaterThan(g.cfg.MaxEntryPrice) {
		return g.reject(mint, ReasonInvalidPrice), nil
	}

	return &Decision{
		Allowed:    true,
		SizeSol:    g.cfg.BaseSizeSol,
		StopLoss:   levelBelow(entryPrice, g.cfg.StopLossPercent),
		TakeProfit: levelAbove(entryPrice, g.cfg.TakeProfitPercent),
		Category:   category,
	}, nil
}

func (g *Gate) reject(mint, reason string) *Decision {
	if g.metrics != nil {
		g.metrics.RejectionsTotal.WithLabelValues(reason).Inc()
	}
	log.Info().Str("mint", mint).Str("reason", reason).Msg("entry rejected")
	return &Decision{Allowed: false, Reason: reason}
}

var hundred = decimal.NewFromInt(100)

// levelBelow returns price * (1 - pct/100).
func levelBelow(price, pct decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(1).Sub(pct.Div(hundred)))
}

// levelAbove returns price * (1 + pct/100).
func levelAbove(price, pct decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(1).Add(pct.Div(hundred)))
}
