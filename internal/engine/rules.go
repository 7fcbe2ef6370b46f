// Package engine runs the trading loop: entry handling on discovery
// signals and the periodic exit monitor over open positions.
package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"pump-sniper-bot/internal/domain"
)

// ExitRules holds the exit thresholds. Evaluation is pure: it reads the
// position and the snapshot, touching no I/O, so every rule is testable
// with plain values.
type ExitRules struct {
	StopLossPercent     decimal.Decimal
	TakeProfitPercent   decimal.Decimal
	TrailingStopPercent decimal.Decimal

	// StagnationAfter closes positions still below StagnationPnLPercent
	// once they have been open this long.
	StagnationAfter      time.Duration
	StagnationPnLPercent decimal.Decimal

	// CloseOnGraduation exits as soon as the token migrates off the curve.
	CloseOnGraduation bool
}

// Evaluate applies the exit rules in fixed priority order and returns the
// first match. MaxPriceSeen must already reflect the current observation;
// the trailing stop measures drawdown against it.
func (r ExitRules) Evaluate(p *domain.Position, snap *domain.PriceSnapshot, now time.Time) (domain.CloseReason, bool) {
	pnl := p.PnLPercentAt(snap.Price)

	if pnl.LessThanOrEqual(r.StopLossPercent.Neg()) {
		return domain.CloseReasonStopLoss, true
	}

	if pnl.GreaterThanOrEqual(r.TakeProfitPercent) {
		return domain.CloseReasonTakeProfit, true
	}

	if r.TrailingStopPercent.IsPositive() &&
		p.DrawdownFromPeak(snap.Price).LessThanOrEqual(r.TrailingStopPercent.Neg()) {
		return domain.CloseReasonTrailingStop, true
	}

	if r.StagnationAfter > 0 &&
		p.HoldTime(now) > r.StagnationAfter &&
		pnl.LessThan(r.StagnationPnLPercent) {
		return domain.CloseReasonStagnation, true
	}

	if r.CloseOnGraduation && snap.Graduated {
		return domain.CloseReasonGraduation, true
	}

	return "", false
}
