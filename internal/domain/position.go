package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// SlotCategory partitions the position-count budget. Sniper entries come out
// of the reserved pool, everything else out of the normal pool.
type SlotCategory string

const (
	CategoryReserved SlotCategory = "reserved"
	CategoryNormal   SlotCategory = "normal"
)

// CloseReason explains why a position was exited.
type CloseReason string

const (
	CloseReasonStopLoss     CloseReason = "stop_loss"
	CloseReasonTakeProfit   CloseReason = "take_profit"
	CloseReasonTrailingStop CloseReason = "trailing_stop"
	CloseReasonStagnation   CloseReason = "stagnation"
	CloseReasonGraduation   CloseReason = "graduation"
	CloseReasonManual       CloseReason = "manual"
)

// Position is a single open or closed holding of one token. A mint has at
// most one open position at a time; re-entering the same mint after a close
// creates a fresh record.
type Position struct {
	Mint         string
	Symbol       string
	Category     SlotCategory
	StrategyTag  string
	EntryPrice   decimal.Decimal
	EntryTime    time.Time
	SolSpent     decimal.Decimal // SOL committed on entry
	TokenAmount  decimal.Decimal // token units held
	MaxPriceSeen decimal.Decimal // monotonically non-decreasing while open
	Status       PositionStatus
	EntryTxRef   string

	// Set on close.
	ExitPrice   decimal.Decimal
	ExitTime    time.Time
	SolReceived decimal.Decimal
	PnLSol      decimal.Decimal
	PnLPercent  decimal.Decimal
	CloseReason CloseReason
	ExitTxRef   string
}

var hundred = decimal.NewFromInt(100)

// PnLPercentAt returns the unrealized PnL percent at the given price,
// relative to the entry price. Returns zero if the entry price is not
// positive.
func (p *Position) PnLPercentAt(price decimal.Decimal) decimal.Decimal {
	if !p.EntryPrice.IsPositive() {
		return decimal.Zero
	}
	return price.Sub(p.EntryPrice).Div(p.EntryPrice).Mul(hundred)
}

// DrawdownFromPeak returns the percent move of price relative to the highest
// price seen, as a non-positive number when below the peak. Returns zero if
// no peak has been recorded.
func (p *Position) DrawdownFromPeak(price decimal.Decimal) decimal.Decimal {
	if !p.MaxPriceSeen.IsPositive() {
		return decimal.Zero
	}
	return price.Sub(p.MaxPriceSeen).Div(p.MaxPriceSeen).Mul(hundred)
}

// HoldTime returns how long the position has been open as of now.
func (p *Position) HoldTime(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}

// ApplyClose transitions the position to closed, computing realized PnL.
// PnL percent is the SOL-amount ratio; when no SOL was committed (paper
// entries with zero cost) it falls back to the price ratio to avoid a
// division by zero.
func (p *Position) ApplyClose(exitPrice, solReceived decimal.Decimal, reason CloseReason, txRef string, closedAt time.Time) {
	p.Status = PositionClosed
	p.ExitPrice = exitPrice
	p.ExitTime = closedAt
	p.SolReceived = solReceived
	p.PnLSol = solReceived.Sub(p.SolSpent)
	p.CloseReason = reason
	p.ExitTxRef = txRef

	switch {
	case p.SolSpent.IsPositive():
		p.PnLPercent = solReceived.Sub(p.SolSpent).Div(p.SolSpent).Mul(hundred)
	case p.EntryPrice.IsPositive():
		p.PnLPercent = exitPrice.Sub(p.EntryPrice).Div(p.EntryPrice).Mul(hundred)
	default:
		p.PnLPercent = decimal.Zero
	}
}

// LedgerEntry builds the daily trade-ledger record for a closed position.
func (p *Position) LedgerEntry() *TradeLedgerEntry {
	return &TradeLedgerEntry{
		Mint:        p.Mint,
		Symbol:      p.Symbol,
		Category:    p.Category,
		EntryPrice:  p.EntryPrice,
		ExitPrice:   p.ExitPrice,
		SolSpent:    p.SolSpent,
		SolReceived: p.SolReceived,
		PnLSol:      p.PnLSol,
		PnLPercent:  p.PnLPercent,
		Reason:      p.CloseReason,
		ClosedAt:    p.ExitTime,
		Day:         Day(p.ExitTime),
	}
}
