// Package executor defines the trade execution boundary and a paper
// implementation for dry runs.
package executor

import (
	"context"

	"github.com/shopspring/decimal"
)

// BuyResult reports a filled buy.
type BuyResult struct {
	TokensReceived decimal.Decimal
	SolSpent       decimal.Decimal
	EntryPrice     decimal.Decimal
	TxRef          string
}

// SellResult reports a filled sell.
type SellResult struct {
	SolReceived decimal.Decimal
	ExitPrice   decimal.Decimal
	TxRef       string
}

// Executor submits trades. Both calls are at-most-once per logical trade
// attempt; callers never retry a failed call within the same attempt.
type Executor interface {
	Buy(ctx context.Context, mint string, solAmount decimal.Decimal) (*BuyResult, error)
	Sell(ctx context.Context, mint string, tokenAmount decimal.Decimal) (*SellResult, error)
}
