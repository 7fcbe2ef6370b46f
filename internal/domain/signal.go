package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenSignal is a "new tradable token" event from the discovery feed.
type TokenSignal struct {
	Mint          string
	Symbol        string
	Name          string
	Category      SlotCategory
	SolInPool     decimal.Decimal // quote-side liquidity at detection time
	InitialBuySol decimal.Decimal // volume of the creator's initial bundle
	DetectedAt    time.Time
}

// GraduationSignal marks a token as having completed its bonding curve.
type GraduationSignal struct {
	Mint       string
	DetectedAt time.Time
}
