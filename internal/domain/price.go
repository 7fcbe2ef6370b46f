package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSource identifies where a snapshot's price came from.
type PriceSource string

const (
	// PriceSourcePrimary means the price was read from the primary RPC endpoint.
	PriceSourcePrimary PriceSource = "primary"

	// PriceSourceFallback means the primary endpoint failed and the fallback
	// endpoint answered.
	PriceSourceFallback PriceSource = "fallback"

	// PriceSourceCached means the snapshot was served from a cache tier.
	PriceSourceCached PriceSource = "cached"

	// PriceSourceEntryFallback means no live price was available and the
	// snapshot was synthesized from the entry price of an open position.
	PriceSourceEntryFallback PriceSource = "entry_fallback"
)

// PriceSnapshot is an immutable observation of a token's bonding-curve price.
// Price is SOL per token, derived as solReserves / tokenReserves with both
// sides normalized to decimal units.
type PriceSnapshot struct {
	Mint          string
	Price         decimal.Decimal
	TokenReserves decimal.Decimal // virtual token reserves, token units
	SolReserves   decimal.Decimal // virtual SOL reserves, SOL
	TotalSupply   decimal.Decimal
	Graduated     bool // curve complete, token migrated to a general DEX
	Anomalous     bool // advisory: price or liquidity outside the sane band
	Source        PriceSource
	FetchedAt     time.Time
}

// Valuation is the current worth of a token holding.
type Valuation struct {
	Mint      string
	SolValue  decimal.Decimal
	Price     decimal.Decimal
	Graduated bool
	Source    PriceSource
}
