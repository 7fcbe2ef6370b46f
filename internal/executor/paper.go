package executor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"pump-sniper-bot/internal/domain"
)

// Fee model matching live venue costs so paper results track reality.
var (
	venueFeeRate   = decimal.RequireFromString("0.01")
	relayFeeRate   = decimal.RequireFromString("0.005")
	networkFeeSol  = decimal.RequireFromString("0.000005")
	defaultPrioFee = decimal.RequireFromString("0.0005")
)

// PriceSource resolves the current price for fills.
type PriceSource interface {
	GetPriceWithFallback(ctx context.Context, mint string) *domain.PriceSnapshot
}

// Paper simulates fills at the oracle price with the live fee model
// applied. No funds move.
type Paper struct {
	prices PriceSource
	prio   decimal.Decimal
	seq    atomic.Uint64
	now    func() time.Time
}

// PaperOption configures the paper executor.
type PaperOption func(*Paper)

// WithPriorityFee overrides the simulated priority fee in SOL.
func WithPriorityFee(fee decimal.Decimal) PaperOption {
	return func(p *Paper) { p.prio = fee }
}

// WithPaperClock overrides the time source. Test hook.
func WithPaperClock(now func() time.Time) PaperOption {
	return func(p *Paper) { p.now = now }
}

// NewPaper creates a paper executor over a price source.
func NewPaper(prices PriceSource, opts ...PaperOption) *Paper {
	p := &Paper{prices: prices, prio: defaultPrioFee, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Buy simulates buying solAmount worth of the token. Fees come out of the
// committed amount, so SolSpent always equals the full budget.
func (p *Paper) Buy(ctx context.Context, mint string, solAmount decimal.Decimal) (*BuyResult, error) {
	if !solAmount.IsPositive() {
		return nil, fmt.Errorf("non-positive buy amount %s", solAmount)
	}

	snap := p.prices.GetPriceWithFallback(ctx, mint)
	if snap == nil || !snap.Price.IsPositive() {
		return nil, fmt.Errorf("no price for %s", mint)
	}

	net := solAmount.Sub(p.fees(solAmount))
	if !net.IsPositive() {
		return nil, fmt.Errorf("buy amount %s does not cover fees", solAmount)
	}

	tokens := net.Div(snap.Price)
	ref := p.ref("buy")
	log.Info().Str("mint", mint).Str("sol", solAmount.String()).
		Str("tokens", tokens.String()).Str("ref", ref).Msg("paper buy filled")

	return &BuyResult{
		TokensReceived: tokens,
		SolSpent:       solAmount,
		EntryPrice:     snap.Price,
		TxRef:          ref,
	}, nil
}

// Sell simulates selling tokenAmount at the current price. Fees come out
// of the proceeds.
func (p *Paper) Sell(ctx context.Context, mint string, tokenAmount decimal.Decimal) (*SellResult, error) {
	if !tokenAmount.IsPositive() {
		return nil, fmt.Errorf("non-positive sell amount %s", tokenAmount)
	}

	snap := p.prices.GetPriceWithFallback(ctx, mint)
	if snap == nil || !snap.Price.IsPositive() {
		return nil, fmt.Errorf("no price for %s", mint)
	}

	gross := tokenAmount.Mul(snap.Price)
	net := gross.Sub(p.fees(gross))
	if net.IsNegative() {
		net = decimal.Zero
	}

	ref := p.ref("sell")
	log.Info().Str("mint", mint).Str("tokens", tokenAmount.String()).
		Str("sol", net.String()).Str("ref", ref).Msg("paper sell filled")

	return &SellResult{
		SolReceived: net,
		ExitPrice:   snap.Price,
		TxRef:       ref,
	}, nil
}

// fees returns the total cost on a notional amount: proportional venue and
// relay fees plus the flat priority and network fees.
func (p *Paper) fees(notional decimal.Decimal) decimal.Decimal {
	return notional.Mul(venueFeeRate).
		Add(notional.Mul(relayFeeRate)).
		Add(p.prio).
		Add(networkFeeSol)
}

func (p *Paper) ref(side string) string {
	return fmt.Sprintf("paper-%s-%d-%d", side, p.now().UnixMilli(), p.seq.Add(1))
}

var _ Executor = (*Paper)(nil)
