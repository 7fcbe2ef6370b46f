package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"pump-sniper-bot/internal/domain"
	"pump-sniper-bot/internal/executor"
	"pump-sniper-bot/internal/notify"
	"pump-sniper-bot/internal/observability"
	"pump-sniper-bot/internal/risk"
	"pump-sniper-bot/internal/solana"
	"pump-sniper-bot/internal/storage"
)

// DefaultReentryCooldown is how long a mint stays blocked after an entry
// attempt or a close before it can be bought again.
const DefaultReentryCooldown = 15 * time.Minute

// PriceQuoter resolves a fresh price for entry sizing.
type PriceQuoter interface {
	GetPrice(ctx context.Context, mint string, forceFresh bool) (*domain.PriceSnapshot, error)
}

// EntryConfig holds the entry-side filters.
type EntryConfig struct {
	// RequirePumpSuffix drops signals whose mint is not a well-formed
	// pump.fun vanity address.
	RequirePumpSuffix bool

	// MaxInitialBuySol drops launches where the creator's own first buy is
	// suspiciously large. Zero disables the filter.
	MaxInitialBuySol decimal.Decimal

	ReentryCooldown time.Duration
}

// EntryHandler consumes discovery signals and opens positions that pass
// the gate.
type EntryHandler struct {
	cfg      EntryConfig
	gate     *risk.Gate
	store    storage.PositionStore
	prices   PriceQuoter
	exec     executor.Executor
	notifier notify.Notifier
	metrics  *observability.Metrics
	now      func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time // mint -> last attempt or close
}

// EntryOption configures the EntryHandler.
type EntryOption func(*EntryHandler)

// WithEntryNotifier attaches the trade event sink.
func WithEntryNotifier(n notify.Notifier) EntryOption {
	return func(h *EntryHandler) { h.notifier = n }
}

// WithEntryMetrics attaches Prometheus metrics.
func WithEntryMetrics(m *observability.Metrics) EntryOption {
	return func(h *EntryHandler) { h.metrics = m }
}

// WithEntryClock overrides the time source. Test hook.
func WithEntryClock(now func() time.Time) EntryOption {
	return func(h *EntryHandler) { h.now = now }
}

// NewEntryHandler creates an entry handler.
func NewEntryHandler(gate *risk.Gate, store storage.PositionStore, prices PriceQuoter, exec executor.Executor, cfg EntryConfig, opts ...EntryOption) *EntryHandler {
	if cfg.ReentryCooldown <= 0 {
		cfg.ReentryCooldown = DefaultReentryCooldown
	}
	h := &EntryHandler{
		cfg:      cfg,
		gate:     gate,
		store:    store,
		prices:   prices,
		exec:     exec,
		now:      time.Now,
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// MarkCooldown restarts the re-entry cooldown for a mint. Wired as the
// close observer so a just-exited token is not immediately re-bought.
func (h *EntryHandler) MarkCooldown(mint string) {
	h.mu.Lock()
	h.lastSeen[mint] = h.now()
	h.mu.Unlock()
}

func (h *EntryHandler) inCooldown(mint string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	last, ok := h.lastSeen[mint]
	return ok && h.now().Sub(last) < h.cfg.ReentryCooldown
}

// HandleSignal runs the full entry path for one discovery signal: filters,
// fresh price, gate decision, buy, persist. Policy rejections return nil;
// only infrastructure failures surface as errors.
func (h *EntryHandler) HandleSignal(ctx context.Context, sig domain.TokenSignal) error {
	if h.cfg.RequirePumpSuffix && !solana.IsPumpMint(sig.Mint) {
		log.Debug().Str("mint", sig.Mint).Msg("signal dropped, not a pump mint")
		return nil
	}

	if h.inCooldown(sig.Mint) {
		log.Debug().Str("mint", sig.Mint).Msg("signal dropped, re-entry cooldown")
		return nil
	}

	if h.cfg.MaxInitialBuySol.IsPositive() && sig.InitialBuySol.GreaterThan(h.cfg.MaxInitialBuySol) {
		log.Debug().Str("mint", sig.Mint).Str("initial_buy", sig.InitialBuySol.String()).
			Msg("signal dropped, creator buy too large")
		return nil
	}

	snap, err := h.prices.GetPrice(ctx, sig.Mint, true)
	if err != nil {
		return fmt.Errorf("entry price for %s: %w", sig.Mint, err)
	}

	decision, err := h.gate.ShouldEnter(ctx, sig.Mint, snap.Price, risk.SignalContext{
		Category:    sig.Category,
		SolReserves: snap.SolReserves,
	})
	if err != nil {
		return fmt.Errorf("gate check for %s: %w", sig.Mint, err)
	}
	if !decision.Allowed {
		return nil
	}

	// Block repeat attempts for this mint before committing funds, so a
	// failed buy is not hammered by duplicate signals.
	h.MarkCooldown(sig.Mint)

	buy, err := h.exec.Buy(ctx, sig.Mint, decision.SizeSol)
	if err != nil {
		return fmt.Errorf("buy %s: %w", sig.Mint, err)
	}

	pos := &domain.Position{
		Mint:         sig.Mint,
		Symbol:       sig.Symbol,
		Category:     decision.Category,
		EntryPrice:   buy.EntryPrice,
		EntryTime:    h.now(),
		SolSpent:     buy.SolSpent,
		TokenAmount:  buy.TokensReceived,
		MaxPriceSeen: buy.EntryPrice,
		Status:       domain.PositionOpen,
		EntryTxRef:   buy.TxRef,
	}

	if err := h.store.Open(ctx, pos); err != nil {
		if errors.Is(err, storage.ErrDuplicatePosition) {
			log.Warn().Str("mint", sig.Mint).Msg("position already open, fill orphaned")
			return nil
		}
		return fmt.Errorf("persist position %s after fill %s: %w", sig.Mint, buy.TxRef, err)
	}

	if h.metrics != nil {
		h.metrics.EntriesTotal.WithLabelValues(string(decision.Category)).Inc()
	}
	if h.notifier != nil {
		h.notifier.Notify(ctx, fmt.Sprintf("opened %s: %s SOL at %s (SL %s, TP %s)",
			sig.Symbol, buy.SolSpent.StringFixed(4), buy.EntryPrice.String(),
			decision.StopLoss.String(), decision.TakeProfit.String()))
	}

	log.Info().Str("mint", sig.Mint).Str("symbol", sig.Symbol).
		Str("category", string(decision.Category)).
		Str("sol", buy.SolSpent.String()).
		Str("entry_price", buy.EntryPrice.String()).
		Msg("position opened")
	return nil
}
