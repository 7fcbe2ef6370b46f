package redis

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pump-sniper-bot/internal/domain"
)

// positionRecord is the wire form of a position stored under position:<mint>.
type positionRecord struct {
	Mint         string          `json:"mint"`
	Symbol       string          `json:"symbol"`
	Category     string          `json:"category"`
	StrategyTag  string          `json:"strategy_tag,omitempty"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	EntryTime    time.Time       `json:"entry_time"`
	SolSpent     decimal.Decimal `json:"sol_spent"`
	TokenAmount  decimal.Decimal `json:"token_amount"`
	MaxPriceSeen decimal.Decimal `json:"max_price_seen"`
	Status       string          `json:"status"`
	EntryTxRef   string          `json:"entry_tx_ref,omitempty"`
}

// ledgerRecord is the wire form of a trade ledger entry in trades:<day>.
type ledgerRecord struct {
	Mint        string          `json:"mint"`
	Symbol      string          `json:"symbol"`
	Category    string          `json:"category"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	ExitPrice   decimal.Decimal `json:"exit_price"`
	SolSpent    decimal.Decimal `json:"sol_spent"`
	SolReceived decimal.Decimal `json:"sol_received"`
	PnLSol      decimal.Decimal `json:"pnl_sol"`
	PnLPercent  decimal.Decimal `json:"pnl_percent"`
	Reason      string          `json:"reason"`
	ClosedAt    time.Time       `json:"closed_at"`
}

// snapshotRecord is the wire form of a cached price snapshot.
type snapshotRecord struct {
	Mint          string          `json:"mint"`
	Price         decimal.Decimal `json:"price"`
	TokenReserves decimal.Decimal `json:"token_reserves"`
	SolReserves   decimal.Decimal `json:"sol_reserves"`
	TotalSupply   decimal.Decimal `json:"total_supply"`
	Graduated     bool            `json:"graduated"`
	Anomalous     bool            `json:"anomalous,omitempty"`
	Source        string          `json:"source"`
	FetchedAt     time.Time       `json:"fetched_at"`
}

func encodePosition(p *domain.Position) ([]byte, error) {
	rec := positionRecord{
		Mint:         p.Mint,
		Symbol:       p.Symbol,
		Category:     string(p.Category),
		StrategyTag:  p.StrategyTag,
		EntryPrice:   p.EntryPrice,
		EntryTime:    p.EntryTime,
		SolSpent:     p.SolSpent,
		TokenAmount:  p.TokenAmount,
		MaxPriceSeen: p.MaxPriceSeen,
		Status:       string(p.Status),
		EntryTxRef:   p.EntryTxRef,
	}
	return json.Marshal(rec)
}

func decodePosition(data []byte) (*domain.Position, error) {
	var rec positionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode position: %w", err)
	}
	return &domain.Position{
		Mint:         rec.Mint,
		Symbol:       rec.Symbol,
		Category:     domain.SlotCategory(rec.Category),
		StrategyTag:  rec.StrategyTag,
		EntryPrice:   rec.EntryPrice,
		EntryTime:    rec.EntryTime,
		SolSpent:     rec.SolSpent,
		TokenAmount:  rec.TokenAmount,
		MaxPriceSeen: rec.MaxPriceSeen,
		Status:       domain.PositionStatus(rec.Status),
		EntryTxRef:   rec.EntryTxRef,
	}, nil
}

func encodeLedgerEntry(e *domain.TradeLedgerEntry) ([]byte, error) {
	rec := ledgerRecord{
		Mint:        e.Mint,
		Symbol:      e.Symbol,
		Category:    string(e.Category),
		EntryPrice:  e.EntryPrice,
		ExitPrice:   e.ExitPrice,
		SolSpent:    e.SolSpent,
		SolReceived: e.SolReceived,
		PnLSol:      e.PnLSol,
		PnLPercent:  e.PnLPercent,
		Reason:      string(e.Reason),
		ClosedAt:    e.ClosedAt,
	}
	return json.Marshal(rec)
}

func decodeLedgerEntry(data []byte) (*domain.TradeLedgerEntry, error) {
	var rec ledgerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode ledger entry: %w", err)
	}
	return &domain.TradeLedgerEntry{
		Mint:        rec.Mint,
		Symbol:      rec.Symbol,
		Category:    domain.SlotCategory(rec.Category),
		EntryPrice:  rec.EntryPrice,
		ExitPrice:   rec.ExitPrice,
		SolSpent:    rec.SolSpent,
		SolReceived: rec.SolReceived,
		PnLSol:      rec.PnLSol,
		PnLPercent:  rec.PnLPercent,
		Reason:      domain.CloseReason(rec.Reason),
		ClosedAt:    rec.ClosedAt,
		Day:         domain.Day(rec.ClosedAt),
	}, nil
}

func encodeSnapshot(s *domain.PriceSnapshot) ([]byte, error) {
	rec := snapshotRecord{
		Mint:          s.Mint,
		Price:         s.Price,
		TokenReserves: s.TokenReserves,
		SolReserves:   s.SolReserves,
		TotalSupply:   s.TotalSupply,
		Graduated:     s.Graduated,
		Anomalous:     s.Anomalous,
		Source:        string(s.Source),
		FetchedAt:     s.FetchedAt,
	}
	return json.Marshal(rec)
}

func decodeSnapshot(data []byte) (*domain.PriceSnapshot, error) {
	var rec snapshotRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &domain.PriceSnapshot{
		Mint:          rec.Mint,
		Price:         rec.Price,
		TokenReserves: rec.TokenReserves,
		SolReserves:   rec.SolReserves,
		TotalSupply:   rec.TotalSupply,
		Graduated:     rec.Graduated,
		Anomalous:     rec.Anomalous,
		Source:        domain.PriceSource(rec.Source),
		FetchedAt:     rec.FetchedAt,
	}, nil
}
