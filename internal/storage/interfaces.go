package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"pump-sniper-bot/internal/domain"
)

// CloseRequest carries the observed exit facts for PositionStore.Close.
type CloseRequest struct {
	Mint        string
	ExitPrice   decimal.Decimal
	SolReceived decimal.Decimal
	Reason      domain.CloseReason
	TxRef       string
}

// PositionStore owns position lifecycle records and the per-day trade
// ledger. Implementations must serialize Close calls per mint: the first
// Close wins, every later one returns ErrNotFound.
type PositionStore interface {
	// Open persists a new open position. Returns ErrDuplicatePosition if an
	// open record for the mint already exists. MaxPriceSeen is initialized
	// to the entry price.
	Open(ctx context.Context, p *domain.Position) error

	// GetOpen retrieves the open position for a mint. Returns ErrNotFound
	// if none exists.
	GetOpen(ctx context.Context, mint string) (*domain.Position, error)

	// UpdateMaxPrice raises MaxPriceSeen to observed if it is higher.
	// A no-op when the price did not increase or the position is gone.
	UpdateMaxPrice(ctx context.Context, mint string, observed decimal.Decimal) error

	// Close transitions the open position for mint to closed, computes
	// realized PnL, removes it from the open index, and appends exactly one
	// ledger entry for the current day. Returns ErrNotFound if no open
	// record exists, so a second Close for the same mint always fails.
	Close(ctx context.Context, req CloseRequest) (*domain.Position, error)

	// ListOpen returns all open positions. Records missing required fields
	// are skipped rather than surfaced.
	ListOpen(ctx context.Context) ([]*domain.Position, error)

	// CountOpen returns open position counts per slot category.
	CountOpen(ctx context.Context) (reserved, normal int, err error)

	// DailyPnL sums realized PnL over all ledger entries for a day.
	DailyPnL(ctx context.Context, day string) (decimal.Decimal, error)

	// DailyStats aggregates the day's ledger. Zero trades yields all-zero
	// stats, not an error.
	DailyStats(ctx context.Context, day string) (*domain.DailyStats, error)

	// LedgerEntries returns the raw ledger for a day, oldest first.
	LedgerEntries(ctx context.Context, day string) ([]*domain.TradeLedgerEntry, error)
}

// SnapshotCache is the shared (cross-process) price cache tier plus the
// graduation side index.
type SnapshotCache interface {
	// Get retrieves a cached snapshot. Returns ErrNotFound on miss or
	// expiry.
	Get(ctx context.Context, mint string) (*domain.PriceSnapshot, error)

	// Set stores a snapshot with the given TTL.
	Set(ctx context.Context, snap *domain.PriceSnapshot, ttl time.Duration) error

	// MarkGraduated flags a mint as migrated off the bonding curve, with a
	// multi-day expiry.
	MarkGraduated(ctx context.Context, mint string, ttl time.Duration) error

	// IsGraduated reports whether a mint is flagged as graduated.
	IsGraduated(ctx context.Context, mint string) (bool, error)
}

// LedgerArchive is the durable mirror of the trade ledger, used for
// reporting beyond the hot store's retention.
type LedgerArchive interface {
	// Insert appends one closed-trade record.
	Insert(ctx context.Context, e *domain.TradeLedgerEntry) error

	// GetByDay returns all archived entries for a day, oldest first.
	GetByDay(ctx context.Context, day string) ([]*domain.TradeLedgerEntry, error)

	// DailyPnL sums archived PnL for a day.
	DailyPnL(ctx context.Context, day string) (decimal.Decimal, error)

	// DailyStats aggregates the archived ledger for a day.
	DailyStats(ctx context.Context, day string) (*domain.DailyStats, error)
}

// PriceHistoryStore records every fetched price snapshot for offline
// analysis.
type PriceHistoryStore interface {
	// InsertBulk appends snapshots. Duplicates are not rejected; the
	// history table is append-only by design of the backing engine.
	InsertBulk(ctx context.Context, snaps []*domain.PriceSnapshot) error

	// GetByMint retrieves all snapshots for a mint, oldest first.
	GetByMint(ctx context.Context, mint string) ([]*domain.PriceSnapshot, error)

	// GetByTimeRange retrieves snapshots for a mint within [start, end].
	GetByTimeRange(ctx context.Context, mint string, start, end time.Time) ([]*domain.PriceSnapshot, error)
}
