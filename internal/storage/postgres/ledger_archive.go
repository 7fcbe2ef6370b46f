package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"pump-sniper-bot/internal/domain"
	"pump-sniper-bot/internal/storage"
)

// LedgerArchive implements storage.LedgerArchive using PostgreSQL. The hot
// ledger lives in the position store with bounded retention; every close is
// mirrored here for durable reporting.
type LedgerArchive struct {
	pool *Pool
}

// NewLedgerArchive creates a new LedgerArchive.
func NewLedgerArchive(pool *Pool) *LedgerArchive {
	return &LedgerArchive{pool: pool}
}

// Compile-time interface check.
var _ storage.LedgerArchive = (*LedgerArchive)(nil)

// Insert appends one closed-trade record. A duplicate (mint, closed_at)
// pair is treated as an already-mirrored entry and succeeds, so retried
// mirror writes stay idempotent.
func (s *LedgerArchive) Insert(ctx context.Context, e *domain.TradeLedgerEntry) error {
	if e == nil || e.Mint == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trade_ledger (
			mint, symbol, category,
			entry_price, exit_price, sol_spent, sol_received,
			pnl_sol, pnl_percent, reason, closed_at, day
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10, $11, $12
		)
	`

	_, err := s.pool.Exec(ctx, query,
		e.Mint, e.Symbol, string(e.Category),
		e.EntryPrice, e.ExitPrice, e.SolSpent, e.SolReceived,
		e.PnLSol, e.PnLPercent, string(e.Reason), e.ClosedAt, e.Day,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// GetByDay returns all archived entries for a day, oldest first.
func (s *LedgerArchive) GetByDay(ctx context.Context, day string) ([]*domain.TradeLedgerEntry, error) {
	query := `
		SELECT
			mint, symbol, category,
			entry_price, exit_price, sol_spent, sol_received,
			pnl_sol, pnl_percent, reason, closed_at, day
		FROM trade_ledger
		WHERE day = $1
		ORDER BY closed_at ASC
	`

	rows, err := s.pool.Query(ctx, query, day)
	if err != nil {
		return nil, fmt.Errorf("get ledger entries by day: %w", err)
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

// DailyPnL sums archived PnL for a day.
func (s *LedgerArchive) DailyPnL(ctx context.Context, day string) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(pnl_sol), 0) FROM trade_ledger WHERE day = $1`

	var total decimal.Decimal
	if err := s.pool.QueryRow(ctx, query, day).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("sum daily pnl: %w", err)
	}
	return total, nil
}

// DailyStats aggregates the archived ledger for a day in a single query.
func (s *LedgerArchive) DailyStats(ctx context.Context, day string) (*domain.DailyStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE pnl_sol > 0),
			COUNT(*) FILTER (WHERE pnl_sol < 0),
			COALESCE(SUM(pnl_sol), 0),
			COALESCE(MAX(pnl_sol), 0),
			COALESCE(MIN(pnl_sol), 0)
		FROM trade_ledger
		WHERE day = $1
	`

	stats := &domain.DailyStats{
		Day:      day,
		TotalPnL: decimal.Zero,
		AvgPnL:   decimal.Zero,
		BestPnL:  decimal.Zero,
		WorstPnL: decimal.Zero,
	}

	err := s.pool.QueryRow(ctx, query, day).Scan(
		&stats.TotalTrades, &stats.Wins, &stats.Losses,
		&stats.TotalPnL, &stats.BestPnL, &stats.WorstPnL,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate daily stats: %w", err)
	}

	if stats.TotalTrades > 0 {
		stats.WinRate = float64(stats.Wins) / float64(stats.TotalTrades) * 100
		stats.AvgPnL = stats.TotalPnL.Div(decimal.NewFromInt(int64(stats.TotalTrades)))
	}
	return stats, nil
}

// scanLedgerEntries scans multiple rows into ledger entries.
func scanLedgerEntries(rows pgx.Rows) ([]*domain.TradeLedgerEntry, error) {
	var entries []*domain.TradeLedgerEntry

	for rows.Next() {
		var e domain.TradeLedgerEntry
		var category, reason string
		var closedAt time.Time

		err := rows.Scan(
			&e.Mint, &e.Symbol, &category,
			&e.EntryPrice, &e.ExitPrice, &e.SolSpent, &e.SolReceived,
			&e.PnLSol, &e.PnLPercent, &reason, &closedAt, &e.Day,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}

		e.Category = domain.SlotCategory(category)
		e.Reason = domain.CloseReason(reason)
		e.ClosedAt = closedAt
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}

	return entries, nil
}
