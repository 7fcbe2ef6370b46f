package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"pump-sniper-bot/internal/domain"
	pgstore "pump-sniper-bot/internal/storage/postgres"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func ledgerEntry(t *testing.T, mint string, pnl string, closedAt time.Time) *domain.TradeLedgerEntry {
	t.Helper()
	return &domain.TradeLedgerEntry{
		Mint:        mint,
		Symbol:      "TST",
		Category:    domain.CategoryNormal,
		EntryPrice:  dec(t, "1"),
		ExitPrice:   dec(t, "1.1"),
		SolSpent:    dec(t, "0.5"),
		SolReceived: dec(t, "0.5").Add(dec(t, pnl)),
		PnLSol:      dec(t, pnl),
		PnLPercent:  dec(t, pnl).Div(dec(t, "0.5")).Mul(decimal.NewFromInt(100)),
		Reason:      domain.CloseReasonTakeProfit,
		ClosedAt:    closedAt,
		Day:         domain.Day(closedAt),
	}
}

func TestLedgerArchive_InsertAndGetByDay(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := pgstore.NewLedgerArchive(pool)
	ctx := context.Background()

	day1 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Insert(ctx, ledgerEntry(t, "mint1", "0.15", day1)))
	require.NoError(t, store.Insert(ctx, ledgerEntry(t, "mint2", "-0.10", day1.Add(time.Hour))))
	require.NoError(t, store.Insert(ctx, ledgerEntry(t, "mint3", "0.05", day2)))

	entries, err := store.GetByDay(ctx, "2025-06-01")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "mint1", entries[0].Mint, "entries should be ordered by closed_at")
	require.True(t, entries[0].PnLSol.Equal(dec(t, "0.15")))
	require.Equal(t, domain.CloseReasonTakeProfit, entries[0].Reason)
}

func TestLedgerArchive_InsertIdempotent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := pgstore.NewLedgerArchive(pool)
	ctx := context.Background()

	closedAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	entry := ledgerEntry(t, "mint1", "0.15", closedAt)

	require.NoError(t, store.Insert(ctx, entry))
	require.NoError(t, store.Insert(ctx, entry), "re-mirroring the same close must not fail")

	entries, err := store.GetByDay(ctx, "2025-06-01")
	require.NoError(t, err)
	require.Len(t, entries, 1, "duplicate mirror writes must not double-count")
}

func TestLedgerArchive_DailyPnLAndStats(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := pgstore.NewLedgerArchive(pool)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	pnls := []string{"0.30", "-0.10", "0.20", "-0.40"}
	for i, pnl := range pnls {
		require.NoError(t, store.Insert(ctx, ledgerEntry(t, "mint"+string(rune('a'+i)), pnl, base.Add(time.Duration(i)*time.Minute))))
	}

	pnl, err := store.DailyPnL(ctx, "2025-06-01")
	require.NoError(t, err)
	require.True(t, pnl.Equal(dec(t, "0")), "DailyPnL = %s, want 0", pnl)

	stats, err := store.DailyStats(ctx, "2025-06-01")
	require.NoError(t, err)
	require.Equal(t, 4, stats.TotalTrades)
	require.Equal(t, 2, stats.Wins)
	require.Equal(t, 2, stats.Losses)
	require.InDelta(t, 50.0, stats.WinRate, 0.001)
	require.True(t, stats.BestPnL.Equal(dec(t, "0.30")))
	require.True(t, stats.WorstPnL.Equal(dec(t, "-0.40")))
}

func TestLedgerArchive_EmptyDay(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := pgstore.NewLedgerArchive(pool)
	ctx := context.Background()

	pnl, err := store.DailyPnL(ctx, "2025-01-01")
	require.NoError(t, err)
	require.True(t, pnl.IsZero())

	stats, err := store.DailyStats(ctx, "2025-01-01")
	require.NoError(t, err)
	require.Equal(t, 0, stats.TotalTrades)
	require.True(t, stats.TotalPnL.IsZero())
}
