package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeLedgerEntry is the append-only record written when a position closes.
// Entries are partitioned by calendar day (UTC) for daily PnL and stats.
type TradeLedgerEntry struct {
	Mint        string
	Symbol      string
	Category    SlotCategory
	EntryPrice  decimal.Decimal
	ExitPrice   decimal.Decimal
	SolSpent    decimal.Decimal
	SolReceived decimal.Decimal
	PnLSol      decimal.Decimal
	PnLPercent  decimal.Decimal
	Reason      CloseReason
	ClosedAt    time.Time
	Day         string // YYYY-MM-DD, UTC
}

// DailyStats aggregates one day of ledger entries. A day with no trades is
// all zeros, not an error.
type DailyStats struct {
	Day         string
	TotalTrades int
	Wins        int
	Losses      int
	WinRate     float64 // percent of trades with positive PnL
	TotalPnL    decimal.Decimal
	AvgPnL      decimal.Decimal
	BestPnL     decimal.Decimal
	WorstPnL    decimal.Decimal
}

// Day formats a timestamp as the UTC ledger partition key.
func Day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// ComputeDailyStats folds ledger entries into daily statistics. Wins are
// entries with PnL > 0, losses PnL < 0; break-even trades count toward the
// total only.
func ComputeDailyStats(day string, entries []*TradeLedgerEntry) *DailyStats {
	stats := &DailyStats{
		Day:      day,
		TotalPnL: decimal.Zero,
		AvgPnL:   decimal.Zero,
		BestPnL:  decimal.Zero,
		WorstPnL: decimal.Zero,
	}
	if len(entries) == 0 {
		return stats
	}

	stats.BestPnL = entries[0].PnLSol
	stats.WorstPnL = entries[0].PnLSol

	for _, e := range entries {
		stats.TotalTrades++
		if e.PnLSol.IsPositive() {
			stats.Wins++
		} else if e.PnLSol.IsNegative() {
			stats.Losses++
		}
		stats.TotalPnL = stats.TotalPnL.Add(e.PnLSol)
		if e.PnLSol.GreaterThan(stats.BestPnL) {
			stats.BestPnL = e.PnLSol
		}
		if e.PnLSol.LessThan(stats.WorstPnL) {
			stats.WorstPnL = e.PnLSol
		}
	}

	stats.WinRate = float64(stats.Wins) / float64(stats.TotalTrades) * 100
	stats.AvgPnL = stats.TotalPnL.Div(decimal.NewFromInt(int64(stats.TotalTrades)))
	return stats
}
