// Package main prints the daily trading ledger and its aggregates.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pump-sniper-bot/internal/domain"
	pgstore "pump-sniper-bot/internal/storage/postgres"
	redisstore "pump-sniper-bot/internal/storage/redis"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	day := flag.String("day", domain.Day(time.Now()), "UTC day to report (YYYY-MM-DD)")
	redisAddr := flag.String("redis-addr", os.Getenv("REDIS_ADDR"), "Redis address for the hot ledger")
	redisPassword := flag.String("redis-password", os.Getenv("REDIS_PASSWORD"), "Redis password")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "Postgres DSN for the ledger archive")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stats, entries, err := fetch(ctx, *day, *redisAddr, *redisPassword, *postgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("report failed")
	}

	fmt.Printf("Daily report for %s\n\n", *day)
	printStats(stats)
	if len(entries) > 0 {
		fmt.Println()
		printEntries(entries)
	}
}

// fetch prefers the hot Redis ledger and falls back to the Postgres
// archive for days past the hot retention.
func fetch(ctx context.Context, day, redisAddr, redisPassword, postgresDSN string) (*domain.DailyStats, []*domain.TradeLedgerEntry, error) {
	if redisAddr != "" {
		client, err := redisstore.NewClient(ctx, redisAddr, redisPassword, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("redis connect: %w", err)
		}
		defer client.Close()

		store := redisstore.NewPositionStore(client)
		stats, err := store.DailyStats(ctx, day)
		if err != nil {
			return nil, nil, err
		}
		if stats.TotalTrades > 0 || postgresDSN == "" {
			entries, err := store.LedgerEntries(ctx, day)
			if err != nil {
				return nil, nil, err
			}
			return stats, entries, nil
		}
		log.Info().Str("day", day).Msg("no hot entries, reading the archive")
	}

	if postgresDSN == "" {
		return nil, nil, fmt.Errorf("set REDIS_ADDR or POSTGRES_DSN")
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres connect: %w", err)
	}
	defer pool.Close()

	archive := pgstore.NewLedgerArchive(pool)
	stats, err := archive.DailyStats(ctx, day)
	if err != nil {
		return nil, nil, err
	}
	entries, err := archive.GetByDay(ctx, day)
	if err != nil {
		return nil, nil, err
	}
	return stats, entries, nil
}

func printStats(s *domain.DailyStats) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "trades\t%d\n", s.TotalTrades)
	fmt.Fprintf(w, "wins\t%d\n", s.Wins)
	fmt.Fprintf(w, "losses\t%d\n", s.Losses)
	fmt.Fprintf(w, "win rate\t%.1f%%\n", s.WinRate)
	fmt.Fprintf(w, "total pnl\t%s SOL\n", s.TotalPnL.StringFixed(4))
	fmt.Fprintf(w, "avg pnl\t%s SOL\n", s.AvgPnL.StringFixed(4))
	fmt.Fprintf(w, "best\t%s SOL\n", s.BestPnL.StringFixed(4))
	fmt.Fprintf(w, "worst\t%s SOL\n", s.WorstPnL.StringFixed(4))
	w.Flush()
}

func printEntries(entries []*domain.TradeLedgerEntry) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "time\tsymbol\tmint\treason\tpnl sol\tpnl %")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ClosedAt.UTC().Format("15:04:05"),
			e.Symbol,
			e.Mint,
			e.Reason,
			e.PnLSol.StringFixed(4),
			e.PnLPercent.StringFixed(2),
		)
	}
	w.Flush()
}
