// Package main runs the sniper: it consumes the launchpad stream, opens
// positions through the risk gate, and monitors exits on a fixed tick.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pump-sniper-bot/internal/config"
	"pump-sniper-bot/internal/domain"
	"pump-sniper-bot/internal/engine"
	"pump-sniper-bot/internal/executor"
	"pump-sniper-bot/internal/feed"
	"pump-sniper-bot/internal/notify"
	"pump-sniper-bot/internal/observability"
	"pump-sniper-bot/internal/oracle"
	"pump-sniper-bot/internal/ratelimit"
	"pump-sniper-bot/internal/risk"
	"pump-sniper-bot/internal/solana"
	"pump-sniper-bot/internal/storage"
	chstore "pump-sniper-bot/internal/storage/clickhouse"
	"pump-sniper-bot/internal/storage/memory"
	"pump-sniper-bot/internal/storage/migrations"
	pgstore "pump-sniper-bot/internal/storage/postgres"
	redisstore "pump-sniper-bot/internal/storage/redis"
)

const shutdownGrace = 30 * time.Second

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration invalid")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if cfg.DryRun {
		log.Info().Msg("dry run: paper fills only, no funds move")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics("")

	// Storage. Redis backs positions and the shared cache tier when
	// configured; otherwise everything lives in process memory.
	var (
		positions   storage.PositionStore
		sharedCache storage.SnapshotCache
	)
	if cfg.RedisAddr != "" {
		client, err := redisstore.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connect failed")
		}
		defer client.Close()
		positions = redisstore.NewPositionStore(client)
		sharedCache = redisstore.NewSnapshotCache(client)
		log.Info().Str("addr", cfg.RedisAddr).Msg("using redis storage")
	} else {
		positions = memory.NewPositionStore()
		sharedCache = memory.NewSnapshotCache()
		log.Warn().Msg("no REDIS_ADDR, positions are process-local")
	}

	var archive storage.LedgerArchive
	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres connect failed")
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("postgres migrations failed")
		}
		archive = pgstore.NewLedgerArchive(pool)
		log.Info().Msg("ledger archive enabled")
	}

	var history storage.PriceHistoryStore
	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("clickhouse migrations failed")
		}
		defer conn.Close()
		history = chstore.NewPriceHistoryStore(conn)
		log.Info().Msg("price history sink enabled")
	}

	// Oracle over the primary RPC endpoint, with an optional fallback.
	rpcClient := solana.NewHTTPClient(cfg.RPCEndpoint)
	slot, err := rpcClient.GetSlot(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("rpc health check failed")
	}
	log.Info().Int64("slot", slot).Msg("rpc endpoint healthy")
	primary := solana.NewCurveReader(rpcClient)
	oracleOpts := []oracle.Option{
		oracle.WithPositionSource(positions),
		oracle.WithMetrics(metrics),
	}
	if cfg.RPCFallback != "" {
		oracleOpts = append(oracleOpts,
			oracle.WithFallback(solana.NewCurveReader(solana.NewHTTPClient(cfg.RPCFallback))))
	}
	oracleOpts = append(oracleOpts, oracle.WithSharedCache(sharedCache))
	if history != nil {
		oracleOpts = append(oracleOpts, oracle.WithHistorySink(history))
	}
	prices := oracle.New(primary, oracle.Config{
		LocalTTL:   cfg.LocalCacheTTL,
		SharedTTL:  cfg.SharedCacheTTL,
		MaxRetries: cfg.OracleRetries,
		RetryDelay: cfg.OracleRetryWait,
	}, oracleOpts...)

	// Notifications.
	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.TelegramToken != "" {
		tg, err := notify.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Fatal().Err(err).Msg("telegram setup failed")
		}
		notifier = notify.Multi{notify.LogNotifier{}, tg}
	}

	// Risk.
	breaker := risk.NewCircuitBreaker(positions, risk.BreakerConfig{
		MaxLossesInRow:  cfg.MaxLossesInRow,
		MaxDailyLossSol: cfg.MaxDailyLossSol,
		PauseDuration:   cfg.BreakerPause,
	},
		risk.WithBreakerMetrics(metrics),
		risk.WithTripObserver(func(reason string, until time.Time) {
			notifier.Notify(context.Background(),
				"trading paused ("+reason+") until "+until.Format(time.RFC3339))
		}),
	)
	gate := risk.NewGate(positions, risk.GateConfig{
		ReservedSlots:     cfg.ReservedSlots,
		NormalSlots:       cfg.NormalSlots,
		MaxTotalSlots:     cfg.MaxTotalSlots,
		MaxDailyLossSol:   cfg.MaxDailyLossSol,
		MinLiquiditySol:   cfg.MinLiquiditySol,
		MaxEntryPrice:     cfg.MaxEntryPrice,
		BaseSizeSol:       cfg.BaseSizeSol,
		StopLossPercent:   cfg.StopLossPercent,
		TakeProfitPercent: cfg.TakeProfitPercent,
	}, risk.WithBreaker(breaker), risk.WithGateMetrics(metrics))

	// Execution. Live order routing is deliberately not wired here; the
	// paper executor fills at oracle prices with the live fee model.
	exec := executor.NewPaper(prices)

	entries := engine.NewEntryHandler(gate, positions, prices, exec, engine.EntryConfig{
		RequirePumpSuffix: cfg.RequirePumpSuffix,
		MaxInitialBuySol:  cfg.MaxInitialBuySol,
		ReentryCooldown:   cfg.ReentryCooldown,
	}, engine.WithEntryNotifier(notifier), engine.WithEntryMetrics(metrics))

	limiter := ratelimit.New(cfg.OracleReadsPerSecond,
		ratelimit.WithBlockedObserver(metrics.RateLimited.Inc))
	monitor := engine.NewMonitor(positions, prices, exec, engine.ExitRules{
		StopLossPercent:      cfg.StopLossPercent,
		TakeProfitPercent:    cfg.TakeProfitPercent,
		TrailingStopPercent:  cfg.TrailingStopPercent,
		StagnationAfter:      cfg.StagnationAfter,
		StagnationPnLPercent: cfg.StagnationPnLPercent,
		CloseOnGraduation:    cfg.CloseOnGraduation,
	},
		engine.WithTickInterval(cfg.TickInterval),
		engine.WithBreaker(breaker),
		engine.WithRateLimiter(limiter),
		engine.WithNotifier(notifier),
		engine.WithMonitorMetrics(metrics),
		engine.WithCloseObserver(entries.MarkCooldown),
	)

	stream := feed.NewClient(cfg.FeedEndpoint, feed.DefaultConfig(), feed.Callbacks{
		OnToken: func(sig domain.TokenSignal) {
			if err := entries.HandleSignal(ctx, sig); err != nil {
				log.Warn().Err(err).Str("mint", sig.Mint).Msg("entry failed")
			}
		},
		OnGraduation: func(sig domain.GraduationSignal) {
			prices.MarkGraduated(ctx, sig.Mint)
		},
	}, feed.WithFeedMetrics(metrics))

	// Metrics endpoint.
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	// Shutdown: first signal cancels and lets the current tick finish;
	// a second signal, or an expired grace period, forces exit.
	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
		select {
		case <-sigCh:
			log.Warn().Msg("second signal, forcing exit")
			os.Exit(1)
		case <-time.After(shutdownGrace):
			log.Warn().Msg("shutdown grace period expired, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		stream.Run(ctx)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		monitor.Run(ctx)
	}()
	if archive != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mirrorLedger(ctx, positions, archive)
		}()
	}

	wg.Wait()
	close(done)
	log.Info().Msg("shutdown complete")
}

// mirrorLedger periodically copies closed trades into the durable
// archive. Inserts are idempotent, so re-mirroring is safe. The first
// pass runs immediately so trades closed while the process was down
// still reach the archive.
func mirrorLedger(ctx context.Context, store storage.PositionStore, archive storage.LedgerArchive) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	mirrorPass(ctx, store, archive, time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mirrorPass(ctx, store, archive, time.Now())
		}
	}
}

// mirrorPass copies the previous and current UTC day's ledger. Covering
// the previous day picks up trades closed between the old day's last
// pass and midnight.
func mirrorPass(ctx context.Context, store storage.PositionStore, archive storage.LedgerArchive, now time.Time) {
	days := []string{domain.Day(now.Add(-24 * time.Hour)), domain.Day(now)}
	for _, day := range days {
		entries, err := store.LedgerEntries(ctx, day)
		if err != nil {
			log.Warn().Err(err).Str("day", day).Msg("ledger read failed, skipping mirror pass")
			continue
		}
		for _, e := range entries {
			if err := archive.Insert(ctx, e); err != nil {
				log.Warn().Err(err).Str("mint", e.Mint).Msg("ledger mirror insert failed")
			}
		}
	}
}
