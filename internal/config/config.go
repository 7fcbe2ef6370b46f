// Package config loads the bot configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the bot.
type Config struct {
	// Endpoints
	RPCEndpoint   string
	RPCFallback   string
	FeedEndpoint  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PostgresDSN   string
	ClickhouseDSN string
	MetricsAddr   string

	// Telegram
	TelegramToken  string
	TelegramChatID int64

	// Mode
	DryRun bool
	Debug  bool

	// Oracle
	LocalCacheTTL   time.Duration
	SharedCacheTTL  time.Duration
	OracleRetries   int
	OracleRetryWait time.Duration

	// Entry
	BaseSizeSol       decimal.Decimal
	ReservedSlots     int
	NormalSlots       int
	MaxTotalSlots     int
	MinLiquiditySol   decimal.Decimal
	MaxEntryPrice     decimal.Decimal
	MaxInitialBuySol  decimal.Decimal
	RequirePumpSuffix bool
	ReentryCooldown   time.Duration

	// Exits
	StopLossPercent      decimal.Decimal
	TakeProfitPercent    decimal.Decimal
	TrailingStopPercent  decimal.Decimal
	StagnationAfter      time.Duration
	StagnationPnLPercent decimal.Decimal
	CloseOnGraduation    bool
	TickInterval         time.Duration

	// Risk
	MaxDailyLossSol decimal.Decimal
	MaxLossesInRow  int
	BreakerPause    time.Duration

	// Rate limiting
	OracleReadsPerSecond int
}

// Load reads the configuration from the environment, applying defaults.
// A .env file is honored when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		RPCEndpoint:   os.Getenv("SOLANA_RPC_ENDPOINT"),
		RPCFallback:   os.Getenv("SOLANA_RPC_FALLBACK"),
		FeedEndpoint:  getEnv("FEED_ENDPOINT", "wss://pumpportal.fun/api/data"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		ClickhouseDSN: os.Getenv("CLICKHOUSE_DSN"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		DryRun: getEnvBool("DRY_RUN", true),
		Debug:  getEnvBool("DEBUG", false),

		LocalCacheTTL:   getEnvDuration("LOCAL_CACHE_TTL", 3*time.Second),
		SharedCacheTTL:  getEnvDuration("SHARED_CACHE_TTL", 10*time.Second),
		OracleRetries:   getEnvInt("ORACLE_RETRIES", 3),
		OracleRetryWait: getEnvDuration("ORACLE_RETRY_WAIT", 500*time.Millisecond),

		BaseSizeSol:       getEnvDecimal("BASE_SIZE_SOL", "0.1"),
		ReservedSlots:     getEnvInt("RESERVED_SLOTS", 2),
		NormalSlots:       getEnvInt("NORMAL_SLOTS", 3),
		MaxTotalSlots:     getEnvInt("MAX_TOTAL_SLOTS", 5),
		MinLiquiditySol:   getEnvDecimal("MIN_LIQUIDITY_SOL", "5"),
		MaxEntryPrice:     getEnvDecimal("MAX_ENTRY_PRICE", "1"),
		MaxInitialBuySol:  getEnvDecimal("MAX_INITIAL_BUY_SOL", "0"),
		RequirePumpSuffix: getEnvBool("REQUIRE_PUMP_SUFFIX", true),
		ReentryCooldown:   getEnvDuration("REENTRY_COOLDOWN", 15*time.Minute),

		StopLossPercent:      getEnvDecimal("STOP_LOSS_PERCENT", "13"),
		TakeProfitPercent:    getEnvDecimal("TAKE_PROFIT_PERCENT", "30"),
		TrailingStopPercent:  getEnvDecimal("TRAILING_STOP_PERCENT", "15"),
		StagnationAfter:      getEnvDuration("STAGNATION_AFTER", 300*time.Second),
		StagnationPnLPercent: getEnvDecimal("STAGNATION_PNL_PERCENT", "5"),
		CloseOnGraduation:    getEnvBool("CLOSE_ON_GRADUATION", true),
		TickInterval:         getEnvDuration("TICK_INTERVAL", 5*time.Second),

		MaxDailyLossSol: getEnvDecimal("MAX_DAILY_LOSS_SOL", "1"),
		MaxLossesInRow:  getEnvInt("MAX_LOSSES_IN_ROW", 3),
		BreakerPause:    getEnvDuration("BREAKER_PAUSE", 30*time.Minute),

		OracleReadsPerSecond: getEnvInt("ORACLE_READS_PER_SECOND", 10),
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run. Failures here must
// stop the process before any loop starts.
func (c *Config) Validate() error {
	if c.RPCEndpoint == "" {
		return fmt.Errorf("SOLANA_RPC_ENDPOINT is required")
	}
	if c.FeedEndpoint == "" {
		return fmt.Errorf("FEED_ENDPOINT is required")
	}
	if !c.BaseSizeSol.IsPositive() {
		return fmt.Errorf("BASE_SIZE_SOL must be positive")
	}
	if c.ReservedSlots < 0 || c.NormalSlots < 0 {
		return fmt.Errorf("slot counts must not be negative")
	}
	if c.MaxTotalSlots <= 0 {
		return fmt.Errorf("MAX_TOTAL_SLOTS must be positive")
	}
	if c.MaxTotalSlots > c.ReservedSlots+c.NormalSlots {
		return fmt.Errorf("MAX_TOTAL_SLOTS exceeds the slot pool")
	}
	if c.ReservedSlots > c.MaxTotalSlots {
		return fmt.Errorf("RESERVED_SLOTS exceeds MAX_TOTAL_SLOTS")
	}
	if !c.StopLossPercent.IsPositive() || !c.TakeProfitPercent.IsPositive() {
		return fmt.Errorf("stop-loss and take-profit percents must be positive")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be positive")
	}
	if c.OracleReadsPerSecond <= 0 {
		return fmt.Errorf("ORACLE_READS_PER_SECOND must be positive")
	}
	if c.TelegramToken != "" && c.TelegramChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvDecimal(key, fallback string) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return decimal.RequireFromString(fallback)
}
