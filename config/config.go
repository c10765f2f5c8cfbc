package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Binance API (optional, klines endpoints are public)
	APIKey    string
	SecretKey string

	// Ingestion targets
	Symbols    []string // e.g. BTCUSDT,ETHUSDT
	Timeframes []string // e.g. 1m,1h
	Instrument string   // "spot" or "futures-perpetual"
	StartMonth time.Time
	EndMonth   time.Time
	KeyWorkers int // concurrent symbol/timeframe runs

	// Bulk CDN
	CDNBaseURL      string
	CDNTimeout      time.Duration
	VerifyChecksums bool

	// REST backfill
	RestRequestsPerSecond float64
	RestBurst             int
	MaxCandlesPerRequest  int
	BackfillWorkers       int
	BackfillMaxAttempts   int
	BackfillBackoffMin    time.Duration
	BackfillBackoffMax    time.Duration

	// Ingest ledger (SQLite)
	LedgerPath string

	// ClickHouse sink
	ClickHouseAddr        []string
	ClickHouseDatabase    string
	ClickHouseTable       string
	ClickHouseUser        string
	ClickHousePassword    string
	ClickHouseDialTimeout time.Duration

	// Logging
	LogLevel string
}

const monthLayout = "2006-01"

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API (optional for public klines)
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")

	// Ingestion targets
	cfg.Symbols = splitCSV(getEnv("SYMBOLS", "BTCUSDT"))
	if len(cfg.Symbols) == 0 {
		errs = append(errs, "SYMBOLS must name at least one symbol")
	}
	cfg.Timeframes = splitCSV(getEnv("TIMEFRAMES", "1m"))
	if len(cfg.Timeframes) == 0 {
		errs = append(errs, "TIMEFRAMES must name at least one timeframe")
	}

	cfg.Instrument = getEnv("INSTRUMENT", "spot")
	if cfg.Instrument != "spot" && cfg.Instrument != "futures-perpetual" {
		errs = append(errs, fmt.Sprintf("INSTRUMENT must be 'spot' or 'futures-perpetual', got '%s'", cfg.Instrument))
	}

	cfg.StartMonth, err = getEnvAsMonthRequired("START_MONTH")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid START_MONTH: %v", err))
	}
	cfg.EndMonth, err = getEnvAsMonthRequired("END_MONTH")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid END_MONTH: %v", err))
	}
	if !cfg.StartMonth.IsZero() && !cfg.EndMonth.IsZero() && cfg.EndMonth.Before(cfg.StartMonth) {
		errs = append(errs, "END_MONTH must not precede START_MONTH")
	}

	cfg.KeyWorkers = getEnvAsInt("KEY_WORKERS", 2)
	if cfg.KeyWorkers <= 0 {
		errs = append(errs, "KEY_WORKERS must be positive")
	}

	// Bulk CDN
	cfg.CDNBaseURL = getEnv("CDN_BASE_URL", "https://data.binance.vision")
	cdnTimeoutSeconds := getEnvAsInt("CDN_TIMEOUT_SECONDS", 180)
	if cdnTimeoutSeconds <= 0 {
		errs = append(errs, "CDN_TIMEOUT_SECONDS must be positive")
	}
	cfg.CDNTimeout = time.Duration(cdnTimeoutSeconds) * time.Second
	cfg.VerifyChecksums = getEnvAsBool("VERIFY_CHECKSUMS", true)

	// REST backfill
	cfg.RestRequestsPerSecond = getEnvAsFloat("REST_REQUESTS_PER_SECOND", 10.0)
	if cfg.RestRequestsPerSecond <= 0 {
		errs = append(errs, "REST_REQUESTS_PER_SECOND must be positive")
	}
	cfg.RestBurst = getEnvAsInt("REST_BURST", 10)
	if cfg.RestBurst <= 0 {
		errs = append(errs, "REST_BURST must be positive")
	}

	cfg.MaxCandlesPerRequest = getEnvAsInt("MAX_CANDLES_PER_REQUEST", 1000)
	if cfg.MaxCandlesPerRequest <= 0 || cfg.MaxCandlesPerRequest > 1000 {
		errs = append(errs, "MAX_CANDLES_PER_REQUEST must be between 1 and 1000")
	}
	cfg.BackfillWorkers = getEnvAsInt("BACKFILL_WORKERS", 4)
	if cfg.BackfillWorkers <= 0 {
		errs = append(errs, "BACKFILL_WORKERS must be positive")
	}
	cfg.BackfillMaxAttempts = getEnvAsInt("BACKFILL_MAX_ATTEMPTS", 4)
	if cfg.BackfillMaxAttempts <= 0 {
		errs = append(errs, "BACKFILL_MAX_ATTEMPTS must be positive")
	}
	backoffMinMs := getEnvAsInt("BACKFILL_BACKOFF_MIN_MS", 500)
	backoffMaxMs := getEnvAsInt("BACKFILL_BACKOFF_MAX_MS", 30000)
	if backoffMinMs <= 0 || backoffMaxMs < backoffMinMs {
		errs = append(errs, "BACKFILL_BACKOFF_MIN_MS must be positive and not exceed BACKFILL_BACKOFF_MAX_MS")
	}
	cfg.BackfillBackoffMin = time.Duration(backoffMinMs) * time.Millisecond
	cfg.BackfillBackoffMax = time.Duration(backoffMaxMs) * time.Millisecond

	// Ingest ledger
	cfg.LedgerPath = getEnv("LEDGER_PATH", "./data/ingest_ledger.db")
	if cfg.LedgerPath == "" {
		errs = append(errs, "LEDGER_PATH must be set")
	}

	// ClickHouse sink
	cfg.ClickHouseAddr = splitCSV(getEnv("CLICKHOUSE_ADDR", "localhost:9000"))
	if len(cfg.ClickHouseAddr) == 0 {
		errs = append(errs, "CLICKHOUSE_ADDR must name at least one address")
	}
	cfg.ClickHouseDatabase = getEnv("CLICKHOUSE_DATABASE", "market_data")
	cfg.ClickHouseTable = getEnv("CLICKHOUSE_TABLE", "candles")
	cfg.ClickHouseUser = getEnv("CLICKHOUSE_USER", "default")
	cfg.ClickHousePassword = getEnv("CLICKHOUSE_PASSWORD", "")
	dialTimeoutSeconds := getEnvAsInt("CLICKHOUSE_DIAL_TIMEOUT_SECONDS", 10)
	if dialTimeoutSeconds <= 0 {
		errs = append(errs, "CLICKHOUSE_DIAL_TIMEOUT_SECONDS must be positive")
	}
	cfg.ClickHouseDialTimeout = time.Duration(dialTimeoutSeconds) * time.Second

	// Logging
	cfg.LogLevel = getEnv("LOG_LEVEL", "INFO")

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsMonthRequired parses a required YYYY-MM env var into the first
// day of that month, UTC.
func getEnvAsMonthRequired(key string) (time.Time, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return time.Time{}, fmt.Errorf("%s must be set (format %s)", key, monthLayout)
	}
	t, err := time.ParseInLocation(monthLayout, valueStr, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month value '%s' for key %s: %w", valueStr, key, err)
	}
	return t, nil
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
