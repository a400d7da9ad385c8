package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/marketdata"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the paper-trading ledger.
type Config struct {
	LogLevel             string
	DatabaseURL          string
	StartBalance         float64
	QuoteBaseURL         string
	QuoteTimeout         time.Duration
	QuoteTTL             time.Duration
	QuoteRefreshInterval time.Duration
	QuoteConcurrency     int
	SettleTimeout        time.Duration
	SerializeSettlements bool
	PartialFillIncrement float64
}

// LoadDotEnv loads variables from the given .env files (".env" when none
// are given) without overriding ones already set. Missing files are
// ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
func Load() (*Config, error) {
	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	startBalance, err := getFloat("START_BALANCE", 10000)
	if err != nil {
		return nil, fmt.Errorf("invalid START_BALANCE: %w", err)
	}
	if !isFinite(startBalance) || startBalance < 0 {
		return nil, fmt.Errorf("invalid START_BALANCE: %v, must be a non-negative number", startBalance)
	}

	quoteTimeout, err := getDuration("QUOTE_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid QUOTE_TIMEOUT: %w", err)
	}
	if quoteTimeout <= 0 {
		return nil, fmt.Errorf("invalid QUOTE_TIMEOUT: %v, must be positive", quoteTimeout)
	}

	quoteTTL, err := getDuration("QUOTE_TTL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid QUOTE_TTL: %w", err)
	}
	if quoteTTL < 0 {
		return nil, fmt.Errorf("invalid QUOTE_TTL: %v, must not be negative", quoteTTL)
	}

	refreshInterval, err := getDuration("QUOTE_REFRESH_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid QUOTE_REFRESH_INTERVAL: %w", err)
	}
	if refreshInterval <= 0 {
		return nil, fmt.Errorf("invalid QUOTE_REFRESH_INTERVAL: %v, must be positive", refreshInterval)
	}

	concurrency, err := getInt("QUOTE_CONCURRENCY", 4)
	if err != nil {
		return nil, fmt.Errorf("invalid QUOTE_CONCURRENCY: %w", err)
	}
	if concurrency < 1 {
		return nil, fmt.Errorf("invalid QUOTE_CONCURRENCY: %d, must be at least 1", concurrency)
	}

	settleTimeout, err := getDuration("SETTLE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SETTLE_TIMEOUT: %w", err)
	}
	if settleTimeout <= 0 {
		return nil, fmt.Errorf("invalid SETTLE_TIMEOUT: %v, must be positive", settleTimeout)
	}

	serialize, err := getBool("SERIALIZE_SETTLEMENTS", true)
	if err != nil {
		return nil, fmt.Errorf("invalid SERIALIZE_SETTLEMENTS: %w", err)
	}

	increment, err := getFloat("PARTIAL_FILL_INCREMENT", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid PARTIAL_FILL_INCREMENT: %w", err)
	}
	if !isFinite(increment) || increment < 0 {
		return nil, fmt.Errorf("invalid PARTIAL_FILL_INCREMENT: %v, must be a non-negative number", increment)
	}

	return &Config{
		LogLevel:             logLevel,
		DatabaseURL:          getStr("DATABASE_URL", ""),
		StartBalance:         startBalance,
		QuoteBaseURL:         getStr("QUOTE_BASE_URL", marketdata.DefaultBaseURL),
		QuoteTimeout:         quoteTimeout,
		QuoteTTL:             quoteTTL,
		QuoteRefreshInterval: refreshInterval,
		QuoteConcurrency:     concurrency,
		SettleTimeout:        settleTimeout,
		SerializeSettlements: serialize,
		PartialFillIncrement: increment,
	}, nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseBool(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
