package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultMaxBorrowDays        = 14
	DefaultMaxBooksPerUser      = 5
	DefaultOverdueCheckInterval = 24 * time.Hour
)

type Config struct {
	HTTPAddr string
	LogLevel string

	DBDriver     string
	DBHost       string
	DBPort       string
	DBUser       string
	DBPassword   string
	DBName       string
	SQLitePath   string
	DBMaxRetries int

	MaxBorrowDays        int
	MaxBooksPerUser      int
	OverdueCheckInterval time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	EventRetryInterval time.Duration
	EventMaxRetries    int

	BreakerMaxFailures int
	BreakerCooldown    time.Duration
}

// Load reads the optional env files, then the process environment.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && len(envFiles) > 0 {
		return Config{}, fmt.Errorf("load env files: %w", err)
	}

	cfg := Config{
		HTTPAddr:   getEnv("HTTP_ADDR", ":8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		DBDriver:   getEnv("DB_DRIVER", "postgres"),
		DBHost:     getEnv("DB_HOST", "postgres"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "program"),
		DBPassword: getEnv("DB_PASSWORD", "test"),
		DBName:     getEnv("DB_NAME", "library"),
		SQLitePath: getEnv("SQLITE_PATH", "libtrack.db"),
	}

	var err error
	if cfg.DBMaxRetries, err = getInt("DB_MAX_RETRIES", 10); err != nil {
		return Config{}, err
	}
	if cfg.MaxBorrowDays, err = getInt("MAX_BORROW_DAYS", DefaultMaxBorrowDays); err != nil {
		return Config{}, err
	}
	if cfg.MaxBooksPerUser, err = getInt("MAX_BOOKS_PER_USER", DefaultMaxBooksPerUser); err != nil {
		return Config{}, err
	}
	intervalMs, err := getInt("OVERDUE_CHECK_INTERVAL_MS", int(DefaultOverdueCheckInterval/time.Millisecond))
	if err != nil {
		return Config{}, err
	}
	cfg.OverdueCheckInterval = time.Duration(intervalMs) * time.Millisecond
	if cfg.RateLimitRPS, err = getFloat("RATE_LIMIT_RPS", 2); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitBurst, err = getInt("RATE_LIMIT_BURST", 4); err != nil {
		return Config{}, err
	}
	if cfg.EventRetryInterval, err = getDuration("EVENT_RETRY_INTERVAL", time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.EventMaxRetries, err = getInt("EVENT_MAX_RETRIES", 5); err != nil {
		return Config{}, err
	}
	if cfg.BreakerMaxFailures, err = getInt("BREAKER_MAX_FAILURES", 3); err != nil {
		return Config{}, err
	}
	if cfg.BreakerCooldown, err = getDuration("BREAKER_COOLDOWN", 10*time.Minute); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.DBDriver != "postgres" && c.DBDriver != "sqlite":
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver)
	case c.MaxBorrowDays < 1:
		return fmt.Errorf("MAX_BORROW_DAYS must be positive, got %d", c.MaxBorrowDays)
	case c.MaxBooksPerUser < 1:
		return fmt.Errorf("MAX_BOOKS_PER_USER must be positive, got %d", c.MaxBooksPerUser)
	case c.OverdueCheckInterval <= 0:
		return fmt.Errorf("OVERDUE_CHECK_INTERVAL_MS must be positive")
	case c.RateLimitRPS <= 0 || c.RateLimitBurst < 1:
		return fmt.Errorf("rate limit must allow at least one request")
	}
	return nil
}

func (c Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
