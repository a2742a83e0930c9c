package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port          string `envconfig:"PORT" default:"8080"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"*"`
	PublicDir     string `envconfig:"PUBLIC_DIR" default:"public"`

	StoreDriver string `envconfig:"STORE_DRIVER" default:"sqlite"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"database.db"`
	DBDebug     bool   `envconfig:"DB_DEBUG" default:"false"`

	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD"`
	RedisDB        int           `envconfig:"REDIS_DB" default:"0"`
	ReportCacheTTL time.Duration `envconfig:"REPORT_CACHE_TTL" default:"60s"`

	InvoiceMaxAttempts int `envconfig:"INVOICE_MAX_ATTEMPTS" default:"5"`
	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads an optional .env file and then the process environment. Values
// already set in the environment win over the file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH must be set for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL must be set for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q (want sqlite, postgres or memory)", c.StoreDriver)
	}
	if c.InvoiceMaxAttempts < 1 {
		return errors.New("INVOICE_MAX_ATTEMPTS must be at least 1")
	}
	if c.RateLimitPerMinute < 0 {
		return errors.New("RATE_LIMIT_PER_MINUTE must not be negative")
	}
	if c.ReportCacheTTL <= 0 {
		return errors.New("REPORT_CACHE_TTL must be positive")
	}
	return nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}
