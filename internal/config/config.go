// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mmynk/splitledger/internal/settlement"
	"github.com/mmynk/splitledger/pkg/logging"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config is the process configuration.
type Config struct {
	Store       string
	DBPath      string
	DatabaseURL string
	// DatabaseName, when set, replaces the database in DatabaseURL.
	DatabaseName string

	LogLevel slog.Level

	SearchTimeout         time.Duration
	MaxSearchParticipants int

	// MetricsAddr is the listen address of the Prometheus endpoint. Empty disables it.
	MetricsAddr string
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// Load reads the configuration from environment variables, applying defaults for
// anything unset. Call Validate once any overrides are applied.
func Load() (*Config, error) {
	cfg := &Config{
		Store:        strings.ToLower(getEnv("SPLITLEDGER_STORE", StoreSQLite)),
		DBPath:       getEnv("DB_PATH", "./data/ledger.db"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseName: os.Getenv("DATABASE_NAME"),
		MetricsAddr:  os.Getenv("METRICS_ADDR"),
	}

	level, err := logging.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	cfg.SearchTimeout, err = time.ParseDuration(getEnv("SEARCH_TIMEOUT", settlement.DefaultSearchTimeout.String()))
	if err != nil {
		return nil, fmt.Errorf("invalid SEARCH_TIMEOUT: %w", err)
	}

	cfg.MaxSearchParticipants, err = strconv.Atoi(getEnv("MAX_SEARCH_PARTICIPANTS", strconv.Itoa(settlement.DefaultMaxSearchParticipants)))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_SEARCH_PARTICIPANTS: %w", err)
	}

	return cfg, nil
}

// Validate checks that the selected store has what it needs.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StoreSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite store")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store %q: want %s, %s or %s", c.Store, StoreMemory, StoreSQLite, StorePostgres)
	}
	return nil
}
