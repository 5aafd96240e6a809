// Package common provides shared utilities for tsxdata
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for tsxdata
type Config struct {
	Environment string          `toml:"environment"`
	Questrade   QuestradeConfig `toml:"questrade"`
	TMX         TMXConfig       `toml:"tmx"`
	Postgres    PostgresConfig  `toml:"postgres"`
	Ingest      IngestConfig    `toml:"ingest"`
	Logging     LoggingConfig   `toml:"logging"`
}

// QuestradeConfig holds Questrade API configuration
type QuestradeConfig struct {
	LoginURL      string `toml:"login_url"`
	RefreshToken  string `toml:"refresh_token"`
	RateLimit     int    `toml:"rate_limit"`
	Timeout       string `toml:"timeout"`
	ThrottleCodes []int  `toml:"throttle_codes"`
}

// GetTimeout parses and returns the timeout duration
func (c *QuestradeConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// TMXConfig holds TMX company directory configuration
type TMXConfig struct {
	BaseURL   string `toml:"base_url"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *TMXConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// PostgresConfig holds PostgreSQL connection and table configuration
type PostgresConfig struct {
	DSN               string `toml:"dsn"`
	CandleTable       string `toml:"candle_table"`
	FundamentalsTable string `toml:"fundamentals_table"`
	DirectoryTable    string `toml:"directory_table"`
}

// IngestConfig holds candle ingestion configuration.
// StartDate is only consulted when the candle table is empty; the normal
// resume point is one day past the latest stored bar.
type IngestConfig struct {
	StartDate string `toml:"start_date"` // YYYY-MM-DD, optional
}

// GetStartDate parses the optional explicit start date
func (c *IngestConfig) GetStartDate() (time.Time, bool) {
	if c.StartDate == "" {
		return time.Time{}, false
	}
	d, err := time.Parse("2006-01-02", c.StartDate)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `toml:"level"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Questrade: QuestradeConfig{
			LoginURL:      "https://login.questrade.com/oauth2/token",
			RateLimit:     5,
			Timeout:       "30s",
			ThrottleCodes: []int{1019},
		},
		TMX: TMXConfig{
			BaseURL:   "https://www.tsx.com/json/company-directory/search/tsx",
			RateLimit: 2,
			Timeout:   "30s",
		},
		Postgres: PostgresConfig{
			CandleTable:       "candlestick_data",
			FundamentalsTable: "symbol_info",
			DirectoryTable:    "tsx_directory",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// Validate checks that the configuration is usable for a refresh run
func (c *Config) Validate() error {
	if c.Questrade.RefreshToken == "" {
		return fmt.Errorf("questrade refresh token is not configured")
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres dsn is not configured")
	}
	if c.Postgres.CandleTable == "" {
		return fmt.Errorf("candle table name is not configured")
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("TSXDATA_ENV"); env != "" {
		config.Environment = env
	}

	if level := os.Getenv("TSXDATA_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if token := os.Getenv("TSXDATA_QT_REFRESH_TOKEN"); token != "" {
		config.Questrade.RefreshToken = token
	}

	if u := os.Getenv("TSXDATA_QT_LOGIN_URL"); u != "" {
		config.Questrade.LoginURL = u
	}

	if rl := os.Getenv("TSXDATA_QT_RATE_LIMIT"); rl != "" {
		if n, err := strconv.Atoi(rl); err == nil {
			config.Questrade.RateLimit = n
		}
	}

	if dsn := os.Getenv("TSXDATA_POSTGRES_DSN"); dsn != "" {
		config.Postgres.DSN = dsn
	}

	if sd := os.Getenv("TSXDATA_START_DATE"); sd != "" {
		config.Ingest.StartDate = sd
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
