// Package app wires configuration, clients, storage and services into a
// runnable tsxdata instance.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jfmartel/tsxdata/internal/clients/questrade"
	"github.com/jfmartel/tsxdata/internal/clients/tmx"
	"github.com/jfmartel/tsxdata/internal/common"
	"github.com/jfmartel/tsxdata/internal/services/ingest"
	"github.com/jfmartel/tsxdata/internal/storage/migrations"
	"github.com/jfmartel/tsxdata/internal/storage/postgres"
)

// App holds all initialized clients, stores and services. It is the shared
// core behind every cmd/tsxdata subcommand.
type App struct {
	Config  *common.Config
	Logger  *common.Logger
	Pool    *postgres.Pool
	Session *questrade.Session
	Market  *questrade.Client
	TMX     *tmx.Client
	Ingest  *ingest.Service

	StartupTime time.Time
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes configuration, logging, storage and services.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(ctx context.Context, configPath string) (*App, error) {
	startupStart := time.Now()

	// Load configuration - check provided path, TSXDATA_CONFIG, then binary
	// dir, then the development fallback
	if configPath == "" {
		configPath = os.Getenv("TSXDATA_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(getBinaryDir(), "tsxdata.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/tsxdata.toml"
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := common.NewLogger(config.Logging.Level)
	logger.Info().Str("environment", config.Environment).Msg("Starting tsxdata")

	pool, err := postgres.NewPool(ctx, config.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	candleStore := postgres.NewCandleStore(pool, config.Postgres.CandleTable)
	symbolStore := postgres.NewSymbolStore(pool, config.Postgres.DirectoryTable, config.Postgres.FundamentalsTable)

	session := questrade.NewSession(config.Questrade.RefreshToken,
		questrade.WithLoginURL(config.Questrade.LoginURL),
		questrade.WithSessionLogger(logger),
		questrade.WithSessionTimeout(config.Questrade.GetTimeout()),
	)

	marketOpts := []questrade.ClientOption{
		questrade.WithLogger(logger),
		questrade.WithRateLimit(config.Questrade.RateLimit),
		questrade.WithTimeout(config.Questrade.GetTimeout()),
	}
	if len(config.Questrade.ThrottleCodes) > 0 {
		marketOpts = append(marketOpts, questrade.WithThrottleCodes(config.Questrade.ThrottleCodes...))
	}
	market := questrade.NewClient(session, marketOpts...)

	directory := tmx.NewClient(
		tmx.WithBaseURL(config.TMX.BaseURL),
		tmx.WithLogger(logger),
		tmx.WithRateLimit(config.TMX.RateLimit),
		tmx.WithTimeout(config.TMX.GetTimeout()),
	)

	service := ingest.NewService(candleStore, symbolStore, market, directory, logger)

	logger.Info().
		Dur("startup", time.Since(startupStart)).
		Msg("Application initialized")

	return &App{
		Config:      config,
		Logger:      logger,
		Pool:        pool,
		Session:     session,
		Market:      market,
		TMX:         directory,
		Ingest:      service,
		StartupTime: startupStart,
	}, nil
}

// Authenticate performs the initial Questrade token exchange.
func (a *App) Authenticate(ctx context.Context) error {
	return a.Session.Authenticate(ctx)
}

// Close releases held resources.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
	a.Logger.Info().Msg("Application shut down")
}
