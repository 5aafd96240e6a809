// Package interfaces defines service contracts for tsxdata
package interfaces

import (
	"context"
	"time"

	"github.com/jfmartel/tsxdata/internal/models"
)

// MarketDataClient provides access to the Questrade market data API.
type MarketDataClient interface {
	// SearchSymbols queries the symbol search endpoint with a ticker prefix.
	// An empty result is a valid outcome, not an error.
	SearchSymbols(ctx context.Context, prefix string) ([]models.SymbolMatch, error)

	// GetSymbolInfo retrieves fundamentals for an already-resolved symbol id.
	GetSymbolInfo(ctx context.Context, symbolID int64) (*models.FundamentalsSnapshot, error)

	// GetDailyCandles retrieves daily OHLCV bars in [start, end].
	// A throttled response surfaces as *questrade.RateLimitError; a range
	// with no data returns an empty slice and a nil error.
	GetDailyCandles(ctx context.Context, symbolID int64, start, end time.Time) ([]models.Candle, error)
}

// DirectoryClient provides the listed-company universe for an exchange.
type DirectoryClient interface {
	// GetDirectory retrieves all (company name, symbol) pairs currently
	// listed. Rows without a ticker symbol are dropped.
	GetDirectory(ctx context.Context) ([]models.SymbolListing, error)
}
