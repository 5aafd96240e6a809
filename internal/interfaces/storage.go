package interfaces

import (
	"context"
	"time"

	"github.com/jfmartel/tsxdata/internal/models"
)

// CandleStore provides access to the daily candle series table.
type CandleStore interface {
	// Append writes a batch of candles. Rows are appended as-is; the
	// deduplication pass is responsible for collapsing duplicates.
	Append(ctx context.Context, candles []models.Candle) error

	// MaxStart returns the latest stored bar start. ok is false when the
	// table holds no rows.
	MaxStart(ctx context.Context) (latest time.Time, ok bool, err error)

	// Deduplicate purges malformed rows (start == end) and, when duplicate
	// (start, symbol, symbol_id) keys exist, rebuilds the table from its
	// distinct rows, keeping the previous contents under a backup name.
	// The live table is never left missing: either the rebuild completes or
	// the pre-existing table survives untouched.
	Deduplicate(ctx context.Context) (*models.DedupReport, error)
}

// SymbolStore provides access to the exchange directory and the
// per-symbol fundamentals snapshots.
type SymbolStore interface {
	// ReplaceDirectory overwrites the directory table with the given
	// listings and writes a dated snapshot copy alongside it.
	ReplaceDirectory(ctx context.Context, listings []models.SymbolListing, asOf time.Time) error

	// ListUniverse returns the (symbol_id, symbol) pairs known from the
	// latest fundamentals snapshots, the driving set for candle ingestion.
	ListUniverse(ctx context.Context) ([]models.SymbolRef, error)

	// AppendFundamentals appends one dated fundamentals snapshot.
	AppendFundamentals(ctx context.Context, snap *models.FundamentalsSnapshot) error
}
