package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jfmartel/tsxdata/internal/interfaces"
	"github.com/jfmartel/tsxdata/internal/models"
	"github.com/jfmartel/tsxdata/internal/storage"
)

// SymbolStore implements interfaces.SymbolStore using PostgreSQL. It owns the
// exchange directory table and the append-only fundamentals snapshot table.
type SymbolStore struct {
	pool           *Pool
	directoryTable string
	fundTable      string
}

// NewSymbolStore creates a symbol store over the named tables.
func NewSymbolStore(pool *Pool, directoryTable, fundamentalsTable string) *SymbolStore {
	return &SymbolStore{
		pool:           pool,
		directoryTable: directoryTable,
		fundTable:      fundamentalsTable,
	}
}

// Compile-time interface check.
var _ interfaces.SymbolStore = (*SymbolStore)(nil)

// ReplaceDirectory overwrites the directory table with the given listings and
// keeps a dated snapshot copy alongside it, one table per refresh date.
func (s *SymbolStore) ReplaceDirectory(ctx context.Context, listings []models.SymbolListing, asOf time.Time) error {
	if len(listings) == 0 {
		return fmt.Errorf("replace directory: %w: empty listing set", storage.ErrInvalidInput)
	}

	live := pgx.Identifier{s.directoryTable}.Sanitize()
	snapshot := pgx.Identifier{s.directoryTable + "_" + asOf.Format("2006-01-02")}.Sanitize()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin directory replace: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, live)); err != nil {
		return fmt.Errorf("clear directory: %w", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{s.directoryTable},
		[]string{"company_name", "symbol"},
		pgx.CopyFromSlice(len(listings), func(i int) ([]interface{}, error) {
			return []interface{}{listings[i].CompanyName, listings[i].Symbol}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("write directory: %w", err)
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, snapshot)); err != nil {
		return fmt.Errorf("drop stale snapshot: %w", err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(`CREATE TABLE %s AS SELECT * FROM %s`, snapshot, live)); err != nil {
		return fmt.Errorf("snapshot directory: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit directory replace: %w", err)
	}
	return nil
}

// ListUniverse returns the distinct (symbol_id, symbol) pairs present in the
// fundamentals table, the driving set for candle ingestion.
func (s *SymbolStore) ListUniverse(ctx context.Context) ([]models.SymbolRef, error) {
	query := fmt.Sprintf(
		`SELECT DISTINCT "symbolId", "symbol" FROM %s ORDER BY "symbol"`,
		pgx.Identifier{s.fundTable}.Sanitize())

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list universe: %w", err)
	}
	defer rows.Close()

	var universe []models.SymbolRef
	for rows.Next() {
		var ref models.SymbolRef
		if err := rows.Scan(&ref.SymbolID, &ref.Symbol); err != nil {
			return nil, fmt.Errorf("scan universe row: %w", err)
		}
		universe = append(universe, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate universe rows: %w", err)
	}

	return universe, nil
}

// AppendFundamentals appends one dated fundamentals snapshot. Snapshots are
// never updated in place; each refresh adds a new (symbol, info_date) row.
func (s *SymbolStore) AppendFundamentals(ctx context.Context, snap *models.FundamentalsSnapshot) error {
	if snap == nil || snap.Symbol == "" {
		return fmt.Errorf("append fundamentals: %w", storage.ErrInvalidInput)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			"info_date", "symbol", "symbolId", "prevDayClosePrice", "highPrice52",
			"lowPrice52", "averageVol3Months", "averageVol20Days", "outstandingShares",
			"eps", "pe", "dividend", "yield", "exDate", "marketCap",
			"listingExchange", "description", "securityType", "dividendDate",
			"isTradable", "isQuotable", "currency", "industrySector",
			"industryGroup", "industrySubgroup"
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)
	`, pgx.Identifier{s.fundTable}.Sanitize())

	_, err := s.pool.Exec(ctx, query,
		snap.InfoDate,
		snap.Symbol,
		snap.SymbolID,
		snap.PrevDayClosePrice,
		snap.HighPrice52,
		snap.LowPrice52,
		snap.AverageVol3Months,
		snap.AverageVol20Days,
		snap.OutstandingShares,
		snap.EPS,
		snap.PE,
		snap.Dividend,
		snap.Yield,
		snap.ExDate,
		snap.MarketCap,
		snap.ListingExchange,
		snap.Description,
		snap.SecurityType,
		snap.DividendDate,
		snap.IsTradable,
		snap.IsQuotable,
		snap.Currency,
		snap.IndustrySector,
		snap.IndustryGroup,
		snap.IndustrySubgroup,
	)
	if err != nil {
		return fmt.Errorf("append fundamentals: %w", err)
	}
	return nil
}
