package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jfmartel/tsxdata/internal/models"
	"github.com/jfmartel/tsxdata/internal/storage"
)

func testSnapshot(symbolID int64, symbol string) *models.FundamentalsSnapshot {
	return &models.FundamentalsSnapshot{
		InfoDate:          date(2023, 6, 9),
		Symbol:            symbol,
		SymbolID:          symbolID,
		PrevDayClosePrice: 118.02,
		HighPrice52:       137.64,
		LowPrice52:        110.76,
		EPS:               7.56,
		PE:                15.6,
		Dividend:          1.43,
		Yield:             4.85,
		ExDate:            "2023-07-28T00:00:00.000000-04:00",
		MarketCap:         84523000000,
		ListingExchange:   "TSX",
		Description:       "BANK OF MONTREAL",
		SecurityType:      "Stock",
		IsTradable:        true,
		IsQuotable:        true,
		Currency:          "CAD",
	}
}

func TestSymbolStore_ReplaceDirectoryAndSnapshot(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSymbolStore(pool, "tsx_directory", "symbol_info")

	listings := []models.SymbolListing{
		{CompanyName: "Bank of Montreal", Symbol: "BMO"},
		{CompanyName: "Example Mining Corp", Symbol: "XYZ"},
	}
	require.NoError(t, store.ReplaceDirectory(ctx, listings, date(2023, 6, 9)))

	assert.Equal(t, int64(2), countRows(t, ctx, pool, "tsx_directory"))
	assert.Equal(t, int64(2), countRows(t, ctx, pool, "tsx_directory_2023-06-09"))

	// A later refresh replaces the live table wholesale and keeps its own
	// dated snapshot.
	require.NoError(t, store.ReplaceDirectory(ctx, listings[:1], date(2023, 6, 16)))

	assert.Equal(t, int64(1), countRows(t, ctx, pool, "tsx_directory"))
	assert.Equal(t, int64(2), countRows(t, ctx, pool, "tsx_directory_2023-06-09"))
	assert.Equal(t, int64(1), countRows(t, ctx, pool, "tsx_directory_2023-06-16"))
}

func TestSymbolStore_ReplaceDirectoryRejectsEmptySet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSymbolStore(pool, "tsx_directory", "symbol_info")

	err := store.ReplaceDirectory(context.Background(), nil, date(2023, 6, 9))
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestSymbolStore_AppendFundamentalsAndListUniverse(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSymbolStore(pool, "tsx_directory", "symbol_info")

	require.NoError(t, store.AppendFundamentals(ctx, testSnapshot(9292, "BMO.TO")))
	require.NoError(t, store.AppendFundamentals(ctx, testSnapshot(1234, "XYZ.TO")))

	// A second snapshot for the same symbol must not widen the universe.
	later := testSnapshot(9292, "BMO.TO")
	later.InfoDate = date(2023, 6, 16)
	require.NoError(t, store.AppendFundamentals(ctx, later))

	assert.Equal(t, int64(3), countRows(t, ctx, pool, "symbol_info"))

	universe, err := store.ListUniverse(ctx)
	require.NoError(t, err)
	require.Len(t, universe, 2)
	assert.Equal(t, models.SymbolRef{SymbolID: 9292, Symbol: "BMO.TO"}, universe[0])
	assert.Equal(t, models.SymbolRef{SymbolID: 1234, Symbol: "XYZ.TO"}, universe[1])
}

func TestSymbolStore_ListUniverseEmptyTable(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSymbolStore(pool, "tsx_directory", "symbol_info")

	universe, err := store.ListUniverse(context.Background())
	require.NoError(t, err)
	assert.Empty(t, universe)
}

func TestSymbolStore_AppendFundamentalsRejectsBlankSymbol(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSymbolStore(pool, "tsx_directory", "symbol_info")

	err := store.AppendFundamentals(context.Background(), &models.FundamentalsSnapshot{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
