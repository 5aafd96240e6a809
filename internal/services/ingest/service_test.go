package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jfmartel/tsxdata/internal/clients/questrade"
	"github.com/jfmartel/tsxdata/internal/common"
	"github.com/jfmartel/tsxdata/internal/models"
	"github.com/jfmartel/tsxdata/internal/storage/memory"
)

// stubMarket is a scripted MarketDataClient.
type stubMarket struct {
	candles    map[int64][]models.Candle
	candleErrs map[int64]error
	searches   map[string][]models.SymbolMatch
	infos      map[int64]*models.FundamentalsSnapshot
	fetchCalls int
}

func (m *stubMarket) SearchSymbols(_ context.Context, prefix string) ([]models.SymbolMatch, error) {
	return m.searches[prefix], nil
}

func (m *stubMarket) GetSymbolInfo(_ context.Context, symbolID int64) (*models.FundamentalsSnapshot, error) {
	info, ok := m.infos[symbolID]
	if !ok {
		return nil, errors.New("unknown symbol id")
	}
	snap := *info
	return &snap, nil
}

func (m *stubMarket) GetDailyCandles(_ context.Context, symbolID int64, start, end time.Time) ([]models.Candle, error) {
	m.fetchCalls++
	if err, ok := m.candleErrs[symbolID]; ok {
		return nil, err
	}
	return m.candles[symbolID], nil
}

// stubDirectory is a scripted DirectoryClient.
type stubDirectory struct {
	listings []models.SymbolListing
	err      error
}

func (d *stubDirectory) GetDirectory(_ context.Context) ([]models.SymbolListing, error) {
	return d.listings, d.err
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func bar(start time.Time) models.Candle {
	return models.Candle{
		Start:  start,
		End:    start.AddDate(0, 0, 1),
		Low:    1, High: 3, Open: 2, Close: 2.5,
		Volume: 1000,
		VWAP:   2.2,
	}
}

func seedFundamentals(t *testing.T, store *memory.SymbolStore, refs ...models.SymbolRef) {
	t.Helper()
	for _, ref := range refs {
		require.NoError(t, store.AppendFundamentals(context.Background(), &models.FundamentalsSnapshot{
			InfoDate: day(2023, 6, 1),
			Symbol:   ref.Symbol,
			SymbolID: ref.SymbolID,
		}))
	}
}

func newTestService(candles *memory.CandleStore, symbols *memory.SymbolStore, market *stubMarket, dir *stubDirectory) *Service {
	return NewService(candles, symbols, market, dir, common.NewSilentLogger())
}

func TestResumeWatermark_DayAfterLatestBar(t *testing.T) {
	candles := memory.NewCandleStore()
	require.NoError(t, candles.Append(context.Background(), []models.Candle{
		bar(day(2023, 5, 30)),
		bar(day(2023, 6, 1)),
		bar(day(2023, 5, 31)),
	}))

	svc := newTestService(candles, memory.NewSymbolStore(), &stubMarket{}, &stubDirectory{})

	watermark, err := svc.ResumeWatermark(context.Background())
	require.NoError(t, err)
	assert.Equal(t, day(2023, 6, 2), watermark)
}

func TestResumeWatermark_EmptyTableRequiresExplicitStart(t *testing.T) {
	svc := newTestService(memory.NewCandleStore(), memory.NewSymbolStore(), &stubMarket{}, &stubDirectory{})

	_, err := svc.ResumeWatermark(context.Background())
	assert.ErrorIs(t, err, ErrNoWatermark)
}

func TestUpdateCandles_AlreadyUpToDate(t *testing.T) {
	today := day(2023, 6, 2)

	candles := memory.NewCandleStore()
	require.NoError(t, candles.Append(context.Background(), []models.Candle{bar(day(2023, 6, 1))}))

	market := &stubMarket{}
	svc := newTestService(candles, memory.NewSymbolStore(), market, &stubDirectory{})
	svc.now = func() time.Time { return today }

	// Resumed watermark (2023-06-02) equals today.
	_, err := svc.UpdateCandles(context.Background(), time.Time{})
	assert.ErrorIs(t, err, ErrAlreadyUpToDate)
	assert.Zero(t, market.fetchCalls, "up-to-date run must perform zero fetches")
}

func TestUpdateCandles_SkipsRateLimitedSymbolAndContinues(t *testing.T) {
	today := day(2023, 6, 9)
	watermark := day(2023, 6, 2)

	candles := memory.NewCandleStore()
	require.NoError(t, candles.Append(context.Background(), []models.Candle{bar(day(2023, 6, 1))}))

	symbols := memory.NewSymbolStore()
	seedFundamentals(t, symbols,
		models.SymbolRef{SymbolID: 1, Symbol: "BMO"},
		models.SymbolRef{SymbolID: 2, Symbol: "XYZ"},
	)

	var bars []models.Candle
	for i := 0; i < 5; i++ {
		bars = append(bars, bar(watermark.AddDate(0, 0, i)))
	}

	market := &stubMarket{
		candles:    map[int64][]models.Candle{1: bars},
		candleErrs: map[int64]error{2: &questrade.RateLimitError{Code: 1019, Message: "Rate limit exceeded"}},
	}

	svc := newTestService(candles, symbols, market, &stubDirectory{})
	svc.now = func() time.Time { return today }

	report, err := svc.UpdateCandles(context.Background(), time.Time{})
	require.NoError(t, err)

	assert.Equal(t, watermark, report.Start)
	assert.Equal(t, today, report.End)
	assert.Equal(t, 2, report.Symbols)
	assert.Equal(t, 5, report.RowsWritten)
	assert.Equal(t, 1, report.RateLimited)
	assert.Equal(t, 1, report.Skipped())
	assert.NotEmpty(t, report.RunID)

	var bmoRows, xyzRows int
	for _, c := range candles.Rows() {
		switch c.SymbolID {
		case 1:
			bmoRows++
			assert.Equal(t, "BMO", c.Symbol, "appended rows must be tagged with the universe symbol")
		case 2:
			xyzRows++
		}
	}
	assert.Equal(t, 5, bmoRows)
	assert.Zero(t, xyzRows, "rate-limited symbol contributes no rows")
}

func TestUpdateCandles_EmptyResultIsSkipNotError(t *testing.T) {
	candles := memory.NewCandleStore()
	symbols := memory.NewSymbolStore()
	seedFundamentals(t, symbols, models.SymbolRef{SymbolID: 7, Symbol: "THIN"})

	market := &stubMarket{candles: map[int64][]models.Candle{}}
	svc := newTestService(candles, symbols, market, &stubDirectory{})
	svc.now = func() time.Time { return day(2023, 6, 9) }

	report, err := svc.UpdateCandles(context.Background(), day(2023, 6, 2))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Empty)
	assert.Zero(t, report.RowsWritten)
}

func TestUpdateCandles_NonThrottleErrorAbortsRun(t *testing.T) {
	candles := memory.NewCandleStore()
	symbols := memory.NewSymbolStore()
	seedFundamentals(t, symbols,
		models.SymbolRef{SymbolID: 1, Symbol: "AAA"},
		models.SymbolRef{SymbolID: 2, Symbol: "BBB"},
	)

	market := &stubMarket{
		candleErrs: map[int64]error{1: errors.New("connection reset")},
	}
	svc := newTestService(candles, symbols, market, &stubDirectory{})
	svc.now = func() time.Time { return day(2023, 6, 9) }

	_, err := svc.UpdateCandles(context.Background(), day(2023, 6, 2))
	require.Error(t, err)
	assert.Equal(t, 1, market.fetchCalls, "run aborts on first non-throttle failure")
}

func TestUpdateCandles_ExplicitStartOverridesWatermark(t *testing.T) {
	candles := memory.NewCandleStore()
	symbols := memory.NewSymbolStore()
	seedFundamentals(t, symbols, models.SymbolRef{SymbolID: 1, Symbol: "BMO"})

	market := &stubMarket{candles: map[int64][]models.Candle{1: {bar(day(2020, 1, 2))}}}
	svc := newTestService(candles, symbols, market, &stubDirectory{})
	svc.now = func() time.Time { return day(2023, 6, 9) }

	report, err := svc.UpdateCandles(context.Background(), day(2020, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, day(2020, 1, 1), report.Start)
	assert.Equal(t, 1, report.RowsWritten)
}

func TestDeduplicate_IdempotentOnMemoryStore(t *testing.T) {
	candles := memory.NewCandleStore()

	dup := bar(day(2023, 6, 1))
	dup.Symbol = "BMO"
	dup.SymbolID = 1

	malformed := models.Candle{Start: day(2023, 6, 1), End: day(2023, 6, 1), Symbol: "BMO", SymbolID: 1}

	require.NoError(t, candles.Append(context.Background(), []models.Candle{dup, dup, dup, malformed}))

	svc := newTestService(candles, memory.NewSymbolStore(), &stubMarket{}, &stubDirectory{})

	first, err := svc.Deduplicate(context.Background())
	require.NoError(t, err)
	assert.True(t, first.Rebuilt)
	assert.Equal(t, 1, first.MalformedRows)
	assert.Equal(t, int64(2), first.DuplicateRows())
	require.Len(t, candles.Rows(), 1)

	rowsAfterFirst := candles.Rows()

	second, err := svc.Deduplicate(context.Background())
	require.NoError(t, err)
	assert.False(t, second.Rebuilt, "second pass reports no duplicates")
	assert.Zero(t, second.MalformedRows)
	assert.Equal(t, rowsAfterFirst, candles.Rows(), "second pass leaves the table row-for-row unchanged")
}

func TestRefreshSymbols_EnrichesResolvableListings(t *testing.T) {
	symbols := memory.NewSymbolStore()

	dir := &stubDirectory{listings: []models.SymbolListing{
		{CompanyName: "Bank of Montreal", Symbol: "BMO"},
		{CompanyName: "Ghost Corp", Symbol: "GHST"},
	}}

	market := &stubMarket{
		searches: map[string][]models.SymbolMatch{
			"BMO.TO": {{Symbol: "BMO.TO", SymbolID: 9292}},
			// GHST.TO resolves to nothing
		},
		infos: map[int64]*models.FundamentalsSnapshot{
			9292: {Symbol: "BMO.TO", SymbolID: 9292, EPS: 7.56},
		},
	}

	svc := newTestService(memory.NewCandleStore(), symbols, market, dir)
	svc.now = func() time.Time { return day(2023, 6, 9) }

	report, err := svc.RefreshSymbols(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Listed)
	assert.Equal(t, 1, report.Enriched)
	assert.Equal(t, 1, report.Unmatched)

	assert.Len(t, symbols.Directory(), 2)

	funds := symbols.Fundamentals()
	require.Len(t, funds, 1)
	assert.Equal(t, "BMO.TO", funds[0].Symbol)
	assert.Equal(t, day(2023, 6, 9), funds[0].InfoDate, "snapshot is stamped with the refresh date")
}
