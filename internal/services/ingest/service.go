// Package ingest drives incremental candle ingestion and deduplication.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jfmartel/tsxdata/internal/clients/questrade"
	"github.com/jfmartel/tsxdata/internal/common"
	"github.com/jfmartel/tsxdata/internal/interfaces"
	"github.com/jfmartel/tsxdata/internal/models"
)

var (
	// ErrNoWatermark is returned when the candle table is empty and no
	// explicit start date was supplied. Backfilling from scratch is a
	// deliberate mode, never an implicit default.
	ErrNoWatermark = errors.New("candle table is empty: an explicit start date is required")

	// ErrAlreadyUpToDate is returned when the resume watermark has reached
	// today. It is an outcome, not a failure; callers log and move on.
	ErrAlreadyUpToDate = errors.New("candle series already up to date")
)

// Service coordinates per-symbol candle retrieval across the symbol
// universe, resuming from the last persisted bar, and runs the post-ingestion
// deduplication pass. Work is sequential and per-symbol; a throttled or
// empty symbol is skipped, any other fetch failure aborts the run.
type Service struct {
	candles   interfaces.CandleStore
	symbols   interfaces.SymbolStore
	market    interfaces.MarketDataClient
	directory interfaces.DirectoryClient
	logger    *common.Logger
	now       func() time.Time
}

// NewService creates a new ingestion service
func NewService(
	candles interfaces.CandleStore,
	symbols interfaces.SymbolStore,
	market interfaces.MarketDataClient,
	directory interfaces.DirectoryClient,
	logger *common.Logger,
) *Service {
	return &Service{
		candles:   candles,
		symbols:   symbols,
		market:    market,
		directory: directory,
		logger:    logger,
		now:       time.Now,
	}
}

// dateOnly truncates an instant to its UTC calendar date.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ResumeWatermark computes the next date to fetch: one day past the latest
// stored bar start. Returns ErrNoWatermark on an empty table.
func (s *Service) ResumeWatermark(ctx context.Context) (time.Time, error) {
	latest, ok, err := s.candles.MaxStart(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("resume watermark: %w", err)
	}
	if !ok {
		return time.Time{}, ErrNoWatermark
	}
	return dateOnly(latest).AddDate(0, 0, 1), nil
}

// UpdateCandles fetches daily candles for every universe symbol over
// [watermark, today] and appends them in one batch per symbol. A zero
// explicitStart resumes from the stored watermark.
func (s *Service) UpdateCandles(ctx context.Context, explicitStart time.Time) (*models.IngestReport, error) {
	today := dateOnly(s.now())

	var watermark time.Time
	if !explicitStart.IsZero() {
		watermark = dateOnly(explicitStart)
	} else {
		var err error
		watermark, err = s.ResumeWatermark(ctx)
		if err != nil {
			return nil, err
		}
	}

	if !watermark.Before(today) {
		return nil, ErrAlreadyUpToDate
	}

	universe, err := s.symbols.ListUniverse(ctx)
	if err != nil {
		return nil, fmt.Errorf("load symbol universe: %w", err)
	}

	report := &models.IngestReport{
		RunID:     uuid.NewString(),
		Start:     watermark,
		End:       today,
		Symbols:   len(universe),
		StartedAt: s.now(),
	}

	s.logger.Info().
		Str("run_id", report.RunID).
		Str("from", watermark.Format("2006-01-02")).
		Str("to", today.Format("2006-01-02")).
		Int("symbols", len(universe)).
		Msg("Updating candle series")

	for _, ref := range universe {
		s.logger.Debug().Str("symbol", ref.Symbol).Msg("Extracting candles")

		candles, err := s.market.GetDailyCandles(ctx, ref.SymbolID, watermark, today)

		var rateLimited *questrade.RateLimitError
		if errors.As(err, &rateLimited) {
			s.logger.Warn().Str("symbol", ref.Symbol).Int("code", rateLimited.Code).Msg("Rate limited, skipping symbol")
			report.RateLimited++
			continue
		}
		if err != nil {
			return report, fmt.Errorf("fetch candles for %s: %w", ref.Symbol, err)
		}
		if len(candles) == 0 {
			s.logger.Debug().Str("symbol", ref.Symbol).Msg("No candles in range, skipping symbol")
			report.Empty++
			continue
		}

		for i := range candles {
			candles[i].SymbolID = ref.SymbolID
			candles[i].Symbol = ref.Symbol
		}

		if err := s.candles.Append(ctx, candles); err != nil {
			return report, fmt.Errorf("append candles for %s: %w", ref.Symbol, err)
		}
		report.RowsWritten += len(candles)
	}

	report.FinishedAt = s.now()

	s.logger.Info().
		Str("run_id", report.RunID).
		Int("rows", report.RowsWritten).
		Int("rate_limited", report.RateLimited).
		Int("empty", report.Empty).
		Msg("Candle update successful")

	return report, nil
}

// Deduplicate runs the dedup pass over the candle table.
func (s *Service) Deduplicate(ctx context.Context) (*models.DedupReport, error) {
	report, err := s.candles.Deduplicate(ctx)
	if err != nil {
		return nil, fmt.Errorf("deduplicate candles: %w", err)
	}
	report.RunID = uuid.NewString()

	if report.Rebuilt {
		s.logger.Info().
			Str("run_id", report.RunID).
			Int64("removed", report.DuplicateRows()).
			Int("malformed", report.MalformedRows).
			Msg("Removed duplicate candle rows")
	} else {
		s.logger.Info().
			Str("run_id", report.RunID).
			Int("malformed", report.MalformedRows).
			Msg("No duplicate candle rows")
	}

	return report, nil
}

// RefreshSymbols replaces the listed-company directory and appends a dated
// fundamentals snapshot for every directory symbol resolvable through the
// search endpoint. Unresolvable symbols are skipped, not fatal.
func (s *Service) RefreshSymbols(ctx context.Context) (*models.SymbolRefreshReport, error) {
	asOf := dateOnly(s.now())

	listings, err := s.directory.GetDirectory(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch company directory: %w", err)
	}

	if err := s.symbols.ReplaceDirectory(ctx, listings, asOf); err != nil {
		return nil, fmt.Errorf("replace directory: %w", err)
	}

	report := &models.SymbolRefreshReport{
		RunID:     uuid.NewString(),
		Listed:    len(listings),
		StartedAt: s.now(),
	}

	s.logger.Info().Str("run_id", report.RunID).Int("listings", len(listings)).Msg("Refreshing symbol fundamentals")

	for _, listing := range listings {
		// Questrade lists TSX tickers with a .TO suffix.
		matches, err := s.market.SearchSymbols(ctx, listing.Symbol+".TO")
		if err != nil {
			return report, fmt.Errorf("search symbol %s: %w", listing.Symbol, err)
		}
		if len(matches) == 0 {
			report.Unmatched++
			continue
		}

		snap, err := s.market.GetSymbolInfo(ctx, matches[0].SymbolID)
		if err != nil {
			return report, fmt.Errorf("symbol info for %s: %w", listing.Symbol, err)
		}
		snap.InfoDate = asOf

		if err := s.symbols.AppendFundamentals(ctx, snap); err != nil {
			return report, fmt.Errorf("append fundamentals for %s: %w", listing.Symbol, err)
		}
		report.Enriched++
	}

	report.FinishedAt = s.now()

	s.logger.Info().
		Str("run_id", report.RunID).
		Int("enriched", report.Enriched).
		Int("unmatched", report.Unmatched).
		Msg("Symbol refresh successful")

	return report, nil
}
