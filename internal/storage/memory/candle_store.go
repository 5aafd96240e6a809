// Package memory provides in-memory store implementations used by tests and
// local development runs.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jfmartel/tsxdata/internal/interfaces"
	"github.com/jfmartel/tsxdata/internal/models"
)

// CandleStore is an in-memory implementation of interfaces.CandleStore with
// the same append/dedup semantics as the Postgres store.
type CandleStore struct {
	mu     sync.RWMutex
	rows   []models.Candle
	backup []models.Candle
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{}
}

// Compile-time interface check.
var _ interfaces.CandleStore = (*CandleStore)(nil)

type candleKey struct {
	start    time.Time
	symbol   string
	symbolID int64
}

// Append adds a batch of candles.
func (s *CandleStore) Append(_ context.Context, candles []models.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, candles...)
	return nil
}

// MaxStart returns the latest stored bar start.
func (s *CandleStore) MaxStart(_ context.Context) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.rows) == 0 {
		return time.Time{}, false, nil
	}

	latest := s.rows[0].Start
	for _, c := range s.rows[1:] {
		if c.Start.After(latest) {
			latest = c.Start
		}
	}
	return latest, true, nil
}

// Deduplicate purges start == end rows and collapses duplicate
// (start, symbol, symbol_id) keys, keeping the previous rows as a backup.
func (s *CandleStore) Deduplicate(_ context.Context) (*models.DedupReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := &models.DedupReport{Table: "memory"}

	kept := s.rows[:0:0]
	for _, c := range s.rows {
		if c.Start.Equal(c.End) {
			report.MalformedRows++
			continue
		}
		kept = append(kept, c)
	}
	s.rows = kept

	seen := make(map[candleKey]struct{}, len(s.rows))
	for _, c := range s.rows {
		seen[candleKey{c.Start, c.Symbol, c.SymbolID}] = struct{}{}
	}

	report.TotalRows = int64(len(s.rows))
	report.DistinctRows = int64(len(seen))
	if report.TotalRows == report.DistinctRows {
		return report, nil
	}

	s.backup = append([]models.Candle(nil), s.rows...)

	distinct := make([]models.Candle, 0, len(seen))
	taken := make(map[candleKey]struct{}, len(seen))
	for _, c := range s.rows {
		key := candleKey{c.Start, c.Symbol, c.SymbolID}
		if _, dup := taken[key]; dup {
			continue
		}
		taken[key] = struct{}{}
		distinct = append(distinct, c)
	}
	s.rows = distinct
	report.Rebuilt = true

	return report, nil
}

// Rows returns a copy of the live rows.
func (s *CandleStore) Rows() []models.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Candle(nil), s.rows...)
}

// BackupRows returns a copy of the rows preserved by the last rebuild.
func (s *CandleStore) BackupRows() []models.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Candle(nil), s.backup...)
}
