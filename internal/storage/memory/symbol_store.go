package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jfmartel/tsxdata/internal/interfaces"
	"github.com/jfmartel/tsxdata/internal/models"
	"github.com/jfmartel/tsxdata/internal/storage"
)

// SymbolStore is an in-memory implementation of interfaces.SymbolStore.
type SymbolStore struct {
	mu           sync.RWMutex
	directory    []models.SymbolListing
	snapshots    map[string][]models.SymbolListing // keyed by snapshot date
	fundamentals []models.FundamentalsSnapshot
}

// NewSymbolStore creates a new in-memory symbol store.
func NewSymbolStore() *SymbolStore {
	return &SymbolStore{
		snapshots: make(map[string][]models.SymbolListing),
	}
}

// Compile-time interface check.
var _ interfaces.SymbolStore = (*SymbolStore)(nil)

// ReplaceDirectory overwrites the directory and keeps a dated snapshot copy.
func (s *SymbolStore) ReplaceDirectory(_ context.Context, listings []models.SymbolListing, asOf time.Time) error {
	if len(listings) == 0 {
		return fmt.Errorf("replace directory: %w: empty listing set", storage.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.directory = append([]models.SymbolListing(nil), listings...)
	s.snapshots[asOf.Format("2006-01-02")] = append([]models.SymbolListing(nil), listings...)
	return nil
}

// ListUniverse returns the distinct (symbol_id, symbol) pairs from the
// stored fundamentals snapshots, ordered by symbol.
func (s *SymbolStore) ListUniverse(_ context.Context) ([]models.SymbolRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[int64]struct{})
	var universe []models.SymbolRef
	for _, f := range s.fundamentals {
		if _, ok := seen[f.SymbolID]; ok {
			continue
		}
		seen[f.SymbolID] = struct{}{}
		universe = append(universe, models.SymbolRef{SymbolID: f.SymbolID, Symbol: f.Symbol})
	}

	sort.Slice(universe, func(i, j int) bool { return universe[i].Symbol < universe[j].Symbol })
	return universe, nil
}

// AppendFundamentals appends one dated fundamentals snapshot.
func (s *SymbolStore) AppendFundamentals(_ context.Context, snap *models.FundamentalsSnapshot) error {
	if snap == nil || snap.Symbol == "" {
		return fmt.Errorf("append fundamentals: %w", storage.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fundamentals = append(s.fundamentals, *snap)
	return nil
}

// Directory returns a copy of the live directory rows.
func (s *SymbolStore) Directory() []models.SymbolListing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.SymbolListing(nil), s.directory...)
}

// Fundamentals returns a copy of all appended snapshots.
func (s *SymbolStore) Fundamentals() []models.FundamentalsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.FundamentalsSnapshot(nil), s.fundamentals...)
}
