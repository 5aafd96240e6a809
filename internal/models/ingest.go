package models

import "time"

// IngestReport summarizes one incremental candle update run.
type IngestReport struct {
	RunID       string    `json:"run_id"`
	Start       time.Time `json:"start"` // inclusive window start (watermark)
	End         time.Time `json:"end"`   // inclusive window end (today)
	Symbols     int       `json:"symbols"`
	RowsWritten int       `json:"rows_written"`
	RateLimited int       `json:"rate_limited"` // symbols skipped on throttle
	Empty       int       `json:"empty"`        // symbols with no data in range
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Skipped returns the number of universe symbols that contributed no rows.
func (r *IngestReport) Skipped() int {
	return r.RateLimited + r.Empty
}

// DedupReport summarizes one deduplication pass over the candle table.
type DedupReport struct {
	RunID         string `json:"run_id"`
	Table         string `json:"table"`
	MalformedRows int    `json:"malformed_rows"` // purged start == end rows
	TotalRows     int64  `json:"total_rows"`     // after malformed purge
	DistinctRows  int64  `json:"distinct_rows"`
	Rebuilt       bool   `json:"rebuilt"` // false when no duplicates found
}

// DuplicateRows returns how many rows the rebuild removed.
func (r *DedupReport) DuplicateRows() int64 {
	if !r.Rebuilt {
		return 0
	}
	return r.TotalRows - r.DistinctRows
}

// SymbolRefreshReport summarizes one symbol-universe refresh run.
type SymbolRefreshReport struct {
	RunID      string    `json:"run_id"`
	Listed     int       `json:"listed"`    // directory rows written
	Enriched   int       `json:"enriched"`  // fundamentals snapshots appended
	Unmatched  int       `json:"unmatched"` // directory symbols with no search match
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
