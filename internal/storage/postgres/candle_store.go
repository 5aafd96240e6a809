package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jfmartel/tsxdata/internal/interfaces"
	"github.com/jfmartel/tsxdata/internal/models"
)

// candleColumns is the fixed column contract of the candle series table,
// in persisted order. "start", "end" and "VWAP" require quoting.
var candleColumns = []string{"start", "end", "low", "high", "open", "close", "volume", "VWAP", "symbol_id", "symbol"}

const quotedCandleColumns = `"start", "end", "low", "high", "open", "close", "volume", "VWAP", "symbol_id", "symbol"`

// CandleStore implements interfaces.CandleStore using PostgreSQL.
type CandleStore struct {
	pool  *Pool
	table string
}

// NewCandleStore creates a candle store over the named series table.
func NewCandleStore(pool *Pool, table string) *CandleStore {
	return &CandleStore{pool: pool, table: table}
}

// Compile-time interface check.
var _ interfaces.CandleStore = (*CandleStore)(nil)

// BackupTable returns the name the previous contents are kept under after a
// dedup rebuild. The slot is overwritten on each rebuild.
func (s *CandleStore) BackupTable() string {
	return "backup_" + s.table
}

// Append bulk-writes a batch of candles via COPY.
func (s *CandleStore) Append(ctx context.Context, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{s.table},
		candleColumns,
		pgx.CopyFromSlice(len(candles), func(i int) ([]interface{}, error) {
			c := candles[i]
			return []interface{}{
				c.Start, c.End, c.Low, c.High, c.Open, c.Close,
				c.Volume, c.VWAP, c.SymbolID, c.Symbol,
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("append candles: %w", err)
	}
	return nil
}

// MaxStart returns the latest stored bar start, or ok == false when the
// table holds no rows.
func (s *CandleStore) MaxStart(ctx context.Context) (time.Time, bool, error) {
	query := fmt.Sprintf(`SELECT MAX("start") FROM %s`, pgx.Identifier{s.table}.Sanitize())

	var latest *time.Time
	if err := s.pool.QueryRow(ctx, query).Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("max start: %w", err)
	}
	if latest == nil {
		return time.Time{}, false, nil
	}
	return *latest, true, nil
}

// Deduplicate purges malformed rows (start == end) and rebuilds the table
// from its distinct (start, symbol, symbol_id) rows when duplicates exist.
// The previous contents survive under the backup name; the prior backup is
// dropped. Everything runs in one transaction. Postgres supports DDL in
// transactions, so the live table can never be lost to a mid-rebuild crash.
func (s *CandleStore) Deduplicate(ctx context.Context) (*models.DedupReport, error) {
	live := pgx.Identifier{s.table}.Sanitize()
	backup := pgx.Identifier{s.BackupTable()}.Sanitize()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin dedup: %w", err)
	}
	defer tx.Rollback(ctx)

	purged, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE "start" = "end"`, live))
	if err != nil {
		return nil, fmt.Errorf("purge malformed rows: %w", err)
	}

	report := &models.DedupReport{
		Table:         s.table,
		MalformedRows: int(purged.RowsAffected()),
	}

	row := tx.QueryRow(ctx, fmt.Sprintf(
		`SELECT COUNT(DISTINCT ("start", "symbol", "symbol_id")), COUNT(*) FROM %s`, live))
	if err := row.Scan(&report.DistinctRows, &report.TotalRows); err != nil {
		return nil, fmt.Errorf("count rows: %w", err)
	}

	if report.TotalRows == report.DistinctRows {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit dedup: %w", err)
		}
		return report, nil
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, backup)); err != nil {
		return nil, fmt.Errorf("drop previous backup: %w", err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`, live, backup)); err != nil {
		return nil, fmt.Errorf("rename live table to backup: %w", err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE %s AS SELECT DISTINCT %s FROM %s`, live, quotedCandleColumns, backup)); err != nil {
		return nil, fmt.Errorf("rebuild distinct table: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit dedup: %w", err)
	}

	report.Rebuilt = true
	return report, nil
}
