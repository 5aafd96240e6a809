package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jfmartel/tsxdata/internal/app"
	"github.com/jfmartel/tsxdata/internal/services/ingest"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "tsxdata",
		Short:         "TSX market data pipeline: directory refresh, fundamentals, daily candles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to tsxdata.toml (defaults to TSXDATA_CONFIG, then binary dir)")

	cmd.AddCommand(
		newSymbolsCmd(&configPath),
		newCandlesCmd(&configPath),
		newDedupCmd(&configPath),
		newRefreshCmd(&configPath),
		newAuthCmd(&configPath),
	)

	return cmd
}

// runContext returns a context cancelled on SIGINT/SIGTERM.
func runContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newAuthCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Verify the configured Questrade refresh token",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := runContext()
			defer cancel()

			a, err := app.NewApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Authenticate(ctx); err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}

			fmt.Println("Authentication successful")
			return nil
		},
	}
}

func newSymbolsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "symbols",
		Short: "Refresh the listed-company directory and append fundamentals snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := runContext()
			defer cancel()

			a, err := app.NewApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Authenticate(ctx); err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}

			report, err := a.Ingest.RefreshSymbols(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Symbol refresh complete: %d listed, %d enriched, %d unmatched\n",
				report.Listed, report.Enriched, report.Unmatched)
			return nil
		},
	}
}

func newCandlesCmd(configPath *string) *cobra.Command {
	var startStr string

	cmd := &cobra.Command{
		Use:   "candles",
		Short: "Extend the daily candle series up to today",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := runContext()
			defer cancel()

			a, err := app.NewApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			var start time.Time
			if startStr != "" {
				start, err = time.Parse("2006-01-02", startStr)
				if err != nil {
					return fmt.Errorf("bad --start: %w", err)
				}
			}

			if err := a.Authenticate(ctx); err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}

			report, err := a.Ingest.UpdateCandles(ctx, start)
			if errors.Is(err, ingest.ErrNoWatermark) {
				// Empty table and no --start: fall back to the configured
				// backfill date before giving up.
				configured, ok := a.Config.Ingest.GetStartDate()
				if !ok {
					return fmt.Errorf("candle table is empty: pass --start YYYY-MM-DD or set ingest.start_date")
				}
				report, err = a.Ingest.UpdateCandles(ctx, configured)
			}
			if errors.Is(err, ingest.ErrAlreadyUpToDate) {
				fmt.Println("Candle series already up to date")
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Printf("Candle update complete: %d rows across %d symbols (%d rate limited, %d empty)\n",
				report.RowsWritten, report.Symbols, report.RateLimited, report.Empty)
			return nil
		},
	}

	cmd.Flags().StringVar(&startStr, "start", "", "explicit start date (YYYY-MM-DD), required on an empty table")

	return cmd
}

func newRefreshCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Full pipeline run: symbols, then candles, then dedup",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := runContext()
			defer cancel()

			a, err := app.NewApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Authenticate(ctx); err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}

			symReport, err := a.Ingest.RefreshSymbols(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Symbol refresh complete: %d listed, %d enriched, %d unmatched\n",
				symReport.Listed, symReport.Enriched, symReport.Unmatched)

			report, err := a.Ingest.UpdateCandles(ctx, time.Time{})
			if errors.Is(err, ingest.ErrNoWatermark) {
				// Empty table: fall back to the configured backfill date.
				start, ok := a.Config.Ingest.GetStartDate()
				if !ok {
					return fmt.Errorf("candle table is empty and ingest.start_date is not set")
				}
				report, err = a.Ingest.UpdateCandles(ctx, start)
			}
			switch {
			case errors.Is(err, ingest.ErrAlreadyUpToDate):
				fmt.Println("Candle series already up to date")
			case err != nil:
				return err
			default:
				fmt.Printf("Candle update complete: %d rows across %d symbols (%d rate limited, %d empty)\n",
					report.RowsWritten, report.Symbols, report.RateLimited, report.Empty)
			}

			dedup, err := a.Ingest.Deduplicate(ctx)
			if err != nil {
				return err
			}
			if dedup.Rebuilt {
				fmt.Printf("Dedup complete: %d malformed purged, %d duplicates collapsed\n",
					dedup.MalformedRows, dedup.DuplicateRows())
			} else {
				fmt.Printf("Dedup complete: no duplicates found (%d rows)\n", dedup.TotalRows)
			}
			return nil
		},
	}
}

func newDedupCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "dedup",
		Short: "Purge malformed candle rows and collapse duplicates",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := runContext()
			defer cancel()

			a, err := app.NewApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Ingest.Deduplicate(ctx)
			if err != nil {
				return err
			}

			if report.Rebuilt {
				fmt.Printf("Dedup complete: %d malformed purged, %d duplicates collapsed, %d rows remain\n",
					report.MalformedRows, report.DuplicateRows(), report.DistinctRows)
			} else {
				fmt.Printf("Dedup complete: %d malformed purged, no duplicates found (%d rows)\n",
					report.MalformedRows, report.TotalRows)
			}
			return nil
		},
	}
}
