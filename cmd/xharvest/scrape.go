package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"xharvest/internal/capture"
	"xharvest/internal/cmdlog"
	"xharvest/internal/config"
	"xharvest/internal/extract"
	"xharvest/internal/harvest"
	"xharvest/internal/logging"
	"xharvest/internal/store/ledger"
	"xharvest/internal/store/table"
)

func scrapeCmd() *cobra.Command {
	var input, column string
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Look up every id of the input table, then retry the failures once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if input != "" {
				cfg.Input.Path = input
			}
			if column != "" {
				cfg.Input.IDColumn = column
			}
			return cmdlog.Run("scrape", func() error { return runScrape(cmd.Context(), cfg) })
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "input table (overrides input.path)")
	cmd.Flags().StringVar(&column, "column", "", "id column (overrides input.idColumn)")
	return cmd
}

func retryCmd() *cobra.Command {
	var failures string
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Run only the retry pass over an existing failure log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if failures == "" {
				failures = cfg.Output.Failures
			}
			return cmdlog.Run("retry", func() error { return runRetry(cmd.Context(), cfg, failures) })
		},
	}
	cmd.Flags().StringVar(&failures, "failures", "", "failure log to retry (defaults to output.failures)")
	return cmd
}

func runScrape(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	store := table.Store{}
	ids, err := store.ReadIDs(cfg.Input.Path, cfg.Input.IDColumn)
	if err != nil {
		return err
	}
	logging.Info("scrape_start", map[string]any{"input": cfg.Input.Path, "ids": len(ids)})

	db, closeDB, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	var runID int64
	if db != nil {
		if runID, err = db.BeginRun(ctx, cfg.Input.Path, len(ids)); err != nil {
			logging.Warn("ledger_run_begin_failed", map[string]any{"error": err.Error()})
		}
	}
	sum, err := newHarvester(cfg, store, db).Run(ctx, ids)
	if db != nil && runID != 0 {
		if ferr := db.FinishRun(ctx, runID, sum.Succeeded, sum.Failed, sum.Recovered); ferr != nil {
			logging.Warn("ledger_run_finish_failed", map[string]any{"error": ferr.Error()})
		}
	}
	report(sum)
	return err
}

func runRetry(ctx context.Context, cfg config.Config, failures string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	store := table.Store{}
	ids, err := store.ReadFailureIDs(failures)
	if err != nil {
		return err
	}
	db, closeDB, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer closeDB()
	sum, err := newHarvester(cfg, store, db).RetryOnly(ctx, ids)
	report(sum)
	return err
}

func newHarvester(cfg config.Config, store table.Store, db *ledger.DB) *harvest.Harvester {
	browser := &capture.Chrome{
		Headless:        cfg.Capture.Headless,
		NoSandbox:       cfg.Capture.NoSandbox,
		NavigateTimeout: cfg.Capture.NavigateTimeout,
		Width:           cfg.Capture.ViewportW,
		Height:          cfg.Capture.ViewportH,
		ExecPath:        cfg.Capture.ChromePath,
		UserAgent:       cfg.Capture.UserAgent,
		Linger:          cfg.Capture.Linger,
	}
	capturer := capture.New(browser, capture.Options{
		SiteRoot:    cfg.Site.Root,
		StatusPath:  cfg.Site.StatusPath,
		Endpoint:    cfg.Capture.Endpoint,
		ResultPath:  cfg.Capture.ResultPath,
		Selector:    cfg.Capture.Selector,
		ContentWait: cfg.Capture.ContentWait,
	})
	opts := []harvest.Option{harvest.WithMinInterval(cfg.Capture.MinInterval)}
	if db != nil {
		opts = append(opts, harvest.WithLedger(db))
	}
	out := harvest.Outputs{
		Records:      cfg.Output.Records,
		Failures:     cfg.Output.Failures,
		RetryRecords: cfg.Output.RetryRecords,
	}
	return harvest.New(capturer, extract.Extract, store, out, opts...)
}

// openLedger opens the configured ledger; an empty path disables it.
func openLedger(cfg config.Config) (*ledger.DB, func(), error) {
	if cfg.Storage.LedgerPath == "" {
		return nil, func() {}, nil
	}
	db, err := ledger.Open(cfg.Storage.LedgerPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open ledger: %w", err)
	}
	return db, func() { _ = db.Close() }, nil
}

func report(sum harvest.Summary) {
	fmt.Printf("total=%d succeeded=%d failed=%d recovered=%d abandoned=%d\n",
		sum.Total, sum.Succeeded, sum.Failed, sum.Recovered, sum.Abandoned())
}
