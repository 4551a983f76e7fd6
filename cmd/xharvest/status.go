package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"xharvest/internal/cmdlog"
	"xharvest/internal/store/ledger"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show lookup states and the last run recorded in the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Storage.LedgerPath == "" {
				return fmt.Errorf("storage.ledgerPath is not set")
			}
			return cmdlog.Run("status", func() error {
				db, err := ledger.Open(cfg.Storage.LedgerPath)
				if err != nil {
					return err
				}
				defer db.Close()
				ctx := cmd.Context()

				counts, err := db.CountByState(ctx)
				if err != nil {
					return err
				}
				states := make([]string, 0, len(counts))
				for s := range counts {
					states = append(states, s)
				}
				sort.Strings(states)

				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.SetTitle("Lookups")
				tw.AppendHeader(table.Row{"State", "Count"})
				total := 0
				for _, s := range states {
					tw.AppendRow(table.Row{s, counts[s]})
					total += counts[s]
				}
				tw.AppendFooter(table.Row{"total", total})
				tw.Render()

				run, err := db.LastRun(ctx)
				if err != nil {
					fmt.Println("No runs recorded.")
					return nil
				}
				rt := table.NewWriter()
				rt.SetOutputMirror(os.Stdout)
				rt.SetTitle("Last run")
				rt.AppendHeader(table.Row{"Run", "Input", "Started", "Finished", "Total", "Succeeded", "Failed", "Recovered"})
				finished := "-"
				if !run.FinishedAt.IsZero() {
					finished = run.FinishedAt.Format(time.RFC3339)
				}
				rt.AppendRow(table.Row{run.ID, run.Input, run.StartedAt.Format(time.RFC3339), finished, run.Total, run.Succeeded, run.Failed, run.Recovered})
				rt.Render()
				return nil
			})
		},
	}
}
