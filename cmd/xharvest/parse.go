package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"xharvest/internal/cmdlog"
	"xharvest/internal/extract"
	"xharvest/internal/model"
	"xharvest/internal/store/table"
)

func parseCmd() *cobra.Command {
	var resultPath string
	var noHeader bool
	cmd := &cobra.Command{
		Use:   "parse <response.json>...",
		Short: "Extract records from saved response bodies and print them as CSV",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdlog.Run("parse", func() error {
				recs := make([]model.PostRecord, 0, len(args))
				for _, path := range args {
					rec, err := parseFile(path, resultPath)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					recs = append(recs, rec)
				}
				return table.Store{}.WriteTo(cmd.OutOrStdout(), recs, !noHeader)
			})
		},
	}
	cmd.Flags().StringVar(&resultPath, "result-path", "data.tweetResult.result", "path of the post result in the body; empty if the file holds the result itself")
	cmd.Flags().BoolVar(&noHeader, "no-header", false, "omit the header row")
	return cmd
}

func parseFile(path, resultPath string) (model.PostRecord, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return model.PostRecord{}, err
	}
	if resultPath != "" {
		res := gjson.GetBytes(b, resultPath)
		if !res.Exists() {
			return model.PostRecord{}, fmt.Errorf("%w: %s not found", extract.ErrMalformedPayload, resultPath)
		}
		b = []byte(res.Raw)
	}
	return extract.Extract(b)
}
