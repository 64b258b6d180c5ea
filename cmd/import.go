package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/fetcher"
	"github.com/sells-group/policy-tracker/internal/ingest"
)

var (
	importYear     int
	importPosition string
	importSource   string
)

var importCmd = &cobra.Command{
	Use:   "import <file|url>",
	Short: "Import official election results from a spreadsheet",
	Long:  "Reads an .xlsx results workbook from a local path, an http(s) URL or an ftp URL and records every candidate row against the election of --year.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("import"); err != nil {
			return err
		}

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		path, cleanup, err := env.Fetcher.OpenSource(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "open source")
		}
		defer cleanup()

		rows, err := fetcher.ReadElectionResults(path)
		if err != nil {
			return eris.Wrap(err, "read results")
		}
		zap.L().Info("results parsed", zap.String("source", args[0]), zap.Int("rows", len(rows)))

		report, err := env.Engine.BatchImport(ctx, ingest.BatchRequest{
			ElectionYear: importYear,
			ElectionType: importPosition,
			DataSource:   importSource,
			Candidates:   rows,
		})
		if err != nil {
			return eris.Wrap(err, "batch import")
		}

		zap.L().Info("import complete",
			zap.Int("success", report.Success),
			zap.Int("failed", report.Failed),
			zap.Int("skipped", report.Skipped),
		)
		return printJSON(cmd.OutOrStdout(), report)
	},
}

func init() {
	importCmd.Flags().IntVar(&importYear, "year", 0, "election year (required)")
	importCmd.Flags().StringVar(&importPosition, "position", "縣市長", "election type of the sheet")
	importCmd.Flags().StringVar(&importSource, "source", "中選會", "data source label")
	_ = importCmd.MarkFlagRequired("year")
	rootCmd.AddCommand(importCmd)
}
