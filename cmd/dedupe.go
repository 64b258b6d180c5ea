package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	dedupeYear   int
	dedupeCommit bool
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Remove duplicate election participations for a year",
	Long:  "Reports (politician, election) pairs with more than one participation row. Rows are only deleted with --commit.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("dedupe"); err != nil {
			return err
		}

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Engine.Deduplicate(ctx, dedupeYear, !dedupeCommit)
		if err != nil {
			return eris.Wrap(err, "deduplicate")
		}

		zap.L().Info("dedupe complete",
			zap.Int("year", dedupeYear),
			zap.Bool("dry_run", report.DryRun),
			zap.Int("groups", report.DuplicateGroups),
			zap.Int("deleted", report.Deleted),
		)
		return printJSON(cmd.OutOrStdout(), report)
	},
}

func init() {
	dedupeCmd.Flags().IntVar(&dedupeYear, "year", 0, "election year (required)")
	dedupeCmd.Flags().BoolVar(&dedupeCommit, "commit", false, "delete duplicates instead of reporting them")
	_ = dedupeCmd.MarkFlagRequired("year")
	rootCmd.AddCommand(dedupeCmd)
}
