package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/monitoring"
)

var healthAlert bool

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Print a task ledger and AI spend snapshot",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("health"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		lookback := cfg.Monitoring.LookbackWindowHours
		if lookback <= 0 {
			lookback = 24
		}
		snap, err := monitoring.NewCollector(st).Collect(ctx, lookback, cfg.Monitoring.StaleTaskHours)
		if err != nil {
			return err
		}

		alerter := monitoring.NewAlerter(cfg.Monitoring)
		alerts := alerter.Evaluate(snap)
		if healthAlert {
			sent := alerter.SendAlerts(ctx, alerts)
			zap.L().Info("health alerts sent", zap.Int("triggered", len(alerts)), zap.Int("sent", sent))
		}

		return printJSON(cmd.OutOrStdout(), struct {
			*monitoring.Snapshot
			Alerts []monitoring.Alert `json:"alerts"`
		}{snap, alerts})
	},
}

func init() {
	healthCmd.Flags().BoolVar(&healthAlert, "alert", false, "deliver triggered alerts to the monitoring webhook")
	rootCmd.AddCommand(healthCmd)
}
