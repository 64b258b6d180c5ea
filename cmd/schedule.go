package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/internal/scheduler"
)

var (
	scheduleMode    string
	scheduleRegions []string
	scheduleType    string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Create research tasks for this week's regions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("schedule"); err != nil {
			return err
		}
		req, err := scheduleRequest()
		if err != nil {
			return err
		}

		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Scheduler.Run(cmd.Context(), req, time.Now().UTC())
		if err != nil {
			return eris.Wrap(err, "schedule run")
		}

		zap.L().Info("schedule complete",
			zap.String("mode", string(req.Mode)),
			zap.Int("created", len(res.Created)),
			zap.Int("skipped", len(res.Skipped)),
		)
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func scheduleRequest() (scheduler.Request, error) {
	req := scheduler.Request{
		Mode:     scheduler.Mode(scheduleMode),
		Regions:  scheduleRegions,
		TaskType: model.TaskType(scheduleType),
	}
	switch req.Mode {
	case scheduler.ModeWeekly, scheduler.ModeAll, scheduler.ModeManual:
		return req, nil
	}
	return req, eris.Errorf("unknown mode %q (weekly, all or manual)", scheduleMode)
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleMode, "mode", string(scheduler.ModeWeekly), "weekly, all or manual")
	scheduleCmd.Flags().StringSliceVar(&scheduleRegions, "regions", nil, "regions for manual mode (comma separated)")
	scheduleCmd.Flags().StringVar(&scheduleType, "type", string(model.TaskCandidateSearch), "task type to create")
	rootCmd.AddCommand(scheduleCmd)
}
