package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/boazzati/AFH-Platform-sub001/internal/model"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger <cadence>",
	Short: "Run one collection for a cadence now and print the run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initCollector(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Orchestrator.StartManual(ctx); err != nil {
			return eris.Wrap(err, "start orchestrator")
		}
		run, trigErr := env.Orchestrator.TriggerCollection(ctx, args[0])
		if err := shutdown(ctx, env.Orchestrator); err != nil {
			zap.L().Warn("trigger: stop orchestrator", zap.Error(err))
		}
		if trigErr != nil {
			return trigErr
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(run); err != nil {
			return eris.Wrap(err, "trigger: encode run")
		}
		if run.Status == model.RunStatusFailed {
			return eris.Errorf("run %s failed: %s", run.ID, run.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(triggerCmd)
}
