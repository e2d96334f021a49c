package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the collection scheduler until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initCollector(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Orchestrator.Start(ctx); err != nil {
			return eris.Wrap(err, "start orchestrator")
		}

		<-ctx.Done()
		zap.L().Info("shutdown signal received")
		return shutdown(ctx, env.Orchestrator)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
