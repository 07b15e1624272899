package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/arbitrage-cli/internal/config"
	"github.com/sells-group/arbitrage-cli/internal/queue"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a Temporal worker that processes discovery workflows",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, config.ModeWorker)
		if err != nil {
			return err
		}
		defer env.Close()

		c, err := queue.DialTemporal(cfg.Temporal)
		if err != nil {
			return err
		}
		defer c.Close()

		w := queue.NewWorker(c, cfg.Temporal.TaskQueue, env.Driver, cfg.Queue.Workers)
		if err := w.Start(); err != nil {
			return eris.Wrap(err, "start temporal worker")
		}
		zap.L().Info("temporal worker started",
			zap.String("task_queue", cfg.Temporal.TaskQueue),
			zap.Int("concurrency", cfg.Queue.Workers),
		)

		<-ctx.Done()
		w.Stop()
		zap.L().Info("temporal worker stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
