package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/arbitrage-cli/internal/config"
	"github.com/sells-group/arbitrage-cli/internal/model"
	"github.com/sells-group/arbitrage-cli/internal/monitoring"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show item counts per status and dead letter depth",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, config.ModeReadOnly)
		if err != nil {
			return err
		}
		defer env.Close()

		snap, err := env.Collector().Collect(ctx)
		if err != nil {
			return err
		}
		formatStatus(os.Stdout, snap)

		if alert, _ := cmd.Flags().GetBool("alert"); alert {
			alerts := monitoring.NewAlerter(cfg.Monitoring).Evaluate(snap)
			for _, a := range alerts {
				fmt.Fprintf(os.Stdout, "ALERT [%s] %s\n", a.Severity, a.Message)
			}
		}
		return nil
	},
}

func formatStatus(out io.Writer, snap *monitoring.MetricsSnapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STATUS\tCOUNT")
	for _, s := range model.AllStatuses {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", s, snap.Items[s])
	}
	_, _ = fmt.Fprintf(w, "total\t%d\n", snap.ItemsTotal)
	_, _ = fmt.Fprintf(w, "dead_letters\t%d\n", snap.DLQDepth)
	_, _ = fmt.Fprintf(w, "failure_rate\t%.1f%%\n", snap.FailRate*100)

	names := make([]string, 0, len(snap.Breakers))
	for name := range snap.Breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, _ = fmt.Fprintf(w, "breaker:%s\t%s\n", name, snap.Breakers[name])
	}
	_ = w.Flush()
}

func init() {
	statusCmd.Flags().Bool("alert", false, "evaluate alert thresholds against the snapshot")
	rootCmd.AddCommand(statusCmd)
}
