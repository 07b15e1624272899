package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/arbitrage-cli/internal/config"
	"github.com/sells-group/arbitrage-cli/internal/queue"
	"github.com/sells-group/arbitrage-cli/internal/resilience"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and replay dead-lettered items",
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered items",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		errType, _ := cmd.Flags().GetString("error-type")
		limit, _ := cmd.Flags().GetInt("limit")

		entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{ErrorType: errType, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "dlq list")
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "Dead letter queue is empty.")
			return nil
		}

		formatDLQList(os.Stdout, entries)
		return nil
	},
}

var dlqRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-dispatch dead-lettered items",
	Long:  "Enqueues dead-lettered items again. With queue.driver=local they are processed in this process before the command exits.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		errType, _ := cmd.Flags().GetString("error-type")
		limit, _ := cmd.Flags().GetInt("limit")
		all, _ := cmd.Flags().GetBool("all")

		mode := config.ModeProcess
		if cfg.Queue.Driver == "temporal" {
			mode = config.ModeServe
		}
		env, err := initEnv(ctx, mode)
		if err != nil {
			return err
		}
		defer env.Close()

		d, err := startDispatcher(ctx, env, limit)
		if err != nil {
			return err
		}
		defer d.Close()

		res, err := queue.Replay(ctx, env.Store, d, resilience.DLQFilter{
			ErrorType: errType,
			Due:       !all,
			Limit:     limit,
		})
		if err != nil {
			return err
		}
		if err := d.Wait(ctx); err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "Replayed %d item(s), %d failed to enqueue.\n", res.Replayed, res.Failed)
		return nil
	},
}

func formatDLQList(out io.Writer, entries []resilience.DLQEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tITEM_ID\tTYPE\tRETRIES\tNEXT_RETRY\tERROR")
	for _, e := range entries {
		msg := e.Error
		if len(msg) > 60 {
			msg = msg[:57] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			e.ID, e.ItemID, e.ErrorType, e.RetryCount, e.MaxRetries,
			e.NextRetryAt.Format(time.RFC3339), msg)
	}
	_ = w.Flush()
}

func init() {
	for _, c := range []*cobra.Command{dlqListCmd, dlqRetryCmd} {
		c.Flags().String("error-type", "", "filter by error type (transient, permanent)")
		c.Flags().Int("limit", 100, "max number of entries")
	}
	dlqRetryCmd.Flags().Bool("all", false, "replay entries whose next retry time has not passed yet")

	dlqCmd.AddCommand(dlqListCmd)
	dlqCmd.AddCommand(dlqRetryCmd)
	rootCmd.AddCommand(dlqCmd)
}
