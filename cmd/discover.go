package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/arbitrage-cli/internal/config"
	"github.com/sells-group/arbitrage-cli/internal/model"
	"github.com/sells-group/arbitrage-cli/internal/queue"
	"github.com/sells-group/arbitrage-cli/internal/sheet"
	"github.com/sells-group/arbitrage-cli/internal/store"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Submit listing URLs for discovery",
	Long: "Creates one item per URL and dispatches it. With queue.driver=local the " +
		"pipeline runs in this process and the command waits for every item to finish; " +
		"with temporal the items are handed to the worker fleet.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		urls, _ := cmd.Flags().GetStringSlice("url")
		file, _ := cmd.Flags().GetString("file")
		if file != "" {
			fromFile, err := sheet.ReadURLs(file)
			if err != nil {
				return eris.Wrap(err, "discover: read urls")
			}
			urls = append(urls, fromFile...)
		}
		urls = dedupe(urls)
		if len(urls) == 0 {
			return eris.New("discover: provide --url or --file")
		}

		mode := config.ModeProcess
		if cfg.Queue.Driver == "temporal" {
			mode = config.ModeServe
		}
		env, err := initEnv(ctx, mode)
		if err != nil {
			return err
		}
		defer env.Close()

		d, err := startDispatcher(ctx, env, len(urls))
		if err != nil {
			return err
		}
		defer d.Close()

		submitted := submitAll(ctx, env.Store, d, urls)

		if err := d.Wait(ctx); err != nil {
			return err
		}

		refreshStatuses(ctx, env.Store, submitted)
		formatSubmissions(os.Stdout, submitted)
		return nil
	},
}

// submission is the outcome of submitting one URL.
type submission struct {
	URL    string
	ItemID string
	Status model.ItemStatus
	Err    error
}

func submitAll(ctx context.Context, st store.Store, d queue.Dispatcher, urls []string) []submission {
	out := make([]submission, 0, len(urls))
	for _, u := range urls {
		s := submission{URL: u}
		if err := validateListingURL(u); err != nil {
			s.Err = err
			out = append(out, s)
			continue
		}

		it, err := st.CreateItem(ctx, u)
		if err != nil {
			s.Err = eris.Wrap(err, "create item")
			out = append(out, s)
			continue
		}
		s.ItemID = it.ID
		s.Status = it.Status

		if err := d.Enqueue(ctx, it.ID); err != nil {
			s.Err = eris.Wrap(err, "enqueue")
			zap.L().Warn("discover: enqueue failed", zap.String("item_id", it.ID), zap.Error(err))
		}
		out = append(out, s)
	}
	return out
}

func refreshStatuses(ctx context.Context, st store.ItemReader, subs []submission) {
	for i := range subs {
		if subs[i].ItemID == "" {
			continue
		}
		it, err := st.GetItem(ctx, subs[i].ItemID)
		if err != nil {
			continue
		}
		subs[i].Status = it.Status
	}
}

func formatSubmissions(out io.Writer, subs []submission) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "URL\tITEM_ID\tSTATUS\tERROR")
	for _, s := range subs {
		errMsg := ""
		if s.Err != nil {
			errMsg = s.Err.Error()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.URL, s.ItemID, s.Status, errMsg)
	}
	_ = w.Flush()
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func init() {
	discoverCmd.Flags().StringSlice("url", nil, "listing URL (repeatable)")
	discoverCmd.Flags().String("file", "", "CSV, XLSX or text file of listing URLs")
	rootCmd.AddCommand(discoverCmd)
}
