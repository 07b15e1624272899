package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/arbitrage-cli/internal/model"
	"github.com/sells-group/arbitrage-cli/internal/sheet"
	"github.com/sells-group/arbitrage-cli/internal/store"
)

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Inspect discovered items",
}

// -- items list --

var itemsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List items",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		filter, err := itemFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		items, err := st.ListItems(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "items list")
		}
		if len(items) == 0 {
			fmt.Fprintln(os.Stderr, "No items found.")
			return nil
		}

		formatItemsList(os.Stdout, items)
		return nil
	},
}

// -- items show --

var itemsShowCmd = &cobra.Command{
	Use:   "show <item-id>",
	Short: "Show the full record of an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		it, err := st.GetItem(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "items show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(it)
	},
}

// -- items export --

var itemsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export items to CSV or XLSX",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		filter, err := itemFilterFromFlags(cmd)
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		items, err := st.ListItems(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "items export")
		}

		var w io.Writer = os.Stdout
		if out != "" {
			f, err := os.Create(out)
			if err != nil {
				return eris.Wrap(err, "items export: create file")
			}
			defer f.Close() //nolint:errcheck
			w = f
		}

		if err := exportItems(w, format, items); err != nil {
			return err
		}
		if out != "" {
			fmt.Fprintf(os.Stderr, "Exported %d items to %s\n", len(items), out)
		}
		return nil
	},
}

func exportItems(w io.Writer, format string, items []model.Item) error {
	switch strings.ToLower(format) {
	case "csv":
		return sheet.WriteCSV(w, items)
	case "xlsx":
		return sheet.WriteXLSX(w, items)
	default:
		return eris.Errorf("items export: unknown format %q (csv, xlsx)", format)
	}
}

func itemFilterFromFlags(cmd *cobra.Command) (store.ItemFilter, error) {
	status, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")

	filter := store.ItemFilter{Status: model.ItemStatus(status), Limit: limit, Offset: offset}
	if status != "" && !filter.Status.Valid() {
		return filter, eris.Errorf("unknown status %q", status)
	}
	return filter, nil
}

// formatItemsList writes a tabular list of items to out.
func formatItemsList(out io.Writer, items []model.Item) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tSCORE\tLOCATION\tMAX_BUY\tURL")
	for _, it := range items {
		score := "-"
		if it.Score != nil {
			score = fmt.Sprintf("%d", *it.Score)
		}
		loc := "-"
		if it.HasLocation() {
			loc = fmt.Sprintf("%.4f,%.4f", *it.Latitude, *it.Longitude)
		}
		maxBuy := "-"
		if it.Valuation != nil {
			maxBuy = fmt.Sprintf("$%.2f", it.Valuation.MaxBuyPrice)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", it.ID, it.Status, score, loc, maxBuy, it.SourceURL)
	}
	_ = w.Flush()
}

func init() {
	for _, c := range []*cobra.Command{itemsListCmd, itemsExportCmd} {
		c.Flags().String("status", "", "filter by status (pending, completed, failed_scraping, ...)")
		c.Flags().Int("offset", 0, "number of items to skip")
	}
	itemsListCmd.Flags().Int("limit", 50, "max number of items to display")
	itemsExportCmd.Flags().Int("limit", 10000, "max number of items to export")
	itemsExportCmd.Flags().String("format", "csv", "export format (csv, xlsx)")
	itemsExportCmd.Flags().String("out", "", "output file (default stdout)")

	itemsCmd.AddCommand(itemsListCmd)
	itemsCmd.AddCommand(itemsShowCmd)
	itemsCmd.AddCommand(itemsExportCmd)
	rootCmd.AddCommand(itemsCmd)
}
