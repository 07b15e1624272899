package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/arbitrage-cli/internal/config"
)

var processCmd = &cobra.Command{
	Use:   "process <item-id>",
	Short: "Run the discovery pipeline for one item synchronously",
	Long:  "Runs every stage for an existing item in this process, overwriting earlier results, and prints the final record.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, config.ModeProcess)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Driver.Process(ctx, args[0]); err != nil {
			return eris.Wrap(err, "process item")
		}

		it, err := env.Store.GetItem(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "process: reload item")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(it)
	},
}

func init() {
	rootCmd.AddCommand(processCmd)
}
