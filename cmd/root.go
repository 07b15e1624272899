package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/arbitrage-cli/internal/config"
)

var cfg *config.Config

// Persistent overrides applied on top of config file and environment.
var (
	flagLogLevel    string
	flagStoreDriver string
	flagDatabaseURL string
)

var rootCmd = &cobra.Command{
	Use:   "arbitrage-cli",
	Short: "Silver listing discovery pipeline",
	Long: "Scrapes marketplace listings, scores them with Claude, geocodes pickup addresses, " +
		"inspects photos for hallmarks and values the silver content against spot price.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		applyOverrides(c)
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		zap.L().Debug("config loaded",
			zap.String("command", cmd.CommandPath()),
			zap.String("store", cfg.Store.Driver),
			zap.String("queue", cfg.Queue.Driver),
		)
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = zap.L().Sync()
	},
}

func applyOverrides(c *config.Config) {
	if flagLogLevel != "" {
		c.Log.Level = flagLogLevel
	}
	if flagStoreDriver != "" {
		c.Store.Driver = flagStoreDriver
	}
	if flagDatabaseURL != "" {
		c.Store.DatabaseURL = flagDatabaseURL
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagLogLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	pf.StringVar(&flagStoreDriver, "store", "", "override store.driver (sqlite, postgres)")
	pf.StringVar(&flagDatabaseURL, "db", "", "override store.database_url")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
