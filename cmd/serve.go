package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/arbitrage-cli/internal/config"
	"github.com/sells-group/arbitrage-cli/internal/monitoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the intake API server",
	Long:  "Serves the discovery API. With queue.driver=local the pipeline runs in this process; with temporal it starts workflows for a separate worker.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, config.ModeServe)
		if err != nil {
			return err
		}
		defer env.Close()

		d, err := startDispatcher(ctx, env, 0)
		if err != nil {
			return err
		}
		defer d.Close()

		if cfg.Queue.Driver == "local" {
			n, err := resumeUnfinished(ctx, env.Store, d, cfg.Queue.Size)
			if err != nil {
				zap.L().Warn("resume unfinished items failed", zap.Error(err))
			} else if n > 0 {
				zap.L().Info("resumed unfinished items", zap.Int("count", n))
			}
		}

		collector := env.Collector()
		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		srv := &apiServer{
			store:       env.Store,
			dispatcher:  d,
			collector:   collector,
			maxAttempts: cfg.Queue.MaxAttempts,
		}
		if p := env.Planner(); p != nil {
			srv.planner = p
		}

		return startServer(ctx, buildRouter(srv, cfg.Server.AllowedOrigins), resolvePort(servePort, cfg.Server.Port))
	},
}

// resolvePort prefers the flag value over the config value.
func resolvePort(flag, configured int) int {
	if flag != 0 {
		return flag
	}
	return configured
}

// startServer serves handler on port until ctx is cancelled, then shuts
// down gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port), zap.String("queue", cfg.Queue.Driver))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
