// Package serve implements the HTTP API command.
package serve

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/regcount/cmd/common"
	"github.com/jonesrussell/north-cloud/regcount/internal/api"
	"github.com/jonesrussell/north-cloud/regcount/internal/config"
	"github.com/jonesrussell/north-cloud/regcount/internal/logger"
	"github.com/jonesrussell/north-cloud/regcount/internal/scheduler"
)

// Command returns the serve command. version is reported by /health.
func Command(version string) *cobra.Command {
	var (
		port     int
		schedule string
		warmNow  bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis views over HTTP",
		Long: `Serve agency totals, title totals, composition, time series and the agency
hierarchy as JSON, with Prometheus metrics on /metrics. With a schedule the
default analysis runs periodically to keep the cache warm.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := common.NewDeps(func(cfg *config.Config) {
				if port != 0 {
					cfg.Server.Port = port
				}
				if schedule != "" {
					cfg.Scheduler.Enabled = true
					cfg.Scheduler.Spec = schedule
				}
			})
			if err != nil {
				return fmt.Errorf("failed to get dependencies: %w", err)
			}
			defer deps.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, deps, version, warmNow)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from config)")
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron schedule for cache warm-up, enables the warmer")
	cmd.Flags().BoolVar(&warmNow, "warm", false, "run one warm-up at startup")
	return cmd
}

func run(ctx context.Context, deps *common.Deps, version string, warmNow bool) error {
	cfg := deps.Config
	log := deps.Logger

	if cfg.Scheduler.Enabled || warmNow {
		warmer, err := scheduler.New(cfg.Scheduler.Spec, deps.Engine, cfg.Analysis.AsOfDate, log)
		if err != nil {
			return err
		}
		if cfg.Scheduler.Enabled {
			warmer.Start(ctx)
		}
		if warmNow {
			go func() {
				if err := warmer.RunOnce(ctx); err != nil {
					log.Error("startup warm-up failed", logger.Error(err))
				}
			}()
		}
	}

	handler := api.NewHandler(deps.Engine, cfg.Analysis, version, log)
	router := api.NewRouter(handler, deps.Metrics.Handler(), log, viper.GetBool(common.DebugKey))
	server := api.NewServer(cfg.Server, router, log)

	started := time.Now()
	err := server.Run(ctx)
	log.Info("server exited", logger.Duration("uptime", time.Since(started)))
	return err
}
