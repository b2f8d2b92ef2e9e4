package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/blackwell-systems/voidstore/internal/config"
	"github.com/blackwell-systems/voidstore/internal/logger"
	"github.com/blackwell-systems/voidstore/internal/metrics"
	"github.com/blackwell-systems/voidstore/internal/scheduler"
	"github.com/blackwell-systems/voidstore/internal/server"
	"github.com/blackwell-systems/voidstore/internal/watcher"
)

var (
	serveAddr           string
	serveNoSchedule     bool
	serveSpotlightEvery time.Duration

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the agent with its HTTP API",
		Long: `Run the agent in the foreground and serve its HTTP API.

While serving, update checks run on the schedule chosen in the settings
(auto_check_enabled, auto_check_frequency) and the spotlight cache is
refreshed when it goes stale. Edits to settings.json are applied without
a restart. Prometheus metrics are exposed on /metrics.

Examples:
  voidstore serve
  voidstore serve --addr 127.0.0.1:9000
  curl -s localhost:7878/api/status`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr from config)")
	serveCmd.Flags().BoolVar(&serveNoSchedule, "no-schedule", false, "disable periodic update checks and spotlight refreshes")
	serveCmd.Flags().DurationVar(&serveSpotlightEvery, "spotlight-every", scheduler.DefaultSpotlightEvery, "how often to ask for a spotlight refresh")
}

func runServe(cmd *cobra.Command, args []string) error {
	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	if logger.GetLevel() > logger.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	col := metrics.New(reg)

	sess, err := openSession(col, col)
	if err != nil {
		return err
	}
	defer sess.Close()
	a := sess.agent

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	// Prime the installed list and the mirror selection before anything
	// else is queued.
	a.RefreshInstalled()
	if err := a.DetectMirrors(); err != nil {
		logger.Warn("mirror detection skipped: %v", err)
	}
	g.Go(func() error {
		return a.Run(ctx)
	})

	srv := server.New(a, reg)
	g.Go(func() error {
		return srv.Run(ctx, addr)
	})

	var sched *scheduler.Scheduler
	if !serveNoSchedule {
		sched = scheduler.New(a)
		sched.SetSpotlightEvery(serveSpotlightEvery)
		if err := sched.Start(sess.settings); err != nil {
			cancel()
			g.Wait()
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer sched.Stop()
	}

	w, err := watcher.New(cfg.SettingsPath(), func(s config.Settings) {
		applyCtx, done := context.WithTimeout(ctx, 10*time.Second)
		defer done()
		if err := a.Do(applyCtx, func() { a.ApplySettings(s) }); err != nil {
			logger.Warn("failed to apply settings: %v", err)
			return
		}
		if sched != nil {
			if err := sched.Reschedule(s); err != nil {
				logger.Warn("failed to reschedule update checks: %v", err)
			}
		}
		logger.Info("settings reloaded")
	})
	if err == nil {
		err = w.Start()
	}
	if err != nil {
		logger.Warn("settings changes will need a restart: %v", err)
	} else {
		defer w.Stop()
	}

	fmt.Printf("voidstore listening on http://%s\n", addr)
	return g.Wait()
}
