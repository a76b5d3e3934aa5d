// Command flowmesh boots the flow execution runtime: it loads flow files
// and configuration, wires the store, scheduler and reactive pipeline
// together, exposes a Prometheus scrape endpoint, and runs until signaled.
// Bootstrap follows a flag-driven main: parse flags, load config, wire
// logging, set up signal handling, then construct and start each
// subsystem before blocking on shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/flowmesh/flowmesh/internal/action"
	"github.com/flowmesh/flowmesh/internal/bus"
	"github.com/flowmesh/flowmesh/internal/config"
	"github.com/flowmesh/flowmesh/internal/controller"
	"github.com/flowmesh/flowmesh/internal/domain/device"
	"github.com/flowmesh/flowmesh/internal/engine"
	"github.com/flowmesh/flowmesh/internal/flow"
	"github.com/flowmesh/flowmesh/internal/reactive"
	"github.com/flowmesh/flowmesh/internal/scheduler"
	"github.com/flowmesh/flowmesh/internal/store"
	"github.com/flowmesh/flowmesh/internal/sun"
	"github.com/flowmesh/flowmesh/internal/telemetry/logging"
	"github.com/flowmesh/flowmesh/internal/telemetry/metrics"
	"github.com/google/uuid"
)

func main() {
	var (
		basePath    string
		localPath   string
		metricsAddr string
		showVersion bool
	)
	flag.StringVar(&basePath, "config", "config.yaml", "Path to the base YAML config file")
	flag.StringVar(&localPath, "config-local", "config.local.yaml", "Optional local overlay config file (ignored if absent)")
	flag.StringVar(&metricsAddr, "metrics", "", "Override the config's metrics listen address (e.g. :2112)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println("flowmesh")
		return
	}

	cfg, err := config.Load(basePath, localPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}

	logger := logging.New(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := action.NewRegistry()
	flows, err := flow.LoadDir(cfg.FlowDir, "json", registry, logger)
	if err != nil {
		logger.ErrorCtx(ctx, "loading flows failed", "error", err)
		os.Exit(1)
	}
	flowRegistry := flow.NewRegistry(flows)
	logger.InfoCtx(ctx, "loaded flows", "count", len(flows), "scheduled", len(flowRegistry.Scheduled()), "reactive", len(flowRegistry.Reactive()))

	controllers := buildControllers(cfg.Controllers, logger)

	promProvider := metrics.NewPrometheusProvider()
	runCounter := promProvider.NewCounter(metrics.CommonOpts{Subsystem: "engine", Name: "runs_total", Help: "flow runs completed, by outcome"})
	runDuration := promProvider.NewHistogram(metrics.CommonOpts{Subsystem: "engine", Name: "run_duration_seconds", Help: "flow run duration in seconds"})
	observer := func(report engine.Report, err error) {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		runCounter.Inc(1, outcome)
		runDuration.Observe(report.Duration.Seconds(), report.FlowID)
		if err != nil {
			logger.WarnCtx(ctx, "flow run failed", "flow_id", report.FlowID, "error", err)
		}
	}

	location := sun.Location{Latitude: cfg.Location.Latitude, Longitude: cfg.Location.Longitude, Altitude: cfg.Location.Altitude}

	publisher := store.NewPublisher(device.Empty())
	eventStore := store.New(publisher, logger)
	events := make(chan bus.Event)

	schedulerCommands := make(chan bus.SchedulerCommand, 64)
	sched := scheduler.New(schedulerCommands, publisher, flowRegistry, controllers, location, logger, observer)
	pipeline := reactive.New(publisher, flowRegistry, controllers, sched.Commands(), location, logger, observer)

	var watcher *config.Watcher
	if cfg.HotReload {
		watcher, err = config.Watch(basePath, localPath)
		if err != nil {
			logger.WarnCtx(ctx, "config hot reload disabled", "error", err)
		}
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promProvider.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			<-ctx.Done()
			_ = srv.Shutdown(context.Background())
		}()
		go func() {
			logger.InfoCtx(ctx, "metrics listening", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.ErrorCtx(ctx, "metrics server failed", "error", err)
			}
		}()
	}

	go eventStore.Run(ctx, events)
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			logger.ErrorCtx(ctx, "scheduler stopped unexpectedly", "error", err)
		}
	}()
	go func() {
		if err := pipeline.Run(ctx); err != nil && ctx.Err() == nil {
			logger.ErrorCtx(ctx, "reactive pipeline stopped unexpectedly", "error", err)
		}
	}()
	if watcher != nil {
		go watcher.Run(ctx)
		go watchConfig(ctx, watcher, logger)
		defer watcher.Close()
	}

	logger.InfoCtx(ctx, "flowmesh running", "instance_id", uuid.NewString())
	<-ctx.Done()
	logger.InfoCtx(context.Background(), "shutting down")
}

func buildControllers(entries []config.Controller, logger logging.Logger) *controller.Registry {
	controllers := make([]controller.Controller, 0, len(entries))
	for _, entry := range entries {
		switch entry.Kind {
		case "logging":
			id := entry.ID
			controllers = append(controllers, controller.LoggingController{
				IDValue: id,
				Log:     func(format string, args ...any) { logger.InfoCtx(context.Background(), fmt.Sprintf(format, args...), "controller_id", id) },
			})
		default:
			logger.WarnCtx(context.Background(), "unknown controller kind, skipping", "controller_id", entry.ID, "kind", entry.Kind)
		}
	}
	return controller.NewRegistry(controllers...)
}

// watchConfig logs every config the watcher republishes and every reload
// error. A reloaded log level or flow directory is not applied to the
// running process; both take effect on the next start.
func watchConfig(ctx context.Context, watcher *config.Watcher, logger logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-watcher.Changes:
			if !ok {
				return
			}
			logger.InfoCtx(ctx, "config reloaded", "log_level", cfg.LogLevel, "flow_dir", cfg.FlowDir)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.WarnCtx(ctx, "config reload failed", "error", err)
		}
	}
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
