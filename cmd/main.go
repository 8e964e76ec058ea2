package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/uptime-monitor/config"
	"github.com/angeloszaimis/uptime-monitor/internal/endpoint"
	"github.com/angeloszaimis/uptime-monitor/internal/feed"
	"github.com/angeloszaimis/uptime-monitor/internal/fleet"
	"github.com/angeloszaimis/uptime-monitor/internal/handler"
	"github.com/angeloszaimis/uptime-monitor/internal/healthcheck"
	"github.com/angeloszaimis/uptime-monitor/internal/httpserver"
	"github.com/angeloszaimis/uptime-monitor/internal/metrics"
	"github.com/angeloszaimis/uptime-monitor/internal/proxy"
	"github.com/angeloszaimis/uptime-monitor/pkg/logger"
)

func main() {
	flags := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	config.RegisterFlags(flags)
	_ = flags.Parse(os.Args[1:])

	loader, err := config.NewLoader(afero.NewOsFs(), flags)
	if err != nil {
		slog.Error("failed to prepare config loader", slog.Any("err", err))
		os.Exit(1)
	}

	cfg, err := loader.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	level := logger.LevelVar(cfg.Logging.Level)
	log := logger.New(level, true, cfg.Server.Environment)
	slog.SetDefault(log)

	loader.Watch(func(next *config.Config) {
		level.Set(logger.ParseLevel(next.Logging.Level))
		log.Info("Config reloaded", slog.String("log_level", next.Logging.Level))
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(cfg, afero.NewOsFs(), log)
	if err != nil {
		log.Error("Failed to initialize monitor", slog.Any("err", err))
		os.Exit(1)
	}

	if err := a.run(ctx); err != nil {
		log.Error("Monitor stopped with error", slog.Any("err", err))
		os.Exit(1)
	}
}

// app holds the wired components of the monitor.
type app struct {
	log       *slog.Logger
	registry  *endpoint.Registry
	collector *metrics.Collector
	scheduler *fleet.Scheduler
	feed      *feed.Client
	server    *httpserver.Server
}

func newApp(cfg *config.Config, fsys afero.Fs, log *slog.Logger) (*app, error) {
	registry, err := endpoint.Load(fsys, cfg.Registry.File)
	if err != nil {
		return nil, err
	}
	log.Info("Loaded endpoint registry",
		slog.String("file", cfg.Registry.File),
		slog.Int("endpoints", registry.Len()))

	collector := metrics.NewCollector(cfg.Metrics.BufferSize, log)

	prober := healthcheck.NewProber(nil, cfg.Probe.UserAgent, log, probeAttempts(cfg.Probe)...)

	scheduler := fleet.NewScheduler(registry, prober, fleet.Options{
		Interval:       cfg.Fleet.Interval,
		Timeout:        cfg.Probe.Timeout,
		MaxConcurrency: cfg.Fleet.MaxConcurrency,
		HistorySize:    cfg.Fleet.HistorySize,
	}, log, collector)

	px := proxy.New(nil, proxy.Options{
		Path:         cfg.Proxy.Path,
		Timeout:      cfg.Proxy.Timeout,
		UserAgent:    cfg.Proxy.UserAgent,
		MaxBodyBytes: cfg.Proxy.MaxBodyBytes,

		BreakerThreshold: cfg.Proxy.BreakerThreshold,
		BreakerCooldown:  cfg.Proxy.BreakerCooldown,
	}, log, collector)

	var feedClient *feed.Client
	if cfg.Feed.URL != "" {
		if _, ok := registry.Get(cfg.Feed.EndpointID); !ok {
			return nil, errors.New("feed endpoint_id is not in the registry")
		}
		feedClient, err = feed.New(feed.Options{
			URL:            cfg.Feed.URL,
			Origin:         cfg.Feed.Origin,
			EndpointID:     cfg.Feed.EndpointID,
			ReconnectDelay: cfg.Feed.ReconnectDelay,
			WindowSize:     cfg.Fleet.HistorySize,
		}, log)
		if err != nil {
			return nil, err
		}
	}

	h := handler.New(log, prober, cfg.Probe.Timeout, scheduler, px, feedClient)

	server, err := httpserver.New(cfg.Server.Address, setupRouter(log, h, collector, px.Path()), httpserver.Options{
		WriteTimeout: cfg.Proxy.Timeout + cfg.Probe.Timeout,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		log:       log,
		registry:  registry,
		collector: collector,
		scheduler: scheduler,
		feed:      feedClient,
		server:    server,
	}, nil
}

func probeAttempts(pc config.ProbeConfig) []healthcheck.Attempt {
	attempts := healthcheck.DefaultAttempts()
	if pc.ImageFallback {
		attempts = append(attempts, healthcheck.ImageAttempt(pc.ImageThreshold))
	}
	return attempts
}

// run starts every component and blocks until ctx is cancelled or the HTTP
// server fails, then shuts everything down.
func (a *app) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	a.collector.Start(ctx)
	a.scheduler.Start(ctx)

	if a.feed != nil {
		g.Go(func() error {
			return a.feed.Run(ctx)
		})
	}

	g.Go(func() error {
		a.log.Info("Uptime monitor listening", slog.String("address", a.server.Addr()))
		return a.server.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		a.log.Info("Shutting down gracefully...")
		a.scheduler.Stop()
		return a.server.Shutdown(context.Background())
	})

	return g.Wait()
}
