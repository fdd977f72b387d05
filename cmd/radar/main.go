package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"marketradar/api"
	"marketradar/config"
	"marketradar/extract"
	"marketradar/metrics"
	"marketradar/models"
	"marketradar/notify"
	"marketradar/reconcile"
	"marketradar/scheduler"
	"marketradar/scrape"
	"marketradar/status"
	"marketradar/store"
)

func main() {
	defaultCfg := config.DefaultConfig()

	baseDefault := defaultCfg.BaseURL
	if value, ok := config.EnvString("RADAR_BASE_URL"); ok {
		baseDefault = value
	}
	listenDefault := defaultCfg.ListenAddr
	if value, ok := config.EnvString("RADAR_LISTEN_ADDR"); ok {
		listenDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("RADAR_METRICS_ADDR"); ok {
		metricsDefault = value
	}
	sessionsDefault := defaultCfg.MaxSessions
	if value, ok, err := config.EnvInt("RADAR_MAX_SESSIONS"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid RADAR_MAX_SESSIONS: %v\n", err)
		os.Exit(1)
	} else if ok {
		sessionsDefault = value
	}
	intervalDefault := defaultCfg.ScrapeInterval
	if value, ok, err := config.EnvDuration("RADAR_SCRAPE_INTERVAL"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid RADAR_SCRAPE_INTERVAL: %v\n", err)
		os.Exit(1)
	} else if ok {
		intervalDefault = value
	}

	baseURL := flag.String("base-url", baseDefault, "Marketplace catalog base URL")
	listenAddr := flag.String("listen", listenDefault, "API listen address")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	sessions := flag.Int("sessions", sessionsDefault, "Maximum concurrent scrape sessions")
	interval := flag.Duration("interval", intervalDefault, "Interval between scheduled crawl runs")
	runOnce := flag.Bool("once", false, "Run a single crawl and exit")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := defaultCfg
	cfg.BaseURL = *baseURL
	cfg.ListenAddr = *listenAddr
	cfg.MetricsAddr = *metricsAddr
	cfg.MaxSessions = *sessions
	cfg.ScrapeInterval = *interval
	cfg.Verbose = *verbose
	if value, ok := config.EnvString("DATABASE_URL"); ok {
		cfg.DatabaseURL = value
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("opening store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	m := metrics.New()
	bcast := status.NewBroadcaster()

	webhook := notify.NewWebhookClient(15*time.Second, cfg.RateLimitFallback)
	dispatcher := notify.NewDispatcher(ctx, webhook, cfg.SendDelay, m,
		func(depth int, limited bool, wait time.Duration) {
			bcast.Update(func(s *models.RunStatus) {
				s.QueueDepth = depth
				s.RateLimited = limited
				s.RateLimitWait = wait
			})
		})

	reconciler, err := reconcile.New(st, dispatcher, m)
	if err != nil {
		slog.Error("initialising reconciler", slog.Any("error", err))
		os.Exit(1)
	}

	machine := scrape.NewMachine(cfg, reconciler, bcast, m, dispatcher.Depth)

	factory, err := extract.NewHTTPSessionFactory(cfg)
	if err != nil {
		slog.Error("initialising session factory", slog.Any("error", err))
		os.Exit(1)
	}

	sched := scheduler.New(cfg, st, factory, machine, bcast, m)

	if *runOnce {
		summary, err := sched.RunOnce(ctx)
		if err != nil {
			slog.Error("run failed", slog.Any("error", err))
			os.Exit(1)
		}
		dispatcher.Drain()
		printSummary(summary)
		return
	}

	if err := sched.Start(ctx); err != nil {
		slog.Error("starting scheduler", slog.Any("error", err))
		os.Exit(1)
	}
	defer sched.Stop()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	router := api.NewRouter(func() bool {
		return sched.TriggerRun(ctx)
	}, bcast)
	server := &http.Server{Addr: cfg.ListenAddr, Handler: router}
	go func() {
		slog.Info("api listening", slog.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received, waiting for in-flight work to finish")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api server shutdown failed", slog.Any("error", err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
	dispatcher.Drain()
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, using in-memory store")
		return store.NewMemory(), func() {}, nil
	}
	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

func printSummary(summary *models.RunSummary) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Crawl run complete")
	fmt.Printf("  Profiles:    %d\n", summary.TotalProfiles)
	fmt.Printf("  Completed:   %d\n", summary.CompletedCount)
	fmt.Printf("  Failed:      %d\n", summary.FailedCount)
	fmt.Printf("  Items:       %d\n", summary.ItemsProcessed)
	fmt.Printf("  Duration:    %v\n", summary.FinishedAt.Sub(summary.StartedAt))
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
