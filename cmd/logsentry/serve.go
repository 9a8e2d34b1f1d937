package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"logsentry/internal/api"
	"logsentry/internal/broadcast"
	"logsentry/internal/cache"
	"logsentry/internal/metrics"
	"logsentry/internal/pipeline"
	"logsentry/internal/rules"
	"logsentry/internal/storage"
	"logsentry/internal/utils"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion API, correlation engine and live stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	cfg, err := utils.LoadConfig(configFile)
	if err != nil {
		return err
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger.Infof("LogSentry v%s starting", getVersion())

	registry := metrics.NewRegistry()
	m := metrics.NewMetrics(registry)

	state := rules.NewCorrelationState()
	store := rules.NewStore(state, logger, rules.WithRegexTimeout(cfg.RegexTimeout()))
	if loaded, err := store.LoadFile(cfg.Rules.File); err != nil {
		logger.Errorf("Failed to load rules from %s: %v", cfg.Rules.File, err)
	} else {
		logger.Infof("Loaded %d rules from %s", len(loaded), cfg.Rules.File)
	}
	engine := rules.NewEngine(store, state, m, logger)

	var opts []pipeline.Option
	if cfg.Anomaly.Enabled {
		detector, err := rules.NewAnomalyDetector(cfg.Anomaly.MaxTrackedIPs, cfg.Anomaly.MaxHistory)
		if err != nil {
			return err
		}
		opts = append(opts, pipeline.WithAnomalyDetector(detector))
	}

	hub := broadcast.NewHub(cfg.SendTimeout(), m, logger)

	dispatcher, closeNotifiers, err := buildDispatcher(cfg, m, logger)
	defer closeNotifiers()
	if err != nil {
		return err
	}

	var statsCache *cache.StatsCache
	if cfg.Redis.Enabled {
		statsCache = cache.NewStatsCache(cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.StatsTTL(),
		}, logger)
		defer statsCache.Close()

		pingCtx, cancel := context.WithTimeout(parent, 5*time.Second)
		if err := statsCache.Ping(pingCtx); err != nil {
			logger.Warnf("Redis not reachable at %s: %v", cfg.Redis.Addr, err)
		}
		cancel()
	}

	st := storage.NewStorage(cfg.Storage.MaxLogs, cfg.Storage.MaxAlerts, logger)
	processor := pipeline.NewProcessor(engine, st, hub, dispatcher, statsCache, logger, opts...)

	handlers := api.NewHandlers(api.Deps{
		Rules:        store,
		Engine:       engine,
		Processor:    processor,
		Storage:      st,
		Hub:          hub,
		Cache:        statsCache,
		PingInterval: cfg.PingInterval(),
	}, logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewRouter(handlers, registry, cfg.Server.AllowedOrigins),
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Infof("API server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()

		// Hijacked websocket connections are not tracked by Shutdown.
		hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Server shutdown error: %v", err)
		}
		if err := processor.Wait(shutdownCtx); err != nil {
			logger.Warnf("Pending log evaluations abandoned: %v", err)
		}
		return nil
	})

	if cfg.Rules.Watch && cfg.Rules.File != "" {
		watcher := rules.NewWatcher(store, cfg.Rules.File, m, logger)
		g.Go(func() error {
			if err := watcher.Run(gctx); err != nil {
				logger.Warnf("Rules hot reload disabled: %v", err)
			}
			return nil
		})
	}

	if cfg.Metrics.Addr != "" {
		exporter := metrics.NewExporter(cfg.Metrics.Addr, registry, logger)
		g.Go(func() error {
			return exporter.Start(gctx)
		})
	}

	err = g.Wait()
	logger.Info("LogSentry stopped")
	return err
}
