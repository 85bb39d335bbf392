package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/healflow/console-engine/internal/api"
	"github.com/healflow/console-engine/internal/cache"
	"github.com/healflow/console-engine/internal/config"
	"github.com/healflow/console-engine/internal/engine"
	"github.com/healflow/console-engine/internal/gate"
	"github.com/healflow/console-engine/internal/metrics"
	"github.com/healflow/console-engine/internal/notify"
	"github.com/healflow/console-engine/internal/repo"
	"github.com/healflow/console-engine/internal/syncer"
	"github.com/healflow/console-engine/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting console-engine", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	var redisCloser cache.Provider
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewRedisProvider(cache.RedisConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			MaxRetries:   cfg.Cache.MaxRetries,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("redis cache unavailable", slog.Any("error", err))
		} else {
			cacheProvider = provider
			redisCloser = provider
		}
	}
	if redisCloser != nil {
		defer redisCloser.Close()
	}

	backendClient := repo.NewBackendClient(
		cfg.Clients.Backend.BaseURL,
		cfg.Clients.Backend.Timeout,
		cfg.Clients.Backend.SignalLimit,
	)

	reportingBaseURL := cfg.Clients.Reporting.BaseURL
	if reportingBaseURL == "" {
		reportingBaseURL = cfg.Clients.Backend.BaseURL
	}
	reportingClient := repo.NewReportingClient(
		reportingBaseURL,
		cfg.Clients.Reporting.Timeout,
		cacheProvider,
		cfg.Cache.ReportingTTL,
		logger,
	)

	riskPack, err := engine.LoadRiskPack(cfg.Risk.Path, logger)
	if err != nil {
		logger.Error("failed to load risk pack", slog.Any("error", err))
		os.Exit(1)
	}

	approvalGate := gate.New()
	notifications := notify.NewQueue(cfg.Notifications.MaxEntries)

	orchestrator := engine.NewOrchestrator(
		logger,
		engine.NewDefaultStageRunner(),
		riskPack,
		approvalGate,
		notifications,
		nil,
	)

	loop := syncer.NewLoop(
		logger,
		backendClient,
		orchestrator,
		approvalGate,
		notifications,
		cfg.Sync.Interval,
		cfg.DefaultFilters(),
	)
	orchestrator.SetCompletionSink(loop)

	stallDetector := engine.NewStallDetector(
		logger,
		orchestrator,
		notifications,
		cfg.Stall.Interval,
		cfg.Stall.Threshold,
	)

	handler := api.NewHandler(logger, loop, orchestrator, backendClient, reportingClient, notifications)

	server, err := api.NewServer(cfg.Server, handler.Routes())
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go loop.Run(ctx)
	go stallDetector.Run(ctx)

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("HTTP server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("console-engine stopped")
}
