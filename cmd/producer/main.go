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
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/rickgao/quote-producer/internal/api"
	"github.com/rickgao/quote-producer/internal/broker"
	"github.com/rickgao/quote-producer/internal/buffer"
	"github.com/rickgao/quote-producer/internal/config"
	"github.com/rickgao/quote-producer/internal/control"
	"github.com/rickgao/quote-producer/internal/database"
	"github.com/rickgao/quote-producer/internal/metrics"
	"github.com/rickgao/quote-producer/internal/model"
	"github.com/rickgao/quote-producer/internal/publisher"
	"github.com/rickgao/quote-producer/internal/registry"
	"github.com/rickgao/quote-producer/internal/scheduler"
	"github.com/rickgao/quote-producer/internal/service"
	"github.com/rickgao/quote-producer/internal/shutdown"
	"github.com/rickgao/quote-producer/internal/version"
	"github.com/rickgao/quote-producer/internal/writer"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional; environment overrides apply either way)")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the config")
	flag.Parse()

	// A missing .env is normal outside local development.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting quote producer",
		"version", version.Version,
		"commit", version.Commit,
		"instance_id", cfg.Instance.ID,
		"config", *configPath,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	m := metrics.New()

	sched := scheduler.New(scheduler.Config{
		Workers:      cfg.Scheduler.Workers,
		TickTimeout:  cfg.Scheduler.TickTimeout,
		DrainTimeout: cfg.Scheduler.DrainTimeout,
	}, logger.With("component", "scheduler"))
	m.WatchScheduler(sched)

	apiOpts := []api.ClientOption{
		api.WithLogger(logger.With("component", "api")),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, cfg.API.RetryBackoff),
	}
	if cfg.API.RateLimit > 0 {
		apiOpts = append(apiOpts, api.WithRateLimit(cfg.API.RateLimit, cfg.API.RateBurst))
	}
	apiClient := api.NewClient(cfg.API.BaseURL, cfg.API.APIKey, apiOpts...)

	logger.Info("connecting to broker", "url", cfg.Broker.URL, "stream", cfg.Broker.Stream)
	brokerCfg := broker.DefaultConfig()
	brokerCfg.URL = cfg.Broker.URL
	brokerCfg.Name = cfg.Instance.ID
	brokerCfg.Subject = cfg.Broker.Subject
	brokerCfg.Stream = cfg.Broker.Stream
	brokerCfg.PublishTimeout = cfg.Broker.PublishTimeout
	brokerCfg.MaxPending = cfg.Broker.MaxPending
	brokerCfg.ReconnectWait = cfg.Broker.ReconnectWait

	connectCtx, connectCancel := context.WithTimeout(ctx, 30*time.Second)
	nb, err := broker.Connect(connectCtx, brokerCfg, logger.With("component", "broker"))
	connectCancel()
	if err != nil {
		logger.Error("failed to connect to broker", "error", err)
		os.Exit(1)
	}
	m.WatchBrokerPending(func() int { return nb.Stats().Pending })

	pub := publisher.New(publisher.Config{
		Subject:        cfg.Broker.Subject,
		PublishTimeout: cfg.Broker.PublishTimeout,
	}, nb, logger.With("component", "publisher"))

	svcOpts := []service.Option{
		service.WithLogger(logger.With("component", "service")),
		service.WithMetrics(m),
	}

	var (
		pool    *pgxpool.Pool
		archive *writer.QuoteWriter
	)
	if cfg.Archive.Enabled {
		pool, archive, err = startArchive(ctx, cfg.Archive, logger.With("component", "archive"))
		if err != nil {
			logger.Error("failed to start archive", "error", err)
			os.Exit(1)
		}
		svcOpts = append(svcOpts, service.WithArchive(archive))
	}

	svc := service.New(registry.Config{
		Interval:    cfg.Scheduler.Interval,
		MinInterval: cfg.Scheduler.MinInterval,
	}, sched, apiClient, pub, svcOpts...)

	coordinator := shutdown.New(shutdown.Config{
		FlushTimeout: cfg.Shutdown.FlushTimeout,
		CloseTimeout: cfg.Shutdown.CloseTimeout,
	}, svc.Registry(), pub, sched, logger.With("component", "shutdown"))

	sched.Start()

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: control.NewRouter(control.Config{
			Service:   svc,
			Jobs:      sched,
			Publisher: pub,
			Tap:       nb,
			Metrics:   m.Handler(),
			Logger:    logger.With("component", "control"),
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting control server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("control server error", "error", err)
			cancel()
		}
	}()

	logger.Info("quote producer running",
		"instance_id", cfg.Instance.ID,
		"subject", cfg.Broker.Subject,
		"control_url", fmt.Sprintf("http://localhost:%d", cfg.Server.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	if err := coordinator.Shutdown(); err != nil {
		logger.Warn("shutdown completed with errors", "error", err)
	}

	serverCtx, serverCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer serverCancel()
	if err := server.Shutdown(serverCtx); err != nil {
		logger.Warn("control server shutdown", "error", err)
	}

	if archive != nil {
		archiveCtx, archiveCancel := context.WithTimeout(context.Background(), cfg.Shutdown.FlushTimeout)
		defer archiveCancel()
		if err := archive.Stop(archiveCtx); err != nil {
			logger.Warn("archive stop", "error", err)
		}
		stats := archive.Stats()
		logger.Info("archive stopped",
			"inserts", stats.Inserts,
			"conflicts", stats.Conflicts,
			"errors", stats.Errors,
		)
	}
	if pool != nil {
		pool.Close()
	}

	pubStats := pub.Stats()
	logger.Info("quote producer stopped",
		"sent", pubStats.Sent,
		"failed", pubStats.Failed,
	)
}

// startArchive connects to the archive database, ensures the schema and
// starts the writer.
func startArchive(ctx context.Context, cfg config.ArchiveConfig, logger *slog.Logger) (*pgxpool.Pool, *writer.QuoteWriter, error) {
	logger.Info("connecting to archive database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	if err := database.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}

	input := buffer.New[model.Record](cfg.BufferSize, cfg.MaxBufferSize)
	w := writer.NewQuoteWriter(writer.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	}, input, pool, logger)

	// The writer outlives the signal context so it can flush during shutdown.
	if err := w.Start(context.WithoutCancel(ctx)); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("start writer: %w", err)
	}
	return pool, w, nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
