// Command dcaload submits DCA schedules in block-paced bursts against a
// Substrate node and reports fees spent and block weight per burst.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gateway-fm/dcaload/internal/chain"
	"github.com/gateway-fm/dcaload/internal/config"
	"github.com/gateway-fm/dcaload/internal/driver"
	"github.com/gateway-fm/dcaload/internal/metrics"
	"github.com/gateway-fm/dcaload/internal/pattern"
	"github.com/gateway-fm/dcaload/internal/storage"
	"github.com/gateway-fm/dcaload/internal/transport"
	"github.com/gateway-fm/dcaload/pkg/types"
)

// Process exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

const httpShutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(exitFailure)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	os.Exit(run(cfg, logger))
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func run(cfg *config.Config, logger *slog.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		recorder driver.Recorder
		history  transport.HistoryStore
	)
	if cfg.DatabasePath != "" {
		store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
		if err != nil {
			logger.Error("failed to initialize storage", "error", err, "path", cfg.DatabasePath)
			return exitFailure
		}
		defer store.Close()
		recorder, history = store, store
		logger.Info("initialized storage", "path", cfg.DatabasePath)
	}

	client, err := chain.Dial(ctx, chain.DialConfig{
		URL:      cfg.WSURL,
		CallName: cfg.CallName,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to connect to node", "error", err, "url", cfg.WSURL)
		return exitFailure
	}
	defer client.Close()

	burstPattern, err := pattern.NewRegistry().Get(cfg.Pattern, cfg.PatternConfig())
	if err != nil {
		logger.Error("failed to build burst pattern", "error", err)
		return exitFailure
	}

	source, err := newBlockSource(ctx, cfg, client)
	if err != nil {
		logger.Error("failed to start block source", "error", err, "source", cfg.BlockSource)
		return exitFailure
	}

	d, err := driver.New(driver.Config{
		Client:         client,
		Source:         source,
		Pattern:        burstPattern,
		TxsPerBlock:    cfg.TxsPerBlock,
		SignerURI:      cfg.SignerURI,
		Network:        cfg.Network,
		DurationBlocks: cfg.DurationBlocks,
		StopMode:       cfg.StopMode,
		Shape:          cfg.Schedule,
		Tip:            cfg.Tip,
		SubmitRate:     cfg.SubmitRate,
		Endpoint:       cfg.WSURL,
		Metrics:        metrics.NewPrometheusMetrics(prometheus.DefaultRegisterer),
		Recorder:       recorder,
		Logger:         logger,
	})
	if err != nil {
		source.Close()
		logger.Error("failed to create driver", "error", err)
		return exitFailure
	}

	if cfg.ListenAddr != "" {
		shutdown := serveHTTP(cfg, d, history, client, logger)
		defer shutdown()
	}

	logger.Info("starting run",
		"pattern", cfg.Pattern,
		"duration_blocks", cfg.DurationBlocks,
		"stop_mode", cfg.StopMode,
		"block_source", cfg.BlockSource,
	)

	report, err := d.Run(ctx)
	switch {
	case report == nil:
		logger.Error("run failed to start", "error", err)
		return exitFailure
	case errors.Is(err, driver.ErrInterrupted):
		logger.Warn("run interrupted", "run_id", report.RunID, "bursts", report.Bursts)
		return exitInterrupted
	case err != nil:
		logger.Error("run failed", "error", err, "run_id", report.RunID, "bursts", report.Bursts)
		return exitFailure
	}
	return exitOK
}

func newBlockSource(ctx context.Context, cfg *config.Config, client chain.Client) (driver.BlockSource, error) {
	switch cfg.BlockSource {
	case types.BlockSourceSubscribe:
		return driver.FollowHeads(ctx, client)
	default:
		return driver.NewPoller(client, cfg.PollInterval), nil
	}
}

// serveHTTP starts the status API and returns a function that stops it.
func serveHTTP(cfg *config.Config, d *driver.Driver, history transport.HistoryStore, health transport.HealthChecker, logger *slog.Logger) func() {
	api := transport.NewServer(d, history, health, logger, cfg.CORSAllowedOrigins)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
		}
	}()

	return func() {
		api.Close()
		ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("HTTP server shutdown failed", "error", err)
		}
	}
}
