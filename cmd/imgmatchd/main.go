package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/antonkozlov/imgmatch/internal/common"
	"github.com/antonkozlov/imgmatch/internal/core"
	"github.com/antonkozlov/imgmatch/internal/entity"
	"github.com/antonkozlov/imgmatch/internal/feature/imghash"
	"github.com/antonkozlov/imgmatch/internal/feature/ocr"
	"github.com/antonkozlov/imgmatch/internal/feature/textsim"
	"github.com/antonkozlov/imgmatch/internal/ingest"
	"github.com/antonkozlov/imgmatch/internal/repository"
	"github.com/antonkozlov/imgmatch/internal/worker"
)

func main() {
	cfg := common.LoadConfig()
	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	defer repository.Close(pool, logger)

	if err := repository.HealthCheck(ctx, pool, cfg.Database.DialTimeout, logger); err != nil {
		logger.Error("database health check failed", "err", err)
		os.Exit(1)
	}
	records := repository.NewRecordRepository(pool, logger)
	if err := records.EnsureSchema(ctx); err != nil {
		logger.Error("schema setup failed", "err", err)
		os.Exit(1)
	}

	broker, err := worker.Dial(cfg.Broker, cfg.Worker.Workers, logger)
	if err != nil {
		logger.Error("broker connection failed", "err", err)
		os.Exit(1)
	}
	defer broker.Close()

	policy := entity.ThresholdPolicy{
		AHashMax:                 cfg.Policy.AHashMax,
		DHashMax:                 cfg.Policy.DHashMax,
		WHashHaarMax:             cfg.Policy.WHashHaarMax,
		ColorHashMax:             cfg.Policy.ColorHashMax,
		TextSimilarityMinPercent: cfg.Policy.SimilarityPercent,
		TextMinLen:               cfg.Policy.MinTextLen,
		PreprocessEnabled:        cfg.Policy.PreprocessText,
	}
	comparer := textsim.NewComparer(cfg.Policy.PreprocessText)
	processor := core.NewProcessor(
		logger,
		ocr.NewExtractor(ocr.Config{Language: cfg.OCR.Language}, logger),
		imghash.NewHasher(logger),
		comparer,
		records,
		policy,
		cfg.Maintenance.OverwriteVerdicts,
	)
	w := worker.New(logger, broker, broker, processor, cfg.Worker, cfg.Maintenance.Enabled)

	if len(cfg.Ingest.Dirs) > 0 {
		go func() {
			watchCfg := ingest.WatchConfig{Roots: cfg.Ingest.Dirs, Debounce: cfg.Ingest.Debounce}
			if err := ingest.Run(ctx, watchCfg, broker, logger); err != nil {
				logger.Error("ingest watcher failed", "err", err)
			}
		}()
	}

	logger.Info("starting image comparison service", "workers", cfg.Worker.Workers)
	if err := w.Run(ctx); err != nil {
		logger.Error("worker terminated with error", "err", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug", "DEBUG":
		lvl = slog.LevelDebug
	case "warn", "warning", "WARNING":
		lvl = slog.LevelWarn
	case "error", "ERROR", "fatal", "FATAL":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
