package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	v1 "carbon-scribe/blue-carbon/blue-carbon-backend/api/v1"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/config"
)

// The verification worker runs the pending-project sweep without serving HTTP.
// It must share a postgres or sqlite database with the API to be useful.
func main() {
	configPath := flag.String("config", "config.json", "path to the JSON configuration file")
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	// live event streaming belongs to the API process
	cfg.Sinks.WebSocket = false

	logger, err := v1.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Database.Driver == "memory" {
		logger.Warn("Verification worker is using the in-memory store and will only see its own projects")
	}

	// Create context that cancels on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api, err := v1.Setup(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to set up verification worker", zap.Error(err))
	}
	defer func() {
		if err := api.Close(); err != nil {
			logger.Warn("Failed to release resources", zap.Error(err))
		}
	}()

	// Process pending projects immediately
	result, err := api.Sweeper.RunOnce(ctx)
	if err != nil {
		logger.Error("Initial sweep failed", zap.Error(err))
	} else {
		logger.Info("Initial sweep completed",
			zap.Int("processed", result.Processed),
			zap.Int("approved", result.Approved),
			zap.Int("rejected", result.Rejected),
			zap.Int("still_pending", result.StillPending),
			zap.Int("failed", result.Failed))
	}
	if *once {
		return
	}

	if err := api.Sweeper.Start(ctx); err != nil {
		logger.Fatal("Failed to start verification sweeper", zap.Error(err))
	}
	logger.Info("Verification worker started", zap.String("schedule", cfg.Sweeper.Schedule))

	<-ctx.Done()
	logger.Info("Shutdown signal received")
}
