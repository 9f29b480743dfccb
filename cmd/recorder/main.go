package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yegors/skybridge/internal/api"
	"github.com/yegors/skybridge/internal/config"
	"github.com/yegors/skybridge/internal/storage/sqlite"
	"github.com/yegors/skybridge/internal/subscriber"
	"github.com/yegors/skybridge/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting skybridge recorder",
		logger.String("version", Version),
		logger.String("feed_url", cfg.Subscriber.URL),
		logger.String("db_path", cfg.Storage.Path),
		logger.String("bind_addr", cfg.API.BindAddr),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open SQLite storage and its single-writer worker
	store, err := sqlite.Open(cfg.Storage, log)
	if err != nil {
		log.Error("Failed to open SQLite storage", logger.Error(err))
		os.Exit(1)
	}
	worker := sqlite.NewWorker(store, cfg.Storage, log)

	// The subscriber mirrors the feeder stream and enqueues persistence
	// tasks onto the worker.
	sub := subscriber.New(cfg.Subscriber, worker, log)
	server := api.NewRecorderServer(cfg.API, log, store, worker, sub)

	if err := worker.Start(ctx); err != nil {
		log.Error("Failed to start storage worker", logger.Error(err))
		os.Exit(1)
	}
	if err := sub.Start(ctx); err != nil {
		log.Error("Failed to start subscriber", logger.Error(err))
		os.Exit(1)
	}
	if err := server.Start(ctx); err != nil {
		log.Error("Failed to start HTTP server", logger.Error(err))
		os.Exit(1)
	}

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down recorder...")

	// The API server reads the database, so it goes down before the
	// worker drains and closes it.
	server.Stop()

	log.Info("Stopping subscriber...")
	sub.Stop()
	log.Info("Subscriber stopped.")

	log.Info("Stopping storage worker...")
	worker.Stop()
	log.Info("Storage worker stopped.")

	// Cancel the main context
	cancel()

	log.Info("Recorder fully stopped")
}
