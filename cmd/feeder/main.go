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
	"github.com/yegors/skybridge/internal/modes"
	"github.com/yegors/skybridge/internal/source"
	"github.com/yegors/skybridge/internal/tracker"
	"github.com/yegors/skybridge/internal/websocket"
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

	// The recorder and export binaries share the config file without a
	// source section, so the host requirement is enforced here.
	if cfg.Source.Host == "" {
		fmt.Fprintf(os.Stderr, "Invalid configuration: source host is required for the feeder\n")
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

	log.Info("Starting skybridge feeder",
		logger.String("version", Version),
		logger.String("source", fmt.Sprintf("%s:%d", cfg.Source.Host, cfg.Source.Port)),
		logger.String("bind_addr", cfg.Publisher.BindAddr),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create the frame pipeline: raw TCP source -> tracker -> snapshot
	// publisher fanning out over the WebSocket hub.
	client := source.New(cfg.Source, log)
	trk := tracker.New(cfg.Tracker, cfg.Station, modes.StandardDecoder{}, client.Frames(), log)
	hub := websocket.NewServer(log)
	publisher := websocket.NewPublisher(cfg.Publisher, trk, hub, log)
	server := api.NewFeederServer(cfg.Publisher, log, trk, hub)

	if err := hub.Start(ctx); err != nil {
		log.Error("Failed to start WebSocket server", logger.Error(err))
		os.Exit(1)
	}
	if err := trk.Start(ctx); err != nil {
		log.Error("Failed to start tracker", logger.Error(err))
		os.Exit(1)
	}
	if err := client.Start(ctx); err != nil {
		log.Error("Failed to start frame source", logger.Error(err))
		os.Exit(1)
	}
	if err := publisher.Start(ctx); err != nil {
		log.Error("Failed to start publisher", logger.Error(err))
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

	log.Info("Shutting down feeder...")

	log.Info("Stopping frame source...")
	client.Stop()
	log.Info("Frame source stopped.")

	log.Info("Stopping tracker...")
	trk.Stop()
	log.Info("Tracker stopped.")

	log.Info("Stopping publisher...")
	publisher.Stop()
	log.Info("Publisher stopped.")

	log.Info("Stopping WebSocket server...")
	hub.Stop()
	log.Info("WebSocket server stopped.")

	// Cancel the main context
	cancel()

	server.Stop()

	log.Info("Feeder fully stopped")
}
