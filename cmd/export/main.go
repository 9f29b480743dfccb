package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yegors/skybridge/internal/config"
	"github.com/yegors/skybridge/internal/export"
	"github.com/yegors/skybridge/internal/storage/sqlite"
	"github.com/yegors/skybridge/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	outDir := flag.String("out", "exports", "Output directory for CSV files")
	aircraft := flag.String("aircraft", "", "Export only data for this aircraft ICAO address")
	session := flag.String("session", "", "Export only data for this flight session ID")
	stats := flag.Bool("stats", false, "Also write a summary statistics CSV")
	flag.Parse()

	if *aircraft != "" && *session != "" {
		fmt.Fprintf(os.Stderr, "-aircraft and -session are mutually exclusive\n")
		os.Exit(1)
	}

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

	// Exporting reads an existing archive; opening a missing path would
	// just create an empty database.
	if _, err := os.Stat(cfg.Storage.Path); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Database file not found: %s\n", cfg.Storage.Path)
		os.Exit(1)
	}

	store, err := sqlite.Open(cfg.Storage, log)
	if err != nil {
		log.Error("Failed to open SQLite storage", logger.Error(err))
		os.Exit(1)
	}
	defer store.Close()

	exporter := export.New(store, log)

	var counts export.Counts
	switch {
	case *aircraft != "":
		counts, err = exporter.ExportAircraft(*outDir, *aircraft)
	case *session != "":
		counts, err = exporter.ExportSession(*outDir, *session)
	default:
		counts, err = exporter.ExportAll(*outDir)
	}
	if err != nil {
		log.Error("Export failed", logger.Error(err))
		os.Exit(1)
	}

	if *stats {
		if err := exporter.ExportStats(*outDir, cfg.Storage.Path); err != nil {
			log.Error("Statistics export failed", logger.Error(err))
			os.Exit(1)
		}
	}

	absDir, err := filepath.Abs(*outDir)
	if err != nil {
		absDir = *outDir
	}

	fmt.Println("Export successful!")
	fmt.Printf("  Aircraft records: %d\n", counts.Aircraft)
	fmt.Printf("  Flight sessions:  %d\n", counts.Sessions)
	fmt.Printf("  Path points:      %d\n", counts.Paths)
	if *stats {
		fmt.Printf("  Summary statistics: %s\n", filepath.Join(absDir, "statistics.csv"))
	}
	fmt.Printf("Files written to: %s\n", absDir)
}
