package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/zombor/meter-tracker/internal/config"
	"github.com/zombor/meter-tracker/internal/meter"
	"github.com/zombor/meter-tracker/internal/pricefeed"
	"github.com/zombor/meter-tracker/internal/reading"
	"github.com/zombor/meter-tracker/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		var usageErr *config.UsageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "%s\n", usageErr.Help)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if cfg.ShowVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	slog.SetDefault(cfg.Logger(os.Stderr))
	slog.Info("Starting meter tracker", "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize reading store
	var store reading.SeriesStore
	switch cfg.Store {
	case "bolt":
		slog.Info("Initializing database...", "path", cfg.DBPath)
		store, err = reading.NewBoltStore(cfg.DBPath)
	case "influx":
		slog.Info("Initializing InfluxDB store...", "url", cfg.InfluxURL, "org", cfg.InfluxOrg, "bucket", cfg.InfluxBucket)
		store, err = reading.NewInfluxStore(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
	}
	if err != nil {
		slog.Error("Failed to initialize store", "store", cfg.Store, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Initialize scanner based on type
	var backend scanning.Scanner
	switch cfg.Scanner {
	case "gemini":
		slog.Info("Initializing Gemini scanner...", "model", cfg.GeminiModel)
		backend, err = scanning.NewGemini(ctx, cfg.GeminiKey, cfg.GeminiModel)
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
		backend, err = scanning.NewOllama(cfg.OllamaURL, cfg.OllamaModel)
	}
	if err != nil {
		slog.Error("Failed to initialize scanner", "scanner", cfg.Scanner, "error", err)
		os.Exit(1)
	}
	scanner := scanning.NewRetrying(backend, cfg.ScanRetries, time.Second)
	defer scanner.Close()

	// An untyped nil keeps the service from archiving
	var archive reading.Archive
	if cfg.ArchiveDir != "" {
		slog.Info("Initializing capture archive...", "path", cfg.ArchiveDir)
		localArchive, err := reading.NewLocalArchive(cfg.ArchiveDir)
		if err != nil {
			slog.Error("Failed to initialize archive", "error", err)
			os.Exit(1)
		}
		archive = localArchive
	}

	service := reading.NewService(store, scanner, archive, meter.DefaultRegistry())

	if cfg.PriceFeedURL != "" {
		feedType, err := reading.ParseUtilityType(cfg.PriceFeedType)
		if err != nil {
			slog.Error("Invalid price feed type", "type", cfg.PriceFeedType, "error", err)
			os.Exit(1)
		}
		go pricefeed.New(cfg.PriceFeedURL, cfg.PriceFeedInterval, feedType, service).Run(ctx)
	}

	basicAuth := reading.BasicAuth{
		Username: cfg.AuthUser,
		Password: cfg.AuthPass,
	}
	server := reading.NewServer(service, basicAuth, cfg.ScanTimeout)

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", cfg.Addr()))
	if cfg.AuthEnabled() {
		slog.Info("Basic auth enabled", "user", cfg.AuthUser)
	}

	if err := server.Start(ctx, cfg.Addr()); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	slog.Info("Shutting down...")
}
