package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/calwatch/calwatch/internal/common"
	"github.com/calwatch/calwatch/internal/scheduler"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	// Command-line flags
	configFiles  configPaths // Multiple -config flags supported
	rootURL      = flag.String("root-url", "", "Search root URL (overrides config)")
	pageSize     = flag.Int("page-size", 0, "Results per page (overrides config)")
	storageType  = flag.String("storage", "", "Store adapter: sqlite or d1 (overrides config)")
	schedule     = flag.String("schedule", "", "Cron expression for recurring runs (enables scheduler)")
	showStats    = flag.Bool("stats", false, "Print store row count and exit")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	// Global state
	config *common.Config
	logger arbor.ILogger
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Calwatch version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Initialize logger
	// 4. Print banner
	var err error

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("calwatch.toml"); err == nil {
			configFiles = append(configFiles, "calwatch.toml")
		} else if _, err := os.Stat("deployments/local/calwatch.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/calwatch.toml")
		}
	}

	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	common.ApplyFlagOverrides(config, *rootURL, *pageSize, *storageType)
	if *schedule != "" {
		config.Scheduler.Enabled = true
		config.Scheduler.Schedule = *schedule
	}

	logger = common.InitLogger(config)

	common.PrintBanner(common.GetVersion())

	logger.Info().
		Strs("config_files", configFiles).
		Str("storage_type", config.Storage.Type).
		Str("root_url", config.Site.RootURL).
		Int("page_size", config.Site.PageSize).
		Msg("Application configuration loaded")

	if *showStats {
		if err := printStats(config, logger); err != nil {
			logger.Fatal().Err(err).Msg("Failed to read store statistics")
			os.Exit(1)
		}
		return
	}

	if config.Scheduler.Enabled {
		runScheduled(config, logger)
		return
	}

	if err := runIngestion(context.Background(), config, logger); err != nil {
		logger.Fatal().Err(err).Msg("Ingestion run failed")
		os.Exit(1)
	}
}

// runScheduled keeps the process alive and triggers runs on the configured
// cron cadence until interrupted.
func runScheduled(config *common.Config, logger arbor.ILogger) {
	sched, err := scheduler.New(config.Scheduler.Schedule, func(ctx context.Context) error {
		return runIngestion(ctx, config, logger)
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to configure scheduler")
		os.Exit(1)
	}

	sched.Start()
	logger.Info().
		Str("schedule", config.Scheduler.Schedule).
		Msg("Scheduler running - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Interrupt signal received")
	sched.Stop()
}
