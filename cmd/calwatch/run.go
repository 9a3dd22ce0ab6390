package main

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/calwatch/calwatch/internal/browser"
	"github.com/calwatch/calwatch/internal/common"
	"github.com/calwatch/calwatch/internal/engine"
	"github.com/calwatch/calwatch/internal/interfaces"
	"github.com/calwatch/calwatch/internal/storage/d1"
	"github.com/calwatch/calwatch/internal/storage/sqlite"
)

// newStore builds the configured store adapter.
func newStore(ctx context.Context, config *common.Config, retry *common.RetryPolicy, logger arbor.ILogger) (interfaces.JobStore, error) {
	switch config.Storage.Type {
	case "sqlite":
		db, err := sqlite.NewSQLiteDB(logger, &config.Storage.SQLite)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return sqlite.NewJobStorage(db, retry, logger), nil

	case "d1":
		store, err := d1.NewJobStorage(ctx, config.Storage.D1, retry, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open d1 store: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", config.Storage.Type)
	}
}

// runIngestion executes one complete scrape-and-load walk. One retry policy
// is shared by the store adapter and the engine's navigation retries.
func runIngestion(ctx context.Context, config *common.Config, logger arbor.ILogger) error {
	retry := common.NewRetryPolicy()

	store, err := newStore(ctx, config, retry, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	fetcher, err := browser.New(config.Browser, browser.NormalizeRootURL(config.Site.RootURL), logger)
	if err != nil {
		return fmt.Errorf("failed to start browser session: %w", err)
	}
	defer fetcher.Close()

	eng := engine.New(config, fetcher, store, retry, logger)

	_, err = eng.Run(ctx)
	return err
}

// printStats reports the current store row count.
func printStats(config *common.Config, logger arbor.ILogger) error {
	ctx := context.Background()

	store, err := newStore(ctx, config, common.NewRetryPolicy(), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	count, err := store.Count(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Store: %s\nJob listings: %d\n", config.Storage.Type, count)
	return nil
}
