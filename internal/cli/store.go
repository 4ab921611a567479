package cli

import (
	"context"

	"venue-ledger-api/internal/config"
	"venue-ledger-api/internal/database"
)

// openStore connects to the configured ledger store. Opening applies the schema.
func openStore(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	return database.Open(ctx, database.Options{
		Driver:       cfg.DatabaseDriver,
		DSN:          cfg.DatabaseDSN,
		MaxOpenConns: cfg.DatabaseMaxOpenConns,
		Timeout:      cfg.StoreTimeout,
	})
}

// loadConfig reads the environment and configures logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.SetupLogging()
	return cfg, nil
}
