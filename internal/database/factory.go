package database

import (
	"fmt"

	"dupe-go/internal/config"
	"dupe-go/internal/dupe"
)

// NewLedgerFromConfig creates a ledger based on the database config type.
func NewLedgerFromConfig(cfg config.DatabaseConfig, logger dupe.Logger) (*SQLiteLedger, error) {
	opts := Options{BusyTimeout: cfg.BusyTimeout()}
	switch cfg.Type {
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("path required for sqlite database")
		}
		return NewSQLiteLedger(cfg.Path, logger, opts)
	case "memory":
		return NewSQLiteLedger(MemoryPath, logger, opts)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
