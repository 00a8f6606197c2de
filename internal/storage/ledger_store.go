package storage

import (
	"context"
	"fmt"

	"github.com/sheikh-saqib/client-ledger/internal/config"
	interfaces "github.com/sheikh-saqib/client-ledger/internal/interfaces"
	"github.com/sheikh-saqib/client-ledger/internal/storage/memory"
	"github.com/sheikh-saqib/client-ledger/internal/storage/postgres"
	"github.com/sheikh-saqib/client-ledger/internal/storage/sqlite"
)

// Open returns the LedgerStore selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (interfaces.LedgerStore, error) {
	switch cfg.Driver {
	case "", "memory":
		return memory.NewMemoryLedgerStore(), nil
	case "sqlite":
		store, err := sqlite.Open(cfg.SQLitePath, cfg.LogMode)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
