package core

import (
	"context"
	"fmt"
	"os"

	"undetected/internal/infra/persistence/memory"
	"undetected/internal/infra/persistence/postgres"
	"undetected/internal/infra/persistence/sqlite"
	"undetected/pkg/domain"
)

// StorageDriver identifies a run store backend.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and parameterises a run store.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// StorageConfigFromEnv reads:
//
//	UNDETECTED_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	UNDETECTED_SQLITE_PATH: path to sqlite file (default ./undetected.db)
//	UNDETECTED_POSTGRES_DSN: postgres DSN when driver=postgres
func StorageConfigFromEnv() StorageConfig {
	return StorageConfig{
		Driver:      StorageDriver(os.Getenv("UNDETECTED_STORAGE_DRIVER")),
		SQLitePath:  os.Getenv("UNDETECTED_SQLITE_PATH"),
		PostgresDSN: os.Getenv("UNDETECTED_POSTGRES_DSN"),
	}
}

// OpenRunStore opens the configured backend. Defaults to sqlite.
func OpenRunStore(ctx context.Context, cfg StorageConfig) (domain.RunStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath)
	case StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
