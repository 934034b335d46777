package core

import (
	"context"
	"fmt"

	"cmrcore/internal/infra/persistence/memory"
	"cmrcore/internal/infra/persistence/postgres"
	"cmrcore/internal/infra/persistence/sqlite"
	"cmrcore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenPersistentStore opens the backend named by cfg.Driver, sqlite when
// empty.
func OpenPersistentStore(ctx context.Context, cfg StorageConfig, engine *domain.RulesEngine) (domain.PersistentStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath, engine)
	case StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// OpenService opens the configured store and wraps it in a Service with the
// configured cache. Options are applied after the cache option so callers
// can still override it.
func OpenService(ctx context.Context, cfg Config, engine *domain.RulesEngine, opts ...Option) (*Service, error) {
	store, err := OpenPersistentStore(ctx, cfg.Storage, engine)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	all := append([]Option{WithCache(NewCache(cfg.Cache.Size, cfg.Cache.TTL))}, opts...)
	return NewService(store, all...), nil
}
