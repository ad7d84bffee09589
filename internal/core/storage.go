package core

import (
	"fmt"

	"millroom/internal/infra/persistence/memory"
	"millroom/internal/infra/persistence/postgres"
	"millroom/internal/infra/persistence/sqlite"
	"millroom/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / demos)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and locates the persistent backend. An empty driver
// means sqlite.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// OpenPersistentStore opens the configured backend. A nil engine selects the
// default invariant rules and a nil catalog the standard materials.
func OpenPersistentStore(cfg StorageConfig, engine *RulesEngine, catalog *domain.Catalog) (PersistentStore, error) {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	opts := []memory.Option{memory.WithCatalog(catalog)}
	switch cfg.Driver {
	case StorageMemory:
		return memory.NewStore(engine, opts...), nil
	case StorageSQLite, "":
		return sqlite.NewStore(cfg.SQLitePath, engine, opts...)
	case StoragePostgres:
		return postgres.NewStore(cfg.PostgresDSN, engine, opts...)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}
