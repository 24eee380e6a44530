package storage

import (
	"fmt"

	"genquota/internal/models"
)

// NewUsageStore instantiates a storage backend based on configuration.
// Supported providers:
//   - memory: in-memory storage (for testing/development)
//   - postgres: PostgreSQL storage (production-ready, multi-instance safe)
//   - sqlite: SQLite storage (lightweight single-node deployments)
func NewUsageStore(cfg models.StorageConfig) (UsageStore, error) {
	config := Config{
		Type:             cfg.Type,
		ConnectionString: cfg.Database.DSN,
		QueryTimeout:     cfg.Database.QueryTimeout,
	}

	switch cfg.Type {
	case models.StorageTypeMemory:
		return NewMemoryStore(config)
	case models.StorageTypePostgres:
		return NewPostgresStore(config)
	case models.StorageTypeSQLite:
		return NewSQLiteStore(config)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
