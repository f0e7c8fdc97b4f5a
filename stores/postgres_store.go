package stores

import (
	"fmt"

	"gorm.io/driver/postgres"
)

// NewPostgresStore creates a new PostgreSQL-backed checkpoint store
func NewPostgresStore(config *StoreConfig) (*GORMStore, error) {
	if config.Type != "postgres" {
		return nil, fmt.Errorf("invalid store type for PostgreSQL store: %s", config.Type)
	}
	if config.Connection == "" {
		return nil, fmt.Errorf("postgres store requires a DSN")
	}
	return openGORM("PostgreSQL", postgres.Open(config.Connection))
}
