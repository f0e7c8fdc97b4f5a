package stores

import (
	"fmt"

	"gorm.io/driver/sqlite"
)

// NewSQLiteStore creates a new SQLite-backed checkpoint store
func NewSQLiteStore(config *StoreConfig) (*GORMStore, error) {
	if config.Type != "sqlite" {
		return nil, fmt.Errorf("invalid store type for SQLite store: %s", config.Type)
	}
	if config.Connection == "" {
		return nil, fmt.Errorf("sqlite store requires a file path")
	}
	return openGORM("SQLite", sqlite.Open(config.Connection))
}
