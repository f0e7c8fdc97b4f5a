package stores

import (
	"fmt"
)

// Option keys understood by NewStore.
const (
	OptionMongoDatabase   = "database"
	OptionMongoCollection = "collection"
)

// NewStore creates a new checkpoint store based on the configuration
func NewStore(config *StoreConfig) (CheckpointStore, error) {
	switch config.Type {
	case "sqlite":
		return NewSQLiteStore(config)
	case "postgres":
		return NewPostgresStore(config)
	case "bolt":
		return NewBoltStore(config.Connection)
	case "mongo":
		return NewMongoStore(config.Connection,
			config.option(OptionMongoDatabase, "langgraph"),
			config.option(OptionMongoCollection, "checkpoints"))
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}
