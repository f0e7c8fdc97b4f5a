package stores

import (
	"context"
	"errors"
	"time"

	"github.com/Desarso/shopbot/models"
)

const (
	// DefaultThreadID is used when a caller does not name a thread.
	DefaultThreadID = "default-thread"
	// LatestCheckpointID names the single rolling checkpoint kept per thread.
	LatestCheckpointID = "latest"
)

var (
	// ErrNotFound is returned when no checkpoint exists for the key.
	ErrNotFound = errors.New("checkpoint not found")
	// ErrVersionConflict is returned by Put when the stored version no longer
	// matches the version the caller read.
	ErrVersionConflict = errors.New("checkpoint version conflict")
)

// Checkpoint is the persisted conversation state of one thread.
//
// Version is the optimistic-concurrency stamp: Put succeeds only when the
// stored version equals Version, and on success Version is advanced by one.
// A checkpoint that was never stored has Version 0.
type Checkpoint struct {
	ThreadID     string                 `json:"thread_id"`
	CheckpointID string                 `json:"checkpoint_id"`
	Version      int64                  `json:"version"`
	Messages     []models.Message       `json:"messages"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// NewCheckpoint returns an unsaved checkpoint for the thread, applying the
// default thread and checkpoint IDs when they are blank.
func NewCheckpoint(threadID, checkpointID string) *Checkpoint {
	threadID, checkpointID = normalizeKey(threadID, checkpointID)
	return &Checkpoint{
		ThreadID:     threadID,
		CheckpointID: checkpointID,
		Metadata:     map[string]interface{}{},
	}
}

// Summary describes the checkpoint without its messages.
func (c *Checkpoint) Summary() models.CheckpointResponse {
	return models.CheckpointResponse{
		ThreadID:     c.ThreadID,
		CheckpointID: c.CheckpointID,
		Version:      c.Version,
		MessageCount: len(c.Messages),
		Metadata:     c.Metadata,
		UpdatedAt:    c.UpdatedAt,
	}
}

// CheckpointStore persists conversation checkpoints keyed by
// (thread ID, checkpoint ID).
type CheckpointStore interface {
	// Get loads a checkpoint. Blank IDs fall back to the defaults.
	Get(ctx context.Context, threadID, checkpointID string) (*Checkpoint, error)

	// Put stores cp if its Version matches the stored one, then advances
	// cp.Version and cp.UpdatedAt. It returns ErrVersionConflict otherwise.
	Put(ctx context.Context, cp *Checkpoint) error

	// List returns the checkpoints of a thread, or of every thread when
	// threadID is empty.
	List(ctx context.Context, threadID string) ([]Checkpoint, error)

	Ping(ctx context.Context) error
	Close() error
}

// StoreConfig holds configuration for checkpoint stores
type StoreConfig struct {
	Type       string            `json:"type"`       // "sqlite", "postgres", "bolt", "mongo", "memory"
	Connection string            `json:"connection"` // DSN, file path or URI
	Options    map[string]string `json:"options"`    // backend specific options
}

// NewStoreConfig creates a new store configuration
func NewStoreConfig(storeType, connection string) *StoreConfig {
	return &StoreConfig{
		Type:       storeType,
		Connection: connection,
		Options:    make(map[string]string),
	}
}

// WithOption adds an option to the store configuration
func (c *StoreConfig) WithOption(key, value string) *StoreConfig {
	if c.Options == nil {
		c.Options = make(map[string]string)
	}
	c.Options[key] = value
	return c
}

func (c *StoreConfig) option(key, fallback string) string {
	if v, ok := c.Options[key]; ok && v != "" {
		return v
	}
	return fallback
}

func normalizeKey(threadID, checkpointID string) (string, string) {
	if threadID == "" {
		threadID = DefaultThreadID
	}
	if checkpointID == "" {
		checkpointID = LatestCheckpointID
	}
	return threadID, checkpointID
}
