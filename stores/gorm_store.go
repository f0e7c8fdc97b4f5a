package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Desarso/shopbot/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// CheckpointRecord is the relational row behind a Checkpoint.
type CheckpointRecord struct {
	ID           uint `gorm:"primarykey"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ThreadID     string         `gorm:"uniqueIndex:idx_thread_checkpoint;not null"`
	CheckpointID string         `gorm:"uniqueIndex:idx_thread_checkpoint;not null"`
	Version      int64          `gorm:"not null"`
	Messages     datatypes.JSON `gorm:"not null"`
	Metadata     datatypes.JSON
}

func (CheckpointRecord) TableName() string { return "checkpoints" }

func (r *CheckpointRecord) toCheckpoint() (*Checkpoint, error) {
	cp := &Checkpoint{
		ThreadID:     r.ThreadID,
		CheckpointID: r.CheckpointID,
		Version:      r.Version,
		UpdatedAt:    r.UpdatedAt,
	}
	if len(r.Messages) > 0 {
		if err := json.Unmarshal(r.Messages, &cp.Messages); err != nil {
			return nil, fmt.Errorf("decode messages for %s/%s: %w", r.ThreadID, r.CheckpointID, err)
		}
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &cp.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s/%s: %w", r.ThreadID, r.CheckpointID, err)
		}
	}
	return cp, nil
}

// GORMStore implements CheckpointStore on any GORM dialect. SQLite and
// PostgreSQL constructors live in their own files.
type GORMStore struct {
	db      *gorm.DB
	dialect string
}

func openGORM(dialect string, dialector gorm.Dialector) (*GORMStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", dialect, err)
	}

	// Auto-migrate the schema
	if err := db.AutoMigrate(&CheckpointRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate %s schema: %w", dialect, err)
	}

	return &GORMStore{db: db, dialect: dialect}, nil
}

// DB exposes the connection so related stores (traces) can share it.
func (s *GORMStore) DB() *gorm.DB {
	return s.db
}

func (s *GORMStore) Get(ctx context.Context, threadID, checkpointID string) (*Checkpoint, error) {
	threadID, checkpointID = normalizeKey(threadID, checkpointID)

	// Find+RowsAffected instead of First keeps "record not found" out of the GORM log.
	var rec CheckpointRecord
	res := s.db.WithContext(ctx).
		Where("thread_id = ? AND checkpoint_id = ?", threadID, checkpointID).
		Limit(1).
		Find(&rec)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to load checkpoint %s/%s: %w", threadID, checkpointID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return rec.toCheckpoint()
}

func (s *GORMStore) Put(ctx context.Context, cp *Checkpoint) error {
	cp.ThreadID, cp.CheckpointID = normalizeKey(cp.ThreadID, cp.CheckpointID)

	messages, err := json.Marshal(nonNilMessages(cp.Messages))
	if err != nil {
		return fmt.Errorf("failed to encode messages: %w", err)
	}
	metadata, err := json.Marshal(cp.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	now := time.Now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if cp.Version == 0 {
			rec := CheckpointRecord{
				ThreadID:     cp.ThreadID,
				CheckpointID: cp.CheckpointID,
				Version:      1,
				Messages:     datatypes.JSON(messages),
				Metadata:     datatypes.JSON(metadata),
				UpdatedAt:    now,
			}
			if err := tx.Create(&rec).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return ErrVersionConflict
				}
				return err
			}
			return nil
		}

		res := tx.Model(&CheckpointRecord{}).
			Where("thread_id = ? AND checkpoint_id = ? AND version = ?", cp.ThreadID, cp.CheckpointID, cp.Version).
			Updates(map[string]interface{}{
				"version":    cp.Version + 1,
				"messages":   datatypes.JSON(messages),
				"metadata":   datatypes.JSON(metadata),
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrVersionConflict
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return err
		}
		return fmt.Errorf("failed to save checkpoint %s/%s: %w", cp.ThreadID, cp.CheckpointID, err)
	}

	cp.Version++
	cp.UpdatedAt = now
	return nil
}

func (s *GORMStore) List(ctx context.Context, threadID string) ([]Checkpoint, error) {
	q := s.db.WithContext(ctx).Order("thread_id ASC, checkpoint_id ASC")
	if threadID != "" {
		q = q.Where("thread_id = ?", threadID)
	}

	var recs []CheckpointRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	out := make([]Checkpoint, 0, len(recs))
	for i := range recs {
		cp, err := recs[i].toCheckpoint()
		if err != nil {
			return nil, err
		}
		out = append(out, *cp)
	}
	return out, nil
}

// Ping checks if the database connection is alive
func (s *GORMStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get %s database instance: %w", s.dialect, err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (s *GORMStore) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get %s database instance: %w", s.dialect, err)
	}
	return sqlDB.Close()
}

func nonNilMessages(msgs []models.Message) []models.Message {
	if msgs == nil {
		return []models.Message{}
	}
	return msgs
}
