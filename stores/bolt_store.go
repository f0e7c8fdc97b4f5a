package stores

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var checkpointBucket = []byte("checkpoints")

// BoltStore keeps checkpoints as JSON documents in an embedded bbolt file.
// Keys are "<thread>\x00<checkpoint>" so a thread's checkpoints share a prefix.
type BoltStore struct {
	db   *bolt.DB
	path string
}

func NewBoltStore(path string) (*BoltStore, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt store requires a file path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create bolt directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(checkpointBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create bolt bucket: %w", err)
	}
	return &BoltStore{db: db, path: path}, nil
}

func boltKey(threadID, checkpointID string) []byte {
	return []byte(threadID + "\x00" + checkpointID)
}

func (s *BoltStore) Get(_ context.Context, threadID, checkpointID string) (*Checkpoint, error) {
	threadID, checkpointID = normalizeKey(threadID, checkpointID)

	var cp *Checkpoint
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(checkpointBucket).Get(boltKey(threadID, checkpointID))
		if raw == nil {
			return ErrNotFound
		}
		cp = &Checkpoint{}
		return json.Unmarshal(raw, cp)
	})
	if err != nil {
		return nil, err
	}
	return cp, nil
}

func (s *BoltStore) Put(_ context.Context, cp *Checkpoint) error {
	cp.ThreadID, cp.CheckpointID = normalizeKey(cp.ThreadID, cp.CheckpointID)
	key := boltKey(cp.ThreadID, cp.CheckpointID)
	now := time.Now().UTC()

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(checkpointBucket)

		var stored int64
		if raw := b.Get(key); raw != nil {
			var existing Checkpoint
			if err := json.Unmarshal(raw, &existing); err != nil {
				return fmt.Errorf("decode stored checkpoint: %w", err)
			}
			stored = existing.Version
		}
		if stored != cp.Version {
			return ErrVersionConflict
		}

		next := *cp
		next.Version = cp.Version + 1
		next.UpdatedAt = now
		next.Messages = nonNilMessages(cp.Messages)
		raw, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode checkpoint: %w", err)
		}
		return b.Put(key, raw)
	})
	if err != nil {
		return err
	}

	cp.Version++
	cp.UpdatedAt = now
	return nil
}

func (s *BoltStore) List(_ context.Context, threadID string) ([]Checkpoint, error) {
	var prefix []byte
	if threadID != "" {
		prefix = []byte(threadID + "\x00")
	}

	out := []Checkpoint{}
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(checkpointBucket).Cursor()
		k, v := c.First()
		if len(prefix) > 0 {
			k, v = c.Seek(prefix)
		}
		for ; k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var cp Checkpoint
			if err := json.Unmarshal(v, &cp); err != nil {
				return fmt.Errorf("decode checkpoint %q: %w", k, err)
			}
			out = append(out, cp)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) Ping(context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(checkpointBucket) == nil {
			return fmt.Errorf("bolt bucket %s missing", checkpointBucket)
		}
		return nil
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
