package stores

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Desarso/shopbot/models"
)

// MemoryStore keeps checkpoints in process memory. It is used by tests and
// by deployments that do not need history to survive a restart.
type MemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[[2]string]Checkpoint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{checkpoints: make(map[[2]string]Checkpoint)}
}

func (s *MemoryStore) Get(_ context.Context, threadID, checkpointID string) (*Checkpoint, error) {
	threadID, checkpointID = normalizeKey(threadID, checkpointID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[[2]string{threadID, checkpointID}]
	if !ok {
		return nil, ErrNotFound
	}
	out := copyCheckpoint(cp)
	return &out, nil
}

func (s *MemoryStore) Put(_ context.Context, cp *Checkpoint) error {
	cp.ThreadID, cp.CheckpointID = normalizeKey(cp.ThreadID, cp.CheckpointID)
	key := [2]string{cp.ThreadID, cp.CheckpointID}

	s.mu.Lock()
	defer s.mu.Unlock()

	var stored int64
	if existing, ok := s.checkpoints[key]; ok {
		stored = existing.Version
	}
	if stored != cp.Version {
		return ErrVersionConflict
	}
	cp.Version++
	cp.UpdatedAt = time.Now().UTC()
	s.checkpoints[key] = copyCheckpoint(*cp)
	return nil
}

func (s *MemoryStore) List(_ context.Context, threadID string) ([]Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Checkpoint, 0, len(s.checkpoints))
	for key, cp := range s.checkpoints {
		if threadID != "" && key[0] != threadID {
			continue
		}
		out = append(out, copyCheckpoint(cp))
	}
	sortCheckpoints(out)
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func copyCheckpoint(cp Checkpoint) Checkpoint {
	cp.Messages = models.CloneMessages(cp.Messages)
	if cp.Metadata != nil {
		meta := make(map[string]interface{}, len(cp.Metadata))
		for k, v := range cp.Metadata {
			meta[k] = v
		}
		cp.Metadata = meta
	}
	return cp
}

func sortCheckpoints(cps []Checkpoint) {
	sort.Slice(cps, func(i, j int) bool {
		if cps[i].ThreadID != cps[j].ThreadID {
			return cps[i].ThreadID < cps[j].ThreadID
		}
		return cps[i].CheckpointID < cps[j].CheckpointID
	})
}
