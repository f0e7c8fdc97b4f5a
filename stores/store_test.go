package stores

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Desarso/shopbot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns every store that runs without an external server.
func backends(t *testing.T) map[string]CheckpointStore {
	t.Helper()
	dir := t.TempDir()

	sqliteStore, err := NewSQLiteStore(NewStoreConfig("sqlite", filepath.Join(dir, "checkpoints.sqlite")))
	require.NoError(t, err)
	boltStore, err := NewBoltStore(filepath.Join(dir, "checkpoints.bolt"))
	require.NoError(t, err)

	stores := map[string]CheckpointStore{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
		"bolt":   boltStore,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestCheckpointStore_GetMissing(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), "nope", "")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestCheckpointStore_PutThenGet(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			cp := NewCheckpoint("t1", "")
			cp.Messages = []models.Message{
				{Role: models.RoleUser, Content: "hi"},
				{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "c1", Name: "product_search", Arguments: map[string]interface{}{"query": "shoes"}}}},
				{Role: models.RoleTool, ToolCallID: "c1", Name: "product_search", Content: `{"success":true}`},
			}
			cp.Metadata["step"] = "1"
			require.NoError(t, store.Put(ctx, cp))
			assert.Equal(t, int64(1), cp.Version)

			got, err := store.Get(ctx, "t1", LatestCheckpointID)
			require.NoError(t, err)
			assert.Equal(t, int64(1), got.Version)
			assert.Equal(t, cp.Messages, got.Messages)
			assert.Equal(t, "1", got.Metadata["step"])
		})
	}
}

func TestCheckpointStore_GetIsRepeatable(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			cp := NewCheckpoint("t1", "")
			cp.Messages = []models.Message{
				{Role: models.RoleUser, Content: "red shoes"},
				{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "c1", Name: "product_search", Arguments: map[string]interface{}{"query": "red shoes"}}}},
			}
			cp.Metadata["step"] = "1"
			require.NoError(t, store.Put(ctx, cp))

			first, err := store.Get(ctx, "t1", "")
			require.NoError(t, err)
			second, err := store.Get(ctx, "t1", "")
			require.NoError(t, err)
			assert.Equal(t, first, second)

			// writes to a returned checkpoint never reach the store
			first.Messages[0].Content = "mutated"
			first.Messages[1].ToolCalls[0].Arguments["query"] = "mutated"
			first.Metadata["step"] = "mutated"

			third, err := store.Get(ctx, "t1", "")
			require.NoError(t, err)
			assert.Equal(t, second, third)
			assert.Equal(t, "red shoes", third.Messages[1].ToolCalls[0].Arguments["query"])
		})
	}
}

func TestCheckpointStore_DefaultKeys(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			cp := &Checkpoint{Messages: []models.Message{{Role: models.RoleUser, Content: "x"}}}
			require.NoError(t, store.Put(ctx, cp))
			assert.Equal(t, DefaultThreadID, cp.ThreadID)
			assert.Equal(t, LatestCheckpointID, cp.CheckpointID)

			got, err := store.Get(ctx, "", "")
			require.NoError(t, err)
			assert.Len(t, got.Messages, 1)
		})
	}
}

func TestCheckpointStore_StaleVersionConflicts(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put(ctx, NewCheckpoint("t1", "")))

			a, err := store.Get(ctx, "t1", "")
			require.NoError(t, err)
			b, err := store.Get(ctx, "t1", "")
			require.NoError(t, err)

			a.Messages = append(a.Messages, models.Message{Role: models.RoleUser, Content: "a"})
			require.NoError(t, store.Put(ctx, a))

			b.Messages = append(b.Messages, models.Message{Role: models.RoleUser, Content: "b"})
			assert.ErrorIs(t, store.Put(ctx, b), ErrVersionConflict)

			// A second insert of a fresh checkpoint is also a conflict.
			assert.ErrorIs(t, store.Put(ctx, NewCheckpoint("t1", "")), ErrVersionConflict)

			got, err := store.Get(ctx, "t1", "")
			require.NoError(t, err)
			require.Len(t, got.Messages, 1)
			assert.Equal(t, "a", got.Messages[0].Content)
			assert.Equal(t, int64(2), got.Version)
		})
	}
}

func TestCheckpointStore_List(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put(ctx, NewCheckpoint("b", "")))
			require.NoError(t, store.Put(ctx, NewCheckpoint("a", "")))
			require.NoError(t, store.Put(ctx, NewCheckpoint("a", "other")))

			all, err := store.List(ctx, "")
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "a", all[0].ThreadID)
			assert.Equal(t, "b", all[2].ThreadID)

			onlyA, err := store.List(ctx, "a")
			require.NoError(t, err)
			assert.Len(t, onlyA, 2)

			none, err := store.List(ctx, "zzz")
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestMemoryStore_ConcurrentWritersOneWinsPerVersion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, NewCheckpoint("t", "")))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cp := &Checkpoint{ThreadID: "t", Version: 1}
			if err := store.Put(ctx, cp); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	cp := NewCheckpoint("t", "")
	cp.Messages = []models.Message{{Role: models.RoleUser, Content: "hi"}}
	require.NoError(t, store.Put(ctx, cp))

	got, err := store.Get(ctx, "t", "")
	require.NoError(t, err)
	got.Messages[0].Content = "mutated"

	again, err := store.Get(ctx, "t", "")
	require.NoError(t, err)
	assert.Equal(t, "hi", again.Messages[0].Content)
}

func TestMongoDocument_RoundTripFields(t *testing.T) {
	cp := NewCheckpoint("t", "")
	cp.Version = 3
	doc := toDocument(cp)
	assert.Equal(t, "t", doc.ThreadID)
	assert.Equal(t, LatestCheckpointID, doc.CheckpointID)
	assert.NotNil(t, doc.Messages)

	back := doc.toCheckpoint()
	assert.Equal(t, int64(3), back.Version)
	assert.Equal(t, cp.ThreadID, back.ThreadID)
}

func TestNewStore_UnsupportedType(t *testing.T) {
	_, err := NewStore(NewStoreConfig("cassandra", ""))
	assert.Error(t, err)

	s, err := NewStore(NewStoreConfig("memory", ""))
	require.NoError(t, err)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestGORMTraceStore_SaveAndQuery(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(NewStoreConfig("sqlite", filepath.Join(t.TempDir(), "traces.sqlite")))
	require.NoError(t, err)
	defer store.Close()

	traces, err := NewGORMTraceStore(store.DB())
	require.NoError(t, err)

	require.NoError(t, traces.SaveTrace(ctx, &ExecutionTrace{ThreadID: "t", ToolCallID: "c1", Tool: "product_search", Status: TraceStart, Label: "product_search", Timestamp: 1}))
	require.NoError(t, traces.SaveTrace(ctx, &ExecutionTrace{ThreadID: "t", ToolCallID: "c1", Tool: "product_search", Status: TraceEnd, Label: "product_search", Timestamp: 2, Details: map[string]any{"bytes": 10}}))

	byThread, err := traces.GetTracesByThread(ctx, "t")
	require.NoError(t, err)
	require.Len(t, byThread, 2)
	assert.Equal(t, TraceStart, byThread[0].Status)
	assert.EqualValues(t, 10, byThread[1].Details["bytes"])

	byCall, err := traces.GetTracesByToolCall(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, byCall, 2)

	require.NoError(t, traces.DeleteTracesByThread(ctx, "t"))
	byThread, err = traces.GetTracesByThread(ctx, "t")
	require.NoError(t, err)
	assert.Empty(t, byThread)
}
