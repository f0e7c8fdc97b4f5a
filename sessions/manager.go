package sessions

import (
	"context"
	"errors"

	"github.com/Desarso/shopbot/metrics"
	"github.com/Desarso/shopbot/models"
	"github.com/Desarso/shopbot/stores"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ErrTracesDisabled is returned by the trace accessors when the checkpoint
// backend does not record tool traces.
var ErrTracesDisabled = errors.New("tool traces are not recorded by this store")

// maxPersistAttempts bounds checkpoint writes per turn when other writers
// keep advancing the version.
const maxPersistAttempts = 3

// Manager owns what every session shares: the graph, the checkpoint store
// and the per-thread locks.
type Manager struct {
	graph   *Graph
	store   stores.CheckpointStore
	locks   *threadLocks
	metrics *metrics.Registry
}

func NewManager(graph *Graph, store stores.CheckpointStore, reg *metrics.Registry) *Manager {
	return &Manager{
		graph:   graph,
		store:   store,
		locks:   newThreadLocks(),
		metrics: reg,
	}
}

// NewHTTPSession creates a session for threadID, or the default thread when blank.
func (m *Manager) NewHTTPSession(threadID string) *HTTPSession {
	if threadID == "" {
		threadID = stores.DefaultThreadID
	}
	return &HTTPSession{
		ThreadID: threadID,
		Logger:   log.With().Str("thread_id", threadID).Logger(),
		manager:  m,
	}
}

// NewAgentSession wraps an upgraded websocket connection.
func (m *Manager) NewAgentSession(conn *websocket.Conn) *AgentSession {
	logger := log.With().Str("remote", conn.RemoteAddr().String()).Logger()
	return &AgentSession{
		Writer:  &WebSocketWriter{Conn: conn, Logger: logger},
		Logger:  logger,
		conn:    conn,
		manager: m,
	}
}

// ListCheckpoints summarizes stored checkpoints, optionally for one thread.
func (m *Manager) ListCheckpoints(ctx context.Context, threadID string) ([]models.CheckpointResponse, error) {
	cps, err := m.store.List(ctx, threadID)
	if err != nil {
		return nil, err
	}
	out := make([]models.CheckpointResponse, 0, len(cps))
	for i := range cps {
		out = append(out, cps[i].Summary())
	}
	return out, nil
}

// Ping checks the checkpoint store.
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

// ThreadTraces returns the tool execution traces of a thread in order.
func (m *Manager) ThreadTraces(ctx context.Context, threadID string) ([]*stores.ExecutionTrace, error) {
	if m.graph.traces == nil {
		return nil, ErrTracesDisabled
	}
	if threadID == "" {
		threadID = stores.DefaultThreadID
	}
	return m.graph.traces.GetTracesByThread(ctx, threadID)
}

// ToolCallTraces returns the traces of a single tool call.
func (m *Manager) ToolCallTraces(ctx context.Context, toolCallID string) ([]*stores.ExecutionTrace, error) {
	if m.graph.traces == nil {
		return nil, ErrTracesDisabled
	}
	return m.graph.traces.GetTracesByToolCall(ctx, toolCallID)
}

// DeleteThreadTraces drops the traces of a thread. Checkpoints are kept.
func (m *Manager) DeleteThreadTraces(ctx context.Context, threadID string) error {
	if m.graph.traces == nil {
		return ErrTracesDisabled
	}
	if threadID == "" {
		threadID = stores.DefaultThreadID
	}
	return m.graph.traces.DeleteTracesByThread(ctx, threadID)
}

func (m *Manager) load(ctx context.Context, threadID string) (*stores.Checkpoint, error) {
	cp, err := m.store.Get(ctx, threadID, stores.LatestCheckpointID)
	if errors.Is(err, stores.ErrNotFound) {
		return stores.NewCheckpoint(threadID, stores.LatestCheckpointID), nil
	}
	return cp, err
}
