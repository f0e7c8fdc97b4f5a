package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Trace statuses.
const (
	TraceStart = "start"
	TraceEnd   = "end"
	TraceError = "error"
)

// ExecutionTrace records one step of a tool execution.
// Indexed by thread_id and tool_call_id for efficient retrieval
type ExecutionTrace struct {
	ID          uint           `gorm:"primarykey" json:"-"`
	CreatedAt   time.Time      `json:"-"`
	ThreadID    string         `gorm:"index:idx_trace_thread;not null" json:"thread_id"`
	ToolCallID  string         `gorm:"index:idx_trace_thread;index:idx_trace_tool;not null" json:"tool_call_id"`
	Tool        string         `json:"tool"`
	Status      string         `gorm:"not null" json:"status"`
	Label       string         `gorm:"not null" json:"label"`
	DetailsJSON string         `gorm:"type:text" json:"-"`
	Details     map[string]any `gorm:"-" json:"details,omitempty"`
	Timestamp   int64          `gorm:"not null" json:"timestamp"`
	DurationMS  int64          `json:"duration_ms,omitempty"`
}

// BeforeSave marshals Details to DetailsJSON
func (t *ExecutionTrace) BeforeSave(tx *gorm.DB) error {
	if t.Details != nil {
		data, err := json.Marshal(t.Details)
		if err != nil {
			return err
		}
		t.DetailsJSON = string(data)
	}
	return nil
}

// AfterFind unmarshals DetailsJSON to Details
func (t *ExecutionTrace) AfterFind(tx *gorm.DB) error {
	if t.DetailsJSON != "" {
		return json.Unmarshal([]byte(t.DetailsJSON), &t.Details)
	}
	return nil
}

// TraceStore persists tool execution traces.
type TraceStore interface {
	SaveTrace(ctx context.Context, trace *ExecutionTrace) error
	GetTracesByThread(ctx context.Context, threadID string) ([]*ExecutionTrace, error)
	GetTracesByToolCall(ctx context.Context, toolCallID string) ([]*ExecutionTrace, error)
	DeleteTracesByThread(ctx context.Context, threadID string) error
}

// GORMTraceStore implements TraceStore for SQLite/PostgreSQL via GORM
type GORMTraceStore struct {
	db *gorm.DB
}

// NewGORMTraceStore creates a trace store from an existing GORM database connection
func NewGORMTraceStore(db *gorm.DB) (*GORMTraceStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if err := db.AutoMigrate(&ExecutionTrace{}); err != nil {
		return nil, fmt.Errorf("failed to migrate execution_traces table: %w", err)
	}
	return &GORMTraceStore{db: db}, nil
}

func (s *GORMTraceStore) SaveTrace(ctx context.Context, trace *ExecutionTrace) error {
	if trace.Timestamp == 0 {
		trace.Timestamp = time.Now().UnixMilli()
	}
	return s.db.WithContext(ctx).Create(trace).Error
}

// GetTracesByThread retrieves all traces for a thread, ordered by timestamp
func (s *GORMTraceStore) GetTracesByThread(ctx context.Context, threadID string) ([]*ExecutionTrace, error) {
	var traces []*ExecutionTrace
	err := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("timestamp ASC, id ASC").
		Find(&traces).Error
	return traces, err
}

// GetTracesByToolCall retrieves all traces for a specific tool call
func (s *GORMTraceStore) GetTracesByToolCall(ctx context.Context, toolCallID string) ([]*ExecutionTrace, error) {
	var traces []*ExecutionTrace
	err := s.db.WithContext(ctx).
		Where("tool_call_id = ?", toolCallID).
		Order("timestamp ASC, id ASC").
		Find(&traces).Error
	return traces, err
}

// DeleteTracesByThread removes all traces for a thread
func (s *GORMTraceStore) DeleteTracesByThread(ctx context.Context, threadID string) error {
	return s.db.WithContext(ctx).Where("thread_id = ?", threadID).Delete(&ExecutionTrace{}).Error
}
