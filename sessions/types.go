package sessions

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Desarso/shopbot/models"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ErrEmptyInput is returned when a turn is started without user text.
var ErrEmptyInput = errors.New("user_input must not be empty")

// AgentError represents errors that can occur during agent operations
type AgentError struct {
	Message string
	Fatal   bool
}

func (e *AgentError) Error() string {
	return e.Message
}

// AgentInterface defines the interface that agents must implement
type AgentInterface interface {
	// Run asks the model for the next assistant message. messages already
	// include the system prompt.
	Run(ctx context.Context, messages []models.Message) (models.Message, error)
	ExecuteTool(ctx context.Context, call models.ToolCall) (string, error)
	ApproveTool(name string, args map[string]interface{}) (bool, error)
}

// WebSocketWriter serializes writes to a websocket connection.
type WebSocketWriter struct {
	Conn      *websocket.Conn
	Logger    zerolog.Logger
	StartTime time.Time
	mu        sync.Mutex
}

func (w *WebSocketWriter) WriteResponse(resp interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.StartTime.IsZero() {
		w.Logger.Debug().Dur("elapsed", time.Since(w.StartTime)).Msg("writing websocket response")
	}
	return w.Conn.WriteJSON(resp)
}

func (w *WebSocketWriter) WriteError(message string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Conn.WriteJSON(map[string]string{"error": message})
}

// HTTPSession runs chat turns for one thread.
type HTTPSession struct {
	ThreadID string
	Logger   zerolog.Logger

	manager *Manager
}

// AgentSession serves chat turns over a websocket connection. Each inbound
// frame names its own thread.
type AgentSession struct {
	Writer *WebSocketWriter
	Logger zerolog.Logger

	conn    *websocket.Conn
	manager *Manager
}
