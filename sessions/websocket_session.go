package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Desarso/shopbot/models"
	"github.com/gorilla/websocket"
)

// Serve reads chat frames until the client disconnects or ctx ends. Each
// frame {"thread_id","user_input"} runs one turn and is answered with
// {"data": {"message","products"}} or {"error": "..."}.
func (as *AgentSession) Serve(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		_, raw, err := as.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				as.Logger.Debug().Msg("websocket closed by client")
				return nil
			}
			return err
		}

		var req models.Chat_Request
		if err := json.Unmarshal(raw, &req); err != nil {
			if werr := as.sendError("invalid message: expected {\"thread_id\", \"user_input\"}", false); werr != nil {
				return werr
			}
			continue
		}

		if err := as.runTurn(ctx, req); err != nil {
			var agentErr *AgentError
			if errors.As(err, &agentErr) && agentErr.Fatal {
				return err
			}
		}
	}
}

func (as *AgentSession) runTurn(ctx context.Context, req models.Chat_Request) error {
	as.Writer.StartTime = time.Now()
	reply, err := as.manager.NewHTTPSession(req.ThreadID).RunTurn(ctx, req.UserInput)
	if err != nil {
		as.Logger.Error().Err(err).Str("thread_id", req.ThreadID).Msg("websocket chat turn failed")
		msg := "Failed to process chat turn"
		if errors.Is(err, ErrEmptyInput) {
			msg = err.Error()
		}
		return as.sendError(msg, false)
	}
	if err := as.Writer.WriteResponse(map[string]interface{}{"data": reply}); err != nil {
		return &AgentError{Message: "failed to write response: " + err.Error(), Fatal: true}
	}
	return nil
}

// sendError reports an error to the client. A failed write is fatal.
func (as *AgentSession) sendError(message string, fatal bool) error {
	if err := as.Writer.WriteError(message); err != nil {
		return &AgentError{Message: "failed to write error: " + err.Error(), Fatal: true}
	}
	if fatal {
		return &AgentError{Message: message, Fatal: true}
	}
	return nil
}
