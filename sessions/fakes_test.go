package sessions

import (
	"context"
	"errors"
	"sync"

	"github.com/Desarso/shopbot/models"
)

// fakeAgent answers from a script of replies and records what it was sent.
type fakeAgent struct {
	mu       sync.Mutex
	replies  []models.Message
	respond  func(msgs []models.Message) (models.Message, error)
	calls    [][]models.Message
	executed []models.ToolCall
	toolOut  string
	toolErr  error
	reject   bool
}

func (f *fakeAgent) Run(_ context.Context, msgs []models.Message) (models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, models.CloneMessages(msgs))
	if f.respond != nil {
		return f.respond(msgs)
	}
	if len(f.replies) == 0 {
		return models.Message{}, errors.New("no scripted reply")
	}
	next := f.replies[0]
	f.replies = f.replies[1:]
	return next, nil
}

func (f *fakeAgent) ExecuteTool(_ context.Context, call models.ToolCall) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, call)
	return f.toolOut, f.toolErr
}

func (f *fakeAgent) ApproveTool(string, map[string]interface{}) (bool, error) {
	return !f.reject, nil
}

func finalReply(text string) models.Message {
	return models.Message{Role: models.RoleAssistant, Content: text}
}

func searchCall(id string) models.Message {
	return models.Message{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{
		ID: id, Name: "product_search", Arguments: map[string]interface{}{"query": "red"},
	}}}
}

const oneProductPayload = `{"success":true,"message":"Found 1 products.","query":"red","data":[{"id":"p1","product_name":"Red Shirt","price":1200,"offer_price":800,"colors":["Red"],"sizes":["M"]}]}`
