package models

import (
	"context"
	"errors"
)

// ErrMissingAPIKey is returned by model clients constructed without credentials.
var ErrMissingAPIKey = errors.New("model API key is not configured")

// ChatModel produces the next assistant message for a conversation, given
// the tools it may call.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message, tools []FunctionDeclaration) (Message, error)
}

// VisionModel answers a text prompt about a single image and returns the
// model's raw text.
type VisionModel interface {
	Describe(ctx context.Context, prompt string, image InlineData) (string, error)
}
