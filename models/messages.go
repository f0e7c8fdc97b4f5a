package models

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// KindToolSummary marks the assistant message produced from a tool result.
// Summaries are part of the history the model sees but are never returned
// to the user as the final reply.
const KindToolSummary = "tool_summary"

// Message is one entry of a conversation thread.
type Message struct {
	Role       Role       `json:"role" bson:"role"`
	Content    string     `json:"content" bson:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty" bson:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty" bson:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty" bson:"name,omitempty"`
	Kind       string     `json:"kind,omitempty" bson:"kind,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string                 `json:"id" bson:"id"`
	Name      string                 `json:"name" bson:"name"`
	Arguments map[string]interface{} `json:"arguments" bson:"arguments"`
}

// HasToolCalls reports whether the message requests at least one tool invocation.
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

// CloneMessages deep copies a message slice, tool call arguments included,
// so neither side observes writes made through the other.
func CloneMessages(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	for i, m := range in {
		if m.ToolCalls != nil {
			calls := make([]ToolCall, len(m.ToolCalls))
			for j, tc := range m.ToolCalls {
				if tc.Arguments != nil {
					tc.Arguments = cloneArgs(tc.Arguments)
				}
				calls[j] = tc
			}
			m.ToolCalls = calls
		}
		out[i] = m
	}
	return out
}

func cloneArgs(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue copies the containers produced by JSON and BSON decoding.
// Other values are immutable or opaque and are shared.
func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return cloneArgs(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// InlineData carries base64 encoded binary content such as an image.
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}
