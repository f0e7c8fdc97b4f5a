package openai

import (
	"encoding/json"
	"fmt"

	"github.com/Desarso/shopbot/models"
	"github.com/openai/openai-go/v3"
)

// ConvertTools converts tool declarations to SDK function tools.
func ConvertTools(fds []models.FunctionDeclaration) []openai.ChatCompletionToolUnionParam {
	tools := make([]openai.ChatCompletionToolUnionParam, 0, len(fds))
	for _, fd := range fds {
		tools = append(tools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        fd.Name,
			Description: openai.String(fd.Description),
			Parameters:  openai.FunctionParameters(fd.Parameters.Schema()),
		}))
	}
	return tools
}

// wireToolCall is the chat-completions JSON shape of a tool call.
type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

func toMessageParam(m models.Message) (openai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case models.RoleSystem:
		return openai.SystemMessage(m.Content), nil
	case models.RoleUser:
		return openai.UserMessage(m.Content), nil
	case models.RoleTool:
		return openai.ToolMessage(m.Content, m.ToolCallID), nil
	case models.RoleAssistant:
		if !m.HasToolCalls() {
			return openai.AssistantMessage(m.Content), nil
		}
		return assistantToolCallParam(m)
	default:
		return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unsupported role %q", m.Role)
	}
}

// assistantToolCallParam rebuilds an assistant tool-call turn from its wire
// JSON so the SDK produces the exact param shape it expects back.
func assistantToolCallParam(m models.Message) (openai.ChatCompletionMessageParamUnion, error) {
	calls := make([]wireToolCall, 0, len(m.ToolCalls))
	for _, tc := range m.ToolCalls {
		args := tc.Arguments
		if args == nil {
			args = map[string]interface{}{}
		}
		rawArgs, err := json.Marshal(args)
		if err != nil {
			return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("encode arguments of %s: %w", tc.Name, err)
		}
		call := wireToolCall{ID: tc.ID, Type: "function"}
		call.Function.Name = tc.Name
		call.Function.Arguments = string(rawArgs)
		calls = append(calls, call)
	}

	raw, err := json.Marshal(map[string]interface{}{
		"role":       "assistant",
		"content":    m.Content,
		"tool_calls": calls,
	})
	if err != nil {
		return openai.ChatCompletionMessageParamUnion{}, err
	}

	var msg openai.ChatCompletionMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("decode assistant tool call: %w", err)
	}
	return msg.ToParam(), nil
}
