package shopbot

import (
	"context"
	"errors"
	"fmt"

	"github.com/Desarso/shopbot/models"
	"github.com/rs/zerolog/log"
)

// Agent binds a chat model to the tools it may call. It satisfies
// sessions.AgentInterface.
type Agent struct {
	Model models.ChatModel
	Tools []models.FunctionDeclaration
}

func Create_Agent(model models.ChatModel, tools []models.FunctionDeclaration) Agent {
	return Agent{
		Model: model,
		Tools: tools,
	}
}

// Run asks the model for the next assistant message.
func (agent *Agent) Run(ctx context.Context, messages []models.Message) (models.Message, error) {
	if agent.Model == nil {
		return models.Message{}, errors.New("agent has no model")
	}
	return agent.Model.Chat(ctx, messages, agent.Tools)
}

// Tool returns the declaration registered under name.
func (agent *Agent) Tool(name string) (models.FunctionDeclaration, bool) {
	for _, tool := range agent.Tools {
		if tool.Name == name {
			return tool, true
		}
	}
	return models.FunctionDeclaration{}, false
}

// ExecuteTool executes a tool by name with the model-supplied arguments
func (agent *Agent) ExecuteTool(ctx context.Context, call models.ToolCall) (string, error) {
	tool, ok := agent.Tool(call.Name)
	if !ok {
		return "", fmt.Errorf("unknown or unavailable tool: %s", call.Name)
	}
	if tool.Callable == nil {
		return "", fmt.Errorf("internal error: tool '%s' is not callable", call.Name)
	}

	args := call.Arguments
	if args == nil {
		args = map[string]interface{}{}
	}
	for _, required := range tool.Parameters.Required {
		if _, ok := args[required]; !ok {
			log.Ctx(ctx).Debug().Str("tool", call.Name).Str("arg", required).Msg("model omitted required argument")
		}
	}
	return tool.Callable(ctx, args)
}

// ApproveTool checks if a tool may run without asking the user
func (agent *Agent) ApproveTool(name string, args map[string]interface{}) (bool, error) {
	if _, ok := agent.Tool(name); !ok {
		return false, nil
	}
	return Tool_Approver(name, args)
}
