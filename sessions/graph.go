package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Desarso/shopbot/metrics"
	"github.com/Desarso/shopbot/models"
	"github.com/Desarso/shopbot/stores"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// State is a node of the conversation state machine.
type State string

const (
	StateAgent      State = "AGENT"
	StateTools      State = "TOOLS"
	StateToolOutput State = "TOOL_OUTPUT"
	StateDone       State = "DONE"
)

// DefaultMaxRounds bounds the AGENT -> TOOLS transitions of one turn.
const DefaultMaxRounds = 5

// ExhaustedReply is the final answer when the model keeps requesting tools
// after MaxRounds.
const ExhaustedReply = `{"message":"Sorry, I could not complete your request. Please try again.","products":null}`

// GraphConfig configures a Graph.
type GraphConfig struct {
	Agent        AgentInterface
	SystemPrompt string
	MaxRounds    int
	Traces       stores.TraceStore // optional
	Metrics      *metrics.Registry // optional
}

// Graph runs one conversation turn through AGENT, TOOLS and TOOL_OUTPUT until
// the model answers without tool calls.
type Graph struct {
	agent        AgentInterface
	systemPrompt string
	maxRounds    int
	traces       stores.TraceStore
	metrics      *metrics.Registry
}

// TurnResult is the outcome of one turn.
type TurnResult struct {
	// Messages are the messages this turn adds to the thread, starting with
	// the user message.
	Messages []models.Message
	// Steps lists every state visited, ending with StateDone.
	Steps     []State
	Rounds    int
	Exhausted bool
}

func NewGraph(cfg GraphConfig) (*Graph, error) {
	if cfg.Agent == nil {
		return nil, errors.New("graph requires an agent")
	}
	g := &Graph{
		agent:        cfg.Agent,
		systemPrompt: cfg.SystemPrompt,
		maxRounds:    cfg.MaxRounds,
		traces:       cfg.Traces,
		metrics:      cfg.Metrics,
	}
	if g.systemPrompt == "" {
		g.systemPrompt = DefaultSystemPrompt
	}
	if g.maxRounds <= 0 {
		g.maxRounds = DefaultMaxRounds
	}
	return g, nil
}

// Run executes a turn on top of history. history is not modified and the
// system prompt is only sent to the model, never returned.
func (g *Graph) Run(ctx context.Context, threadID string, history []models.Message, userInput string) (*TurnResult, error) {
	logger := log.Ctx(ctx).With().Str("thread_id", threadID).Logger()
	result := &TurnResult{
		Messages: []models.Message{{Role: models.RoleUser, Content: userInput}},
	}
	var roundResults []models.Message

	state := StateAgent
	for state != StateDone {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Steps = append(result.Steps, state)

		switch state {
		case StateAgent:
			reply, err := g.callModel(ctx, history, result.Messages)
			if err != nil {
				return nil, err
			}
			if !reply.HasToolCalls() {
				result.Messages = append(result.Messages, reply)
				state = StateDone
				break
			}
			if result.Rounds >= g.maxRounds {
				logger.Warn().Int("rounds", result.Rounds).Msg("tool rounds exhausted, ending turn")
				result.Messages = append(result.Messages, models.Message{Role: models.RoleAssistant, Content: ExhaustedReply})
				result.Exhausted = true
				state = StateDone
				break
			}
			result.Rounds++
			g.metrics.Inc(ctx, metrics.AgentRounds, nil, 1)
			result.Messages = append(result.Messages, reply)
			state = StateTools

		case StateTools:
			call := result.Messages[len(result.Messages)-1]
			roundResults = roundResults[:0]
			for _, tc := range call.ToolCalls {
				out := g.runTool(ctx, threadID, tc)
				msg := models.Message{Role: models.RoleTool, Content: out, ToolCallID: tc.ID, Name: tc.Name}
				result.Messages = append(result.Messages, msg)
				roundResults = append(roundResults, msg)
			}
			state = StateToolOutput

		case StateToolOutput:
			summaries := make([]string, 0, len(roundResults))
			for _, r := range roundResults {
				summaries = append(summaries, FormatToolOutput(r.Content))
			}
			result.Messages = append(result.Messages, models.Message{
				Role:    models.RoleAssistant,
				Content: strings.Join(summaries, "\n\n"),
				Kind:    models.KindToolSummary,
			})
			state = StateAgent
		}
	}
	result.Steps = append(result.Steps, StateDone)

	logger.Debug().
		Int("rounds", result.Rounds).
		Int("new_messages", len(result.Messages)).
		Bool("exhausted", result.Exhausted).
		Msg("turn finished")
	return result, nil
}

func (g *Graph) callModel(ctx context.Context, history, turn []models.Message) (models.Message, error) {
	msgs := make([]models.Message, 0, len(history)+len(turn)+1)
	msgs = append(msgs, models.Message{Role: models.RoleSystem, Content: g.systemPrompt})
	msgs = append(msgs, history...)
	msgs = append(msgs, turn...)

	reply, err := g.agent.Run(ctx, msgs)
	if err != nil {
		return models.Message{}, fmt.Errorf("agent error: %w", err)
	}
	reply.Role = models.RoleAssistant
	reply.Kind = ""
	for i := range reply.ToolCalls {
		if reply.ToolCalls[i].ID == "" {
			reply.ToolCalls[i].ID = "call_" + uuid.NewString()
		}
		if reply.ToolCalls[i].Arguments == nil {
			reply.ToolCalls[i].Arguments = map[string]interface{}{}
		}
	}
	return reply, nil
}

// runTool executes one call and always returns a payload; refusals and
// failures are encoded as unsuccessful results for the model to read.
func (g *Graph) runTool(ctx context.Context, threadID string, call models.ToolCall) string {
	logger := log.Ctx(ctx).With().Str("tool", call.Name).Str("tool_call_id", call.ID).Logger()

	approved, err := g.agent.ApproveTool(call.Name, call.Arguments)
	if err != nil || !approved {
		logger.Warn().Err(err).Msg("tool call rejected")
		g.metrics.Inc(ctx, metrics.ToolCalls, map[string]string{"tool": call.Name, "status": "rejected"}, 1)
		return failurePayload(fmt.Sprintf("Tool %s is not available", call.Name))
	}

	start := time.Now()
	g.trace(ctx, threadID, call, stores.TraceStart, nil, 0)
	out, err := g.agent.ExecuteTool(ctx, call)
	elapsed := time.Since(start)
	if err != nil {
		logger.Error().Err(err).Dur("duration", elapsed).Msg("tool execution failed")
		g.trace(ctx, threadID, call, stores.TraceError, map[string]any{"error": err.Error()}, elapsed)
		g.metrics.Inc(ctx, metrics.ToolCalls, map[string]string{"tool": call.Name, "status": "error"}, 1)
		return failurePayload(err.Error())
	}

	logger.Info().Dur("duration", elapsed).Int("bytes", len(out)).Msg("tool executed")
	g.trace(ctx, threadID, call, stores.TraceEnd, map[string]any{"bytes": len(out)}, elapsed)
	g.metrics.Inc(ctx, metrics.ToolCalls, map[string]string{"tool": call.Name, "status": "ok"}, 1)
	return out
}

func (g *Graph) trace(ctx context.Context, threadID string, call models.ToolCall, status string, details map[string]any, elapsed time.Duration) {
	if g.traces == nil {
		return
	}
	err := g.traces.SaveTrace(ctx, &stores.ExecutionTrace{
		ThreadID:   threadID,
		ToolCallID: call.ID,
		Tool:       call.Name,
		Status:     status,
		Label:      call.Name,
		Details:    details,
		Timestamp:  time.Now().UnixMilli(),
		DurationMS: elapsed.Milliseconds(),
	})
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to save tool trace")
	}
}

func failurePayload(msg string) string {
	out, _ := json.Marshal(models.CatalogResult{Success: false, Error: msg, Data: []json.RawMessage{}})
	return string(out)
}
