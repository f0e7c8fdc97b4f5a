package stores

import (
	"fmt"

	"github.com/Desarso/shopbot/models"
	"github.com/rs/zerolog/log"
)

// SanitizeHistory ensures a stored history has a turn structure chat APIs accept
// before it is replayed to the model. It repairs two kinds of damage:
// 1. A history that begins in the middle of a tool cycle
// 2. Tool cycles where a call has no result, or a result names no call
//
// Valid turn patterns:
// - user -> assistant
// - user -> assistant(tool_calls) -> tool... -> assistant(summary) -> assistant
//
// The stored checkpoint itself is never rewritten.
func SanitizeHistory(msgs []models.Message) []models.Message {
	if len(msgs) == 0 {
		return msgs
	}

	startIdx := findValidStartIndex(msgs)
	if startIdx == -1 {
		// Keep the most recent user message so the model has some context.
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Role == models.RoleUser {
				log.Warn().Int("index", i).Msg("history has no valid start, keeping last user message")
				return []models.Message{msgs[i]}
			}
		}
		log.Warn().Int("messages", len(msgs)).Msg("history has no valid start, dropping it")
		return []models.Message{}
	}

	if startIdx > 0 {
		log.Debug().Int("skipped", startIdx).Str("first_role", string(msgs[0].Role)).Msg("skipping orphaned messages at start of history")
		msgs = msgs[startIdx:]
	}

	sanitized := sanitizeToolCycles(msgs)
	if len(sanitized) != len(msgs) {
		log.Debug().Int("removed", len(msgs)-len(sanitized)).Msg("removed messages with broken tool cycles")
	}
	return sanitized
}

// findValidStartIndex returns the first user message or plain assistant
// message. Tool calls and tool results at the start were cut from their cycle.
func findValidStartIndex(msgs []models.Message) int {
	for i, msg := range msgs {
		switch msg.Role {
		case models.RoleUser:
			return i
		case models.RoleAssistant:
			if !msg.HasToolCalls() {
				return i
			}
		case models.RoleTool, models.RoleSystem:
		default:
			return i
		}
	}
	return -1
}

func sanitizeToolCycles(msgs []models.Message) []models.Message {
	result := make([]models.Message, 0, len(msgs))
	i := 0

	for i < len(msgs) {
		msg := msgs[i]

		switch {
		case msg.HasToolCalls():
			cycle, next, ok := collectCompleteCycle(msgs, i)
			if ok {
				result = append(result, cycle...)
			} else {
				log.Debug().Int("index", i).Msg("removing incomplete tool cycle")
			}
			i = next

		case msg.Role == models.RoleTool:
			log.Debug().Int("index", i).Str("tool_call_id", msg.ToolCallID).Msg("removing orphaned tool result")
			i++

		case msg.Role == models.RoleSystem:
			// System prompts are injected per call and never replayed from storage.
			i++

		default:
			result = append(result, msg)
			i++
		}
	}

	return result
}

// collectCompleteCycle gathers an assistant tool-call message and the tool
// results that follow it. The cycle is complete when every call ID has a
// result; results that answer no call are dropped.
func collectCompleteCycle(msgs []models.Message, startIdx int) ([]models.Message, int, bool) {
	call := msgs[startIdx]
	pending := make(map[string]bool, len(call.ToolCalls))
	for _, tc := range call.ToolCalls {
		pending[tc.ID] = true
	}

	cycle := []models.Message{call}
	i := startIdx + 1
	for i < len(msgs) && msgs[i].Role == models.RoleTool {
		if pending[msgs[i].ToolCallID] {
			delete(pending, msgs[i].ToolCallID)
			cycle = append(cycle, msgs[i])
		}
		i++
	}

	if len(pending) > 0 {
		return nil, i, false
	}
	return cycle, i, true
}

// DetectCorruptedHistory checks if the history has any issues that would cause API errors.
// Returns a list of issues found (empty if history is clean).
func DetectCorruptedHistory(msgs []models.Message) []string {
	issues := []string{}
	if len(msgs) == 0 {
		return issues
	}

	switch {
	case msgs[0].Role == models.RoleTool:
		issues = append(issues, "History starts with tool result (orphaned)")
	case msgs[0].HasToolCalls():
		issues = append(issues, "History starts with tool call (truncated mid-cycle)")
	}

	pending := map[string]bool{}
	for _, msg := range msgs {
		switch {
		case msg.HasToolCalls():
			for _, tc := range msg.ToolCalls {
				pending[tc.ID] = true
			}
		case msg.Role == models.RoleTool:
			if pending[msg.ToolCallID] {
				delete(pending, msg.ToolCallID)
			} else {
				issues = append(issues, fmt.Sprintf("tool result %q without preceding tool call", msg.ToolCallID))
			}
		case msg.Role == models.RoleSystem:
			issues = append(issues, "System message stored in history")
		}
	}
	if len(pending) > 0 {
		issues = append(issues, "Orphaned tool call(s) without results")
	}

	for i := 1; i < len(msgs); i++ {
		if msgs[i-1].Role == models.RoleUser && msgs[i].Role == models.RoleUser {
			issues = append(issues, "Two consecutive user messages")
		}
	}

	return issues
}
