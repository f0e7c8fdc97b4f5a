package sessions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Desarso/shopbot/metrics"
	"github.com/Desarso/shopbot/models"
	"github.com/Desarso/shopbot/stores"
)

// RunTurn handles a complete request-response cycle: load the thread's
// checkpoint, run the graph on the sanitized history, persist the new
// messages and return the user-facing reply.
func (s *HTTPSession) RunTurn(ctx context.Context, userInput string) (models.ChatReply, error) {
	reply, _, err := s.RunTurnWithResult(ctx, userInput)
	return reply, err
}

// RunTurnWithResult is RunTurn that also returns the graph's TurnResult.
func (s *HTTPSession) RunTurnWithResult(ctx context.Context, userInput string) (models.ChatReply, *TurnResult, error) {
	if strings.TrimSpace(userInput) == "" {
		return models.ChatReply{}, nil, ErrEmptyInput
	}
	m := s.manager

	unlock := m.locks.Lock(s.ThreadID)
	defer unlock()

	cp, err := m.load(ctx, s.ThreadID)
	if err != nil {
		return models.ChatReply{}, nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	history := stores.SanitizeHistory(cp.Messages)
	if issues := stores.DetectCorruptedHistory(cp.Messages); len(issues) > 0 {
		s.Logger.Warn().Strs("issues", issues).Msg("stored history needed repair")
	}

	result, err := m.graph.Run(ctx, s.ThreadID, history, userInput)
	if err != nil {
		m.metrics.Inc(ctx, metrics.ChatTurns, map[string]string{"outcome": "error"}, 1)
		return models.ChatReply{}, nil, err
	}

	if err := s.persist(ctx, cp, result); err != nil {
		m.metrics.Inc(ctx, metrics.ChatTurns, map[string]string{"outcome": "persist_error"}, 1)
		return models.ChatReply{}, nil, fmt.Errorf("failed to save checkpoint: %w", err)
	}

	outcome := "ok"
	if result.Exhausted {
		outcome = "exhausted"
	}
	m.metrics.Inc(ctx, metrics.ChatTurns, map[string]string{"outcome": outcome}, 1)
	s.Logger.Info().
		Int("rounds", result.Rounds).
		Int("history", len(history)).
		Str("outcome", outcome).
		Msg("chat turn completed")

	return ExtractReply(result.Messages), result, nil
}

// persist appends the turn to the checkpoint with a compare-and-swap write.
// On a version conflict the latest checkpoint is re-read and only this
// turn's messages are appended again.
func (s *HTTPSession) persist(ctx context.Context, cp *stores.Checkpoint, result *TurnResult) error {
	m := s.manager
	for attempt := 1; ; attempt++ {
		turns := metaInt(cp.Metadata, "turns") + 1
		cp.Messages = append(models.CloneMessages(cp.Messages), result.Messages...)
		cp.Metadata = map[string]interface{}{
			"source":    "loop",
			"turns":     turns,
			"rounds":    result.Rounds,
			"exhausted": result.Exhausted,
		}

		err := m.store.Put(ctx, cp)
		if err == nil {
			return nil
		}
		if !errors.Is(err, stores.ErrVersionConflict) || attempt >= maxPersistAttempts {
			return err
		}

		m.metrics.Inc(ctx, metrics.CheckpointConflicts, nil, 1)
		s.Logger.Warn().Int("attempt", attempt).Msg("checkpoint version conflict, retrying")
		fresh, err := m.load(ctx, s.ThreadID)
		if err != nil {
			return err
		}
		cp = fresh
	}
}

// GetChatHistory returns the persisted messages of the thread.
func (s *HTTPSession) GetChatHistory(ctx context.Context) ([]models.Message, error) {
	cp, err := s.manager.load(ctx, s.ThreadID)
	if err != nil {
		return nil, err
	}
	if cp.Messages == nil {
		return []models.Message{}, nil
	}
	return cp.Messages, nil
}

func metaInt(meta map[string]interface{}, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
