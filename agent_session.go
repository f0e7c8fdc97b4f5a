package shopbot

import (
	"context"
	"fmt"
	"strings"

	"github.com/Desarso/shopbot/common_tools"
	"github.com/Desarso/shopbot/metrics"
	"github.com/Desarso/shopbot/models"
	"github.com/Desarso/shopbot/models/gemini"
	openaimodel "github.com/Desarso/shopbot/models/openai"
	"github.com/Desarso/shopbot/sessions"
	"github.com/Desarso/shopbot/stores"
	"github.com/rs/zerolog/log"
)

// Re-export session types
type AgentSession = sessions.AgentSession
type HTTPSession = sessions.HTTPSession
type WebSocketWriter = sessions.WebSocketWriter
type AgentError = sessions.AgentError
type AgentInterface = sessions.AgentInterface

// Services is the assembled application: checkpoint persistence, the chat
// session manager and the image classifier.
type Services struct {
	Config   *Config
	Store    stores.CheckpointStore
	Traces   stores.TraceStore
	Agent    *Agent
	Manager  *sessions.Manager
	Analyzer *common_tools.ImageAnalyzer
	Metrics  *metrics.Registry
}

// BuildModels creates the chat and vision models of the configured provider.
// Vision calls get their own, longer timeout.
func BuildModels(ctx context.Context, cfg *Config) (models.ChatModel, models.VisionModel, error) {
	switch strings.ToLower(cfg.LLMProvider) {
	case "gemini":
		chat, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.HTTPTimeout)
		if err != nil {
			return nil, nil, err
		}
		vision, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.VisionTimeout)
		if err != nil {
			return nil, nil, err
		}
		if cfg.VisionMaxTokens > 0 {
			vision.VisionMaxTokens = int32(cfg.VisionMaxTokens)
		}
		return chat, vision, nil
	case "openai", "":
		chat := openaimodel.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.HTTPTimeout)
		vision := openaimodel.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.VisionTimeout)
		if cfg.VisionMaxTokens > 0 {
			vision.VisionMaxTokens = int64(cfg.VisionMaxTokens)
		}
		return chat, vision, nil
	default:
		return nil, nil, fmt.Errorf("unsupported LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

// NewServices opens the configured store and models and assembles the
// application around them.
func NewServices(ctx context.Context, cfg *Config, reg *metrics.Registry) (*Services, error) {
	store, err := stores.NewStore(cfg.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.StoreType, err)
	}
	chat, vision, err := BuildModels(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	svc, err := Assemble(cfg, store, chat, vision, reg)
	if err != nil {
		store.Close()
		return nil, err
	}
	return svc, nil
}

// Assemble wires already constructed dependencies. Relational stores also
// record tool execution traces.
func Assemble(cfg *Config, store stores.CheckpointStore, chat models.ChatModel, vision models.VisionModel, reg *metrics.Registry) (*Services, error) {
	var traces stores.TraceStore
	if g, ok := store.(*stores.GORMStore); ok {
		ts, err := stores.NewGORMTraceStore(g.DB())
		if err != nil {
			return nil, fmt.Errorf("failed to create trace store: %w", err)
		}
		traces = ts
	}

	catalog := common_tools.NewCatalogClient(cfg.CatalogBaseURL, cfg.CatalogPageSize, cfg.HTTPTimeout)
	agent := Create_Agent(chat, common_tools.DefaultTools(catalog))

	graph, err := sessions.NewGraph(sessions.GraphConfig{
		Agent:     &agent,
		MaxRounds: cfg.MaxRounds,
		Traces:    traces,
		Metrics:   reg,
	})
	if err != nil {
		return nil, err
	}

	vocabulary := common_tools.NewVocabularyClient(cfg.CatalogBaseURL, cfg.HTTPTimeout)
	log.Info().
		Str("provider", cfg.LLMProvider).
		Str("store", cfg.StoreType).
		Bool("traces", traces != nil).
		Int("max_rounds", cfg.MaxRounds).
		Msg("services assembled")

	return &Services{
		Config:   cfg,
		Store:    store,
		Traces:   traces,
		Agent:    &agent,
		Manager:  sessions.NewManager(graph, store, reg),
		Analyzer: common_tools.NewImageAnalyzer(vocabulary, vision),
		Metrics:  reg,
	}, nil
}

// Close releases the checkpoint store.
func (s *Services) Close() error {
	return s.Store.Close()
}
