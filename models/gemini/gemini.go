// Package gemini adapts the Gemini API to the models.ChatModel and
// models.VisionModel interfaces.
package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Desarso/shopbot/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const (
	DefaultModel           = "gemini-2.0-flash"
	DefaultVisionMaxTokens = 300
)

type Gemini_Model struct {
	Model           string
	VisionMaxTokens int32

	client *genai.Client
}

// New connects to the Gemini API. An empty key yields a model whose calls
// fail with models.ErrMissingAPIKey.
func New(ctx context.Context, apiKey, model string, timeout time.Duration) (*Gemini_Model, error) {
	if model == "" {
		model = DefaultModel
	}
	g := &Gemini_Model{Model: model, VisionMaxTokens: DefaultVisionMaxTokens}
	if apiKey == "" {
		return g, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	g.client = client
	return g, nil
}

func (g *Gemini_Model) Chat(ctx context.Context, messages []models.Message, tools []models.FunctionDeclaration) (models.Message, error) {
	if g.client == nil {
		return models.Message{}, models.ErrMissingAPIKey
	}

	system, contents := ToContents(messages)
	config := &genai.GenerateContentConfig{SystemInstruction: system}
	if len(tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: ConvertTools(tools)}}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.Model, contents, config)
	if err != nil {
		return models.Message{}, fmt.Errorf("gemini request failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return models.Message{}, fmt.Errorf("gemini returned no candidates")
	}

	log.Ctx(ctx).Debug().Str("model", g.Model).Str("finish_reason", string(resp.Candidates[0].FinishReason)).Msg("gemini completion")
	return FromContent(resp.Candidates[0].Content), nil
}

func (g *Gemini_Model) Describe(ctx context.Context, prompt string, image models.InlineData) (string, error) {
	if g.client == nil {
		return "", models.ErrMissingAPIKey
	}
	data, err := base64.StdEncoding.DecodeString(image.Data)
	if err != nil {
		return "", fmt.Errorf("invalid image data: %w", err)
	}

	contents := []*genai.Content{{
		Role: string(genai.RoleUser),
		Parts: []*genai.Part{
			{Text: prompt},
			{InlineData: &genai.Blob{MIMEType: image.MimeType, Data: data}},
		},
	}}
	config := &genai.GenerateContentConfig{
		MaxOutputTokens:  g.VisionMaxTokens,
		ResponseMIMEType: "application/json",
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.Model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini vision request failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	return FromContent(resp.Candidates[0].Content).Content, nil
}

// ToContents splits out the system instruction and converts the rest of the
// conversation. Consecutive messages that map to the same Gemini role are
// merged into one Content.
func ToContents(messages []models.Message) (*genai.Content, []*genai.Content) {
	var system *genai.Content
	var contents []*genai.Content

	appendParts := func(role string, parts ...*genai.Part) {
		if len(parts) == 0 {
			return
		}
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, parts...)
			return
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}

	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, &genai.Part{Text: m.Content})

		case models.RoleUser:
			appendParts(string(genai.RoleUser), &genai.Part{Text: m.Content})

		case models.RoleAssistant:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: tc.Arguments,
				}})
			}
			appendParts(string(genai.RoleModel), parts...)

		case models.RoleTool:
			appendParts(string(genai.RoleUser), &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       m.ToolCallID,
				Name:     m.Name,
				Response: map[string]any{"output": m.Content},
			}})
		}
	}
	return system, contents
}

// FromContent converts a model turn. Text parts are concatenated.
func FromContent(c *genai.Content) models.Message {
	out := models.Message{Role: models.RoleAssistant}
	var text strings.Builder
	for _, p := range c.Parts {
		if p == nil {
			continue
		}
		if p.Text != "" && !p.Thought {
			text.WriteString(p.Text)
		}
		if p.FunctionCall != nil {
			id := p.FunctionCall.ID
			if id == "" {
				id = uuid.NewString()
			}
			args := p.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}
			out.ToolCalls = append(out.ToolCalls, models.ToolCall{ID: id, Name: p.FunctionCall.Name, Arguments: args})
		}
	}
	out.Content = text.String()
	return out
}

// ConvertTools converts tool declarations to Gemini function declarations.
func ConvertTools(fds []models.FunctionDeclaration) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(fds))
	for _, fd := range fds {
		out = append(out, &genai.FunctionDeclaration{
			Name:        fd.Name,
			Description: fd.Description,
			Parameters:  toSchema(fd.Parameters.Schema()),
		})
	}
	return out
}

// toSchema converts a JSON-schema map into a genai.Schema. Only the
// keywords tool declarations use are carried over.
func toSchema(m map[string]interface{}) *genai.Schema {
	s := &genai.Schema{}
	if t, ok := m["type"].(string); ok {
		s.Type = genai.Type(strings.ToUpper(t))
	}
	if d, ok := m["description"].(string); ok {
		s.Description = d
	}
	if enum, ok := m["enum"].([]string); ok {
		s.Enum = enum
	}
	if props, ok := m["properties"].(map[string]interface{}); ok && len(props) > 0 {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if pm, ok := raw.(map[string]interface{}); ok {
				s.Properties[name] = toSchema(pm)
			}
		}
	}
	if items, ok := m["items"].(map[string]interface{}); ok {
		s.Items = toSchema(items)
	}
	switch req := m["required"].(type) {
	case []string:
		s.Required = req
	case []interface{}:
		for _, r := range req {
			if name, ok := r.(string); ok {
				s.Required = append(s.Required, name)
			}
		}
	}
	return s
}
