// Package openai adapts OpenAI-compatible chat completion endpoints to the
// models.ChatModel and models.VisionModel interfaces.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Desarso/shopbot/models"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog/log"
)

const (
	DefaultModel           = "gpt-4o"
	DefaultVisionMaxTokens = 300
)

type OpenAI_Model struct {
	Model           string
	VisionMaxTokens int64

	client openai.Client
	hasKey bool
}

// New builds a client. baseURL may be empty to use the public API; timeout
// bounds every request.
func New(apiKey, baseURL, model string, timeout time.Duration) *OpenAI_Model {
	if model == "" {
		model = DefaultModel
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAI_Model{
		Model:           model,
		VisionMaxTokens: DefaultVisionMaxTokens,
		client:          openai.NewClient(opts...),
		hasKey:          apiKey != "",
	}
}

func (o *OpenAI_Model) Chat(ctx context.Context, messages []models.Message, tools []models.FunctionDeclaration) (models.Message, error) {
	if !o.hasKey {
		return models.Message{}, models.ErrMissingAPIKey
	}

	params, err := o.chatParams(messages, tools)
	if err != nil {
		return models.Message{}, err
	}

	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return models.Message{}, fmt.Errorf("openai request failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return models.Message{}, fmt.Errorf("openai returned no choices")
	}

	log.Ctx(ctx).Debug().
		Str("model", completion.Model).
		Int64("prompt_tokens", completion.Usage.PromptTokens).
		Int64("completion_tokens", completion.Usage.CompletionTokens).
		Str("finish_reason", completion.Choices[0].FinishReason).
		Msg("chat completion")

	return fromCompletionMessage(ctx, completion.Choices[0].Message), nil
}

// Describe sends one prompt plus one inline image and returns the raw reply text.
func (o *OpenAI_Model) Describe(ctx context.Context, prompt string, image models.InlineData) (string, error) {
	if !o.hasKey {
		return "", models.ErrMissingAPIKey
	}

	params := openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(o.Model),
		MaxTokens: openai.Int(o.VisionMaxTokens),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
							{OfText: &openai.ChatCompletionContentPartTextParam{
								Text: prompt,
							}},
							{OfImageURL: &openai.ChatCompletionContentPartImageParam{
								ImageURL: openai.ChatCompletionContentPartImageImageURLParam{
									URL:    dataURL(image),
									Detail: "auto",
								},
							}},
						},
					},
				},
			},
		},
	}

	response, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai vision request failed: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return response.Choices[0].Message.Content, nil
}

func (o *OpenAI_Model) chatParams(messages []models.Message, tools []models.FunctionDeclaration) (openai.ChatCompletionNewParams, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.Model),
	}
	for i, m := range messages {
		p, err := toMessageParam(m)
		if err != nil {
			return params, fmt.Errorf("message %d: %w", i, err)
		}
		params.Messages = append(params.Messages, p)
	}
	if len(tools) > 0 {
		params.Tools = ConvertTools(tools)
	}
	return params, nil
}

func dataURL(image models.InlineData) string {
	mimeType := image.MimeType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return "data:" + mimeType + ";base64," + image.Data
}

// fromCompletionMessage converts the SDK reply into a models.Message.
// Unparseable tool arguments become an empty argument map.
func fromCompletionMessage(ctx context.Context, msg openai.ChatCompletionMessage) models.Message {
	out := models.Message{Role: models.RoleAssistant, Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		args := map[string]interface{}{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				log.Ctx(ctx).Warn().Err(err).Str("tool", tc.Function.Name).Msg("tool arguments are not valid JSON")
				args = map[string]interface{}{}
			}
		}
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return out
}
