package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Desarso/shopbot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Model     string                   `json:"model"`
	MaxTokens int                      `json:"max_tokens"`
	Messages  []map[string]interface{} `json:"messages"`
	Tools     []map[string]interface{} `json:"tools"`
}

func fakeCompletions(t *testing.T, reply string, captured *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const toolCallReply = `{
  "id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o",
  "choices": [{"index": 0, "finish_reason": "tool_calls", "message": {
    "role": "assistant", "content": null,
    "tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "product_search", "arguments": "{\"query\":\"red shirts\"}"}}]
  }}],
  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

const textReply = `{
  "id": "chatcmpl-2", "object": "chat.completion", "created": 1, "model": "gpt-4o",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "{\"category\":\"Jeans\",\"color\":\"blue\"}"}}]
}`

func searchTool() models.FunctionDeclaration {
	return models.FunctionDeclaration{
		Name:        "product_search",
		Description: "Search for products",
		Parameters: models.Parameters{
			Type:       "object",
			Properties: map[string]interface{}{"query": map[string]interface{}{"type": "string"}},
			Required:   []string{"query"},
		},
	}
}

func TestChat_ParsesToolCalls(t *testing.T) {
	var captured capturedRequest
	srv := fakeCompletions(t, toolCallReply, &captured)
	model := New("test-key", srv.URL+"/v1/", "gpt-4o", 5*time.Second)

	history := []models.Message{
		{Role: models.RoleSystem, Content: "be helpful"},
		{Role: models.RoleUser, Content: "earlier"},
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "call_0", Name: "product_search", Arguments: map[string]interface{}{"query": "x"}}}},
		{Role: models.RoleTool, ToolCallID: "call_0", Name: "product_search", Content: `{"success":true}`},
		{Role: models.RoleAssistant, Kind: models.KindToolSummary, Content: "Found 0 products."},
		{Role: models.RoleUser, Content: "red shirts please"},
	}
	msg, err := model.Chat(context.Background(), history, []models.FunctionDeclaration{searchTool()})
	require.NoError(t, err)

	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, models.RoleAssistant, msg.Role)
	assert.Equal(t, "call_1", msg.ToolCalls[0].ID)
	assert.Equal(t, "product_search", msg.ToolCalls[0].Name)
	assert.Equal(t, "red shirts", msg.ToolCalls[0].Arguments["query"])

	assert.Equal(t, "gpt-4o", captured.Model)
	require.Len(t, captured.Messages, 6)
	roles := []string{}
	for _, m := range captured.Messages {
		roles = append(roles, m["role"].(string))
	}
	assert.Equal(t, []string{"system", "user", "assistant", "tool", "assistant", "user"}, roles)
	assert.Equal(t, "call_0", captured.Messages[3]["tool_call_id"])

	calls, ok := captured.Messages[2]["tool_calls"].([]interface{})
	require.True(t, ok)
	require.Len(t, calls, 1)
	fn := calls[0].(map[string]interface{})["function"].(map[string]interface{})
	assert.Equal(t, "product_search", fn["name"])
	assert.JSONEq(t, `{"query":"x"}`, fn["arguments"].(string))

	require.Len(t, captured.Tools, 1)
	assert.Equal(t, "function", captured.Tools[0]["type"])
	assert.Equal(t, "product_search", captured.Tools[0]["function"].(map[string]interface{})["name"])
}

func TestDescribe_SendsImageDataURL(t *testing.T) {
	var captured capturedRequest
	srv := fakeCompletions(t, textReply, &captured)
	model := New("test-key", srv.URL+"/v1/", "gpt-4o", 5*time.Second)

	out, err := model.Describe(context.Background(), "classify", models.InlineData{MimeType: "image/png", Data: "AAAA"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"category":"Jeans","color":"blue"}`, out)

	assert.Equal(t, DefaultVisionMaxTokens, captured.MaxTokens)
	require.Len(t, captured.Messages, 1)
	parts := captured.Messages[0]["content"].([]interface{})
	require.Len(t, parts, 2)
	assert.Equal(t, "classify", parts[0].(map[string]interface{})["text"])
	img := parts[1].(map[string]interface{})["image_url"].(map[string]interface{})
	assert.Equal(t, "data:image/png;base64,AAAA", img["url"])
}

func TestMissingAPIKey(t *testing.T) {
	model := New("", "", "", time.Second)
	_, err := model.Chat(context.Background(), nil, nil)
	assert.ErrorIs(t, err, models.ErrMissingAPIKey)
	_, err = model.Describe(context.Background(), "p", models.InlineData{})
	assert.ErrorIs(t, err, models.ErrMissingAPIKey)
}

func TestToMessageParam_RejectsUnknownRole(t *testing.T) {
	_, err := toMessageParam(models.Message{Role: "narrator"})
	assert.Error(t, err)
}
