package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_IncAndSnapshot(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	r.Inc(ctx, ToolCalls, map[string]string{"tool": "product_search", "status": "ok"}, 1)
	r.Inc(ctx, ToolCalls, map[string]string{"status": "ok", "tool": "product_search"}, 2)
	r.Inc(ctx, ChatTurns, nil, 1)

	assert.Equal(t, int64(3), r.Value(ToolCalls, map[string]string{"tool": "product_search", "status": "ok"}))
	assert.Equal(t, []string{
		"chat_turns_total 1",
		"tool_calls_total{status=ok,tool=product_search} 3",
	}, r.SnapshotLines())
}

func TestRegistry_NilIsNoop(t *testing.T) {
	var r *Registry
	r.Inc(context.Background(), ChatTurns, nil, 1)
	assert.Equal(t, int64(0), r.Value(ChatTurns, nil))
	assert.Empty(t, r.SnapshotJSON())
}

func TestRegistry_Handlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRegistry()
	r.Inc(context.Background(), ChatTurns, nil, 4)

	router := gin.New()
	router.GET("/metrics", r.HandlerText)
	router.GET("/metrics.json", r.HandlerJSON)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "chat_turns_total 4\n", w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics.json", nil))
	assert.JSONEq(t, `{"chat_turns_total":4}`, w.Body.String())
}
