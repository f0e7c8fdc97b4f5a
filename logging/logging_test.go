package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Desarso/shopbot/metrics"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLogger_SetsRequestIDAndCounts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	SetupWriter(&buf, "debug", "json")
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	reg := metrics.NewRegistry()
	router := gin.New()
	router.Use(RequestLogger(reg))
	router.GET("/ping/:id", func(c *gin.Context) {
		log.Ctx(c.Request.Context()).Info().Msg("inside handler")
		c.String(http.StatusOK, "pong")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping/1", nil)
	req.Header.Set(RequestIDHeader, "rid-1")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "rid-1", w.Header().Get(RequestIDHeader))
	assert.Equal(t, int64(1), reg.Value(metrics.HTTPRequests, map[string]string{
		"method": "GET", "path": "/ping/:id", "status": "2xx",
	}))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "rid-1", entry["request_id"])
	assert.Equal(t, "inside handler", entry["message"])
}

func TestRequestLogger_GeneratesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	SetupWriter(&bytes.Buffer{}, "info", "console")

	router := gin.New()
	router.Use(RequestLogger(nil))
	router.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "4xx", statusClass(404))
	assert.Equal(t, "0", statusClass(0))
}
