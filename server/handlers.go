package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Desarso/shopbot/common_tools"
	"github.com/Desarso/shopbot/metrics"
	"github.com/Desarso/shopbot/models"
	"github.com/Desarso/shopbot/sessions"
	"github.com/Desarso/shopbot/stores"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func (s *Server) chat(c *gin.Context) {
	var req models.Chat_Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	session := s.manager.NewHTTPSession(req.ThreadID)
	reply, err := session.RunTurn(c.Request.Context(), req.UserInput)
	if err != nil {
		if errors.Is(err, sessions.ErrEmptyInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to process chat turn"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": reply})
}

func (s *Server) history(c *gin.Context) {
	session := s.manager.NewHTTPSession(c.Param("thread_id"))
	msgs, err := session.GetChatHistory(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"thread_id": session.ThreadID, "messages": msgs}})
}

// traces lists the thread's tool traces, or those of one call with ?tool_call_id=.
func (s *Server) traces(c *gin.Context) {
	ctx := c.Request.Context()
	threadID := c.Param("thread_id")

	var (
		list []*stores.ExecutionTrace
		err  error
	)
	if callID := c.Query("tool_call_id"); callID != "" {
		list, err = s.manager.ToolCallTraces(ctx, callID)
		list = filterThread(list, threadID)
	} else {
		list, err = s.manager.ThreadTraces(ctx, threadID)
	}
	if err != nil {
		s.traceError(c, err, "Failed to load traces")
		return
	}
	if list == nil {
		list = []*stores.ExecutionTrace{}
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (s *Server) deleteTraces(c *gin.Context) {
	if err := s.manager.DeleteThreadTraces(c.Request.Context(), c.Param("thread_id")); err != nil {
		s.traceError(c, err, "Failed to delete traces")
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) traceError(c *gin.Context, err error, msg string) {
	if errors.Is(err, sessions.ErrTracesDisabled) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func filterThread(list []*stores.ExecutionTrace, threadID string) []*stores.ExecutionTrace {
	out := list[:0]
	for _, t := range list {
		if t.ThreadID == threadID {
			out = append(out, t)
		}
	}
	return out
}

func (s *Server) checkpoints(c *gin.Context) {
	list, err := s.manager.ListCheckpoints(c.Request.Context(), c.Query("thread_id"))
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list checkpoints"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (s *Server) imageAnalyze(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes)

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field \"file\" is required"})
		return
	}
	ext, err := common_tools.ImageExtension(file.Filename)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf(
			"File type %s not supported. Allowed types: %s",
			strings.ToLower(filepath.Ext(file.Filename)),
			strings.Join(common_tools.AllowedImageExtensions, ", "),
		)})
		return
	}

	if err := os.MkdirAll(s.opts.UploadDir, 0o755); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store upload"})
		return
	}
	path := filepath.Join(s.opts.UploadDir, uuid.NewString()+ext)
	if err := c.SaveUploadedFile(file, path); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store upload"})
		return
	}

	result := s.analyzer.Analyze(c.Request.Context(), path)
	s.metrics.Inc(c.Request.Context(), metrics.ImageClassifications, map[string]string{
		"category": matched(result.Category),
		"color":    matched(result.Color),
	}, 1)
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func matched(v *string) string {
	if v == nil {
		return "none"
	}
	return "matched"
}

func (s *Server) wsChat(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Ctx(c.Request.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	session := s.manager.NewAgentSession(conn)
	if err := session.Serve(c.Request.Context()); err != nil {
		session.Logger.Warn().Err(err).Msg("websocket session ended with error")
	}
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.manager.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
