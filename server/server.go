// Package server exposes the shopping assistant over HTTP and websockets.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Desarso/shopbot/logging"
	"github.com/Desarso/shopbot/metrics"
	"github.com/Desarso/shopbot/models"
	"github.com/Desarso/shopbot/sessions"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// DefaultMaxUploadBytes caps multipart bodies on /image-analyze.
const DefaultMaxUploadBytes = 20 << 20

// Analyzer classifies a stored image.
type Analyzer interface {
	Analyze(ctx context.Context, path string) models.Classification
}

// Options configures a Server.
type Options struct {
	Address        string
	UploadDir      string
	MaxUploadBytes int64
}

// Server is the gin front door of the assistant.
type Server struct {
	router   *gin.Engine
	server   *http.Server
	opts     Options
	manager  *sessions.Manager
	analyzer Analyzer
	metrics  *metrics.Registry
	upgrader websocket.Upgrader
}

func New(manager *sessions.Manager, analyzer Analyzer, reg *metrics.Registry, opts Options) *Server {
	if opts.Address == "" {
		opts.Address = ":8000"
	}
	if opts.UploadDir == "" {
		opts.UploadDir = "uploads"
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}

	s := &Server{
		router:   gin.New(),
		opts:     opts,
		manager:  manager,
		analyzer: analyzer,
		metrics:  reg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	router := s.router
	router.Use(gin.Recovery(), logging.RequestLogger(s.metrics))

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"Hello": "World"})
	})
	router.GET("/healthz", s.health)
	router.GET("/metrics", s.metrics.HandlerText)
	router.GET("/metrics.json", s.metrics.HandlerJSON)

	api := router.Group("/api/v1")
	{
		api.POST("/chat", s.chat)
		api.GET("/chat/:thread_id/history", s.history)
		api.GET("/chat/:thread_id/traces", s.traces)
		api.DELETE("/chat/:thread_id/traces", s.deleteTraces)
		api.GET("/checkpoints", s.checkpoints)
		api.POST("/image-analyze", s.imageAnalyze)
		api.GET("/ws/chat", s.wsChat)
	}
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.opts.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info().Str("address", s.opts.Address).Msg("HTTP server starting")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
