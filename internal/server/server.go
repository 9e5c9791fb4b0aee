// Package server exposes compilation, history and knowledge lookups over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mark-chris/threatc/internal/compiler"
	"github.com/mark-chris/threatc/internal/knowledge"
	"github.com/mark-chris/threatc/internal/store"
)

// Deps are the collaborators a server needs
type Deps struct {
	Compiler  *compiler.Compiler
	Knowledge *knowledge.Index
	Store     store.Store
	Hub       *Hub
	Logger    *zap.Logger
}

// Server is the HTTP API
type Server struct {
	compiler *compiler.Compiler
	kb       *knowledge.Index
	store    store.Store
	hub      *Hub
	logger   *zap.Logger
	engine   *gin.Engine
}

// New builds the router. A nil store keeps history in memory and a nil hub
// disables the events endpoint.
func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Store == nil {
		d.Store = store.NewMemory()
	}
	if d.Knowledge == nil {
		d.Knowledge = knowledge.NewIndex()
	}
	if d.Compiler == nil {
		d.Compiler = compiler.New(d.Knowledge, nil, compiler.DefaultConfig(), d.Logger)
	}

	s := &Server{
		compiler: d.Compiler,
		kb:       d.Knowledge,
		store:    d.Store,
		hub:      d.Hub,
		logger:   d.Logger,
	}
	s.engine = s.routes()
	return s
}

// Handler returns the http.Handler for tests and custom listeners
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "templates": s.kb.Count()})
	})

	api := r.Group("/api/v1")
	{
		api.POST("/models", s.createModel)
		api.GET("/models", s.listModels)
		api.GET("/models/:id", s.getModel)
		api.DELETE("/models/:id", s.deleteModel)
		api.GET("/models/:id/report", s.getReport)
		api.POST("/models/:id/regenerate/:section", s.regenerate)

		api.GET("/knowledge", s.queryKnowledge)
		api.GET("/knowledge/:type", s.getKnowledgeType)

		if s.hub != nil {
			api.GET("/events", func(c *gin.Context) {
				s.hub.ServeWS(c.Writer, c.Request)
			})
		}
	}
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// Run serves on addr until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.hub != nil {
		go s.hub.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.logger.Info("shutting down server")
	return srv.Shutdown(shutdownCtx)
}
