// Package server exposes the agent over a local HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blackwell-systems/voidstore/internal/agent"
	"github.com/blackwell-systems/voidstore/internal/logger"
)

// requestTimeout bounds how long a handler waits for the owner loop.
const requestTimeout = 10 * time.Second

// Server routes HTTP requests to the agent. Every handler runs its agent
// work on the owner goroutine through Agent.Do and replies with copies.
type Server struct {
	agent  *agent.Agent
	engine *gin.Engine
}

// New builds the router. A nil gatherer leaves /metrics unregistered.
func New(a *agent.Agent, gatherer prometheus.Gatherer) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	s := &Server{agent: a, engine: engine}
	s.registerRoutes(gatherer)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) registerRoutes(gatherer prometheus.Gatherer) {
	r := s.engine
	r.GET("/healthz", s.healthz)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	api.GET("/status", s.status)
	api.GET("/events", s.events)
	api.GET("/search", s.search)
	api.GET("/installed", s.installed)
	api.POST("/installed/refresh", s.refreshInstalled)
	api.POST("/install/:name", s.install)
	api.POST("/remove", s.remove)
	api.POST("/update", s.update)
	api.GET("/updates", s.updates)
	api.POST("/updates/check", s.checkUpdates)
	api.GET("/detail/:name", s.detail)
	api.POST("/spotlight/refresh", s.refreshSpotlight)
	api.GET("/spotlight/recent", s.spotlightRecent)
	api.GET("/spotlight/category/:tag", s.spotlightCategory)
	api.GET("/operations", s.operations)
	api.POST("/maintenance/:task", s.maintenance)
	api.GET("/mirrors", s.mirrors)
	api.POST("/mirrors", s.setMirrors)
	api.POST("/mirrors/detect", s.detectMirrors)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server: listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("server: shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("server: %s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// onOwner runs fn on the agent's owner goroutine, bounded by the request
// context.
func (s *Server) onOwner(c *gin.Context, fn func()) error {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	return s.agent.Do(ctx, fn)
}

func writeError(c *gin.Context, err error) {
	code := http.StatusBadRequest
	switch {
	case errors.Is(err, agent.ErrBusy):
		code = http.StatusConflict
	case errors.Is(err, agent.ErrStopped):
		code = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		code = http.StatusGatewayTimeout
	}
	c.JSON(code, gin.H{"error": err.Error()})
}
