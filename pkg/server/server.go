// Package server exposes the wake lock engine over HTTP: a small control
// API, a server-sent-events stream of lifecycle notifications, and the
// Prometheus scrape endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wakeguard/wakeguard/pkg/notify"
	"github.com/wakeguard/wakeguard/pkg/observability/logger"
	"github.com/wakeguard/wakeguard/pkg/wakelock"
)

// Config controls the HTTP server.
type Config struct {
	Port              int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	HeartbeatInterval time.Duration
}

func (c *Config) normalize() {
	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 15 * time.Second
	}
	// SSE responses outlive the usual write window; WriteTimeout zero means
	// unbounded and is left alone.
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
}

// Server owns the gin engine and the underlying http.Server.
type Server struct {
	cfg    Config
	orch   *wakelock.Orchestrator
	hub    *notify.Hub
	log    logger.Logger
	engine *gin.Engine
	srv    *http.Server
}

// New wires the routes. gatherer may be nil to use the default registry.
func New(cfg Config, orch *wakelock.Orchestrator, hub *notify.Hub, log logger.Logger, gatherer prometheus.Gatherer) (*Server, error) {
	if orch == nil {
		return nil, errors.New("orchestrator is required")
	}
	if hub == nil {
		return nil, errors.New("notification hub is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	cfg.normalize()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		cfg:    cfg,
		orch:   orch,
		hub:    hub,
		log:    log,
		engine: engine,
	}

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/status", s.handleStatus)
	engine.GET("/strategies", s.handleStrategies)
	engine.GET("/permissions", s.handlePermissions)
	engine.POST("/request", s.handleRequest)
	engine.POST("/release", s.handleRelease)
	engine.GET("/events", s.handleEvents)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s, nil
}

// Handler exposes the routes for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start blocks serving HTTP until the listener closes.
func (s *Server) Start() error {
	s.log.Info("http server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
