// Package server exposes the quote stream over HTTP. Browsers attach to the
// SSE endpoint and receive every quote the session publishes; a subscriber
// that cannot keep up is disconnected rather than silently skipped ahead.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stockplus/kisfeed/internal/broadcast"
	"github.com/stockplus/kisfeed/internal/config"
	"github.com/stockplus/kisfeed/internal/model"
	"github.com/stockplus/kisfeed/internal/session"
)

// keepaliveInterval spaces comment frames so intermediaries keep idle
// streams open outside market hours.
const keepaliveInterval = 15 * time.Second

// SessionStatus exposes session counters for the health endpoint.
type SessionStatus interface {
	Stats() session.ManagerStats
}

// Server is the HTTP front of the streamer.
type Server struct {
	cfg    config.ServerConfig
	hub    *broadcast.Hub
	status SessionStatus
	logger *slog.Logger

	engine *gin.Engine
	http   *http.Server
}

// New creates the HTTP server and registers its routes.
func New(cfg config.ServerConfig, hub *broadcast.Hub, status SessionStatus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:    cfg,
		hub:    hub,
		status: status,
		logger: logger,
		engine: gin.New(),
	}
	s.engine.Use(gin.Recovery())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/api/sse/stocks", s.streamStocks)
	s.engine.GET("/health", s.getHealth)
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.logger.Info("http server starting", "addr", addr)

	s.http = &http.Server{
		Addr:    addr,
		Handler: s.engine,
	}
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// streamStocks attaches the client to the quote hub over SSE.
func (s *Server) streamStocks(c *gin.Context) {
	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	// Nginx buffers responses by default, which stalls the stream.
	h.Set("X-Accel-Buffering", "no")

	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)

	s.logger.Info("sse client attached",
		"subscriber", sub.ID(),
		"remote", c.ClientIP(),
	)
	defer s.logger.Info("sse client detached", "subscriber", sub.ID())

	c.SSEvent("connect", gin.H{"subscriberId": sub.ID().String()})
	c.Writer.Flush()

	done := c.Request.Context().Done()

	// Pump the blocking hub receive into a channel the select below can
	// race against client disconnect.
	quotes := make(chan model.Quote)
	go func() {
		defer close(quotes)
		for {
			q, ok := sub.Receive()
			if !ok {
				return
			}
			select {
			case quotes <- q:
			case <-done:
				return
			}
		}
	}()

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-done:
			return
		case <-keepalive.C:
			c.SSEvent("ping", time.Now().Unix())
			c.Writer.Flush()
		case q, ok := <-quotes:
			if !ok {
				// Hub closed this subscriber (shutdown or overflow).
				return
			}
			c.SSEvent("priceUpdate", q)
			c.Writer.Flush()
		}
	}
}

func (s *Server) getHealth(c *gin.Context) {
	stats := s.status.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"sessionState":    stats.State.String(),
		"subscribers":     s.hub.SubscriberCount(),
		"quotesPublished": stats.QuotesPublished,
	})
}
