// Package gateway serves the daemon's optional HTTP status endpoint.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/flemzord/cronr/internal/metrics"
)

// StatusSource reports the scheduler state.
type StatusSource interface {
	Running() []uint64
	LastReload() time.Time
}

// Gateway exposes /health, /status and /metrics.
type Gateway struct {
	config    Config
	logger    *slog.Logger
	status    StatusSource
	metrics   *metrics.Metrics
	version   string
	limiter   *rate.Limiter
	startedAt time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New creates a gateway. status and m may be nil.
func New(cfg Config, status StatusSource, m *metrics.Metrics, version string, logger *slog.Logger) *Gateway {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		config:    cfg,
		logger:    logger,
		status:    status,
		metrics:   m,
		version:   version,
		limiter:   rate.NewLimiter(rate.Limit(cfg.AuthRate), cfg.AuthBurst),
		startedAt: time.Now(),
	}
}

// Handler returns the HTTP handler with every route wired.
func (g *Gateway) Handler() http.Handler {
	return g.buildRouter()
}

// Start listens on the configured address and serves in the background.
func (g *Gateway) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen failed: %w", err)
	}

	server := &http.Server{
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	g.mu.Lock()
	g.server = server
	g.listener = ln
	g.mu.Unlock()

	go func() {
		g.logger.Info("gateway: listening", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway: serve error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address once started.
func (g *Gateway) Addr() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr().String()
}

// Stop shuts the server down gracefully with the configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	server := g.server
	g.mu.Unlock()
	if server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway: shutting down")
	return server.Shutdown(shutdownCtx)
}
