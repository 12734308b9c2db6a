// Package server manages HTTP server lifecycles with graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/BaSui01/ragflow/config"
	"go.uber.org/zap"
)

// Manager wraps one http.Server with start/stop semantics.
type Manager struct {
	name   string
	server *http.Server
	logger *zap.Logger
}

// NewManager builds a server for handler on port using the configured timeouts.
func NewManager(name string, port int, handler http.Handler, cfg config.ServerConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 30 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 2 * time.Minute
	}

	return &Manager{
		name: name,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      handler,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
		logger: logger.With(zap.String("component", "http_server"), zap.String("server", name)),
	}
}

// Start serves until the listener closes. Blocks; run in a goroutine.
// Returns nil after a clean shutdown.
func (m *Manager) Start() error {
	m.logger.Info("server listening", zap.String("addr", m.server.Addr))
	if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", m.name, err)
	}
	return nil
}

// Shutdown drains in-flight requests within ctx's deadline.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("server shutting down")
	return m.server.Shutdown(ctx)
}
