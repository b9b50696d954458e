// Package app assembles and runs the scm-server HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/scmgo/scm-server/internal/config"
)

// ServerApp is a fully wired server with graceful shutdown
type ServerApp struct {
	config     *config.Config
	components *Components
	httpServer *http.Server

	stopOnce sync.Once
	cleanup  func()
}

// Start serves HTTP until Stop is called or the listener fails.
func (app *ServerApp) Start() error {
	slog.Info("Server listening", "address", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Stop shuts the HTTP server down, waiting at most timeout for in-flight
// requests, and then releases storage. Later calls do nothing.
func (app *ServerApp) Stop(timeout time.Duration) error {
	var err error
	app.stopOnce.Do(func() {
		slog.Info("Shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if shutdownErr := app.httpServer.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("server forced to shutdown: %w", shutdownErr)
		}

		if app.cleanup != nil {
			app.cleanup()
		}
		slog.Info("Server shutdown complete")
	})
	return err
}

// GetConfig returns the configuration the server was built from
func (app *ServerApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server
func (app *ServerApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// Components returns the wired services
func (app *ServerApp) Components() *Components {
	return app.components
}
