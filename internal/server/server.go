// Package server wraps the stdlib HTTP server with a context-driven
// lifecycle. The listener is bound eagerly in New so address conflicts
// surface before serving starts and the resolved address is known even when
// the configured port is 0.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/lattiodev/Qubic-Web-IDE-Multi-User-CLI-Environment/internal/config"
)

// ErrServerClosed is returned by Run after a clean shutdown.
var ErrServerClosed = http.ErrServerClosed

type Server struct {
	shutdownTimeout time.Duration
	http            *http.Server
	listener        net.Listener
}

// New binds the configured address and prepares the server. A non-nil error
// means the listener could not be bound; the caller decides whether to retry.
func New(cfg config.HTTP, handler http.Handler) (*Server, error) {
	listener, err := net.Listen("tcp", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, err
	}
	return &Server{
		shutdownTimeout: cfg.ShutdownTimeout,
		http: &http.Server{
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		listener: listener,
	}, nil
}

// Addr is the address the listener is actually bound to.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Run serves until the context is cancelled, then drains in-flight requests
// within the shutdown timeout. A clean stop returns ErrServerClosed.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- s.http.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ErrServerClosed
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return ErrServerClosed
		}
		return err
	}
}
