// Package http runs the bridge's single HTTP listener: REST, websocket upgrade,
// metrics and health all share it.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

func NewServer(host string, port int, handler http.Handler, logger *slog.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		logger: logger,
	}
}

func (s *Server) Addr() string { return s.srv.Addr }

// Listen binds the address up front so that a busy port fails startup instead of a goroutine.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return nil, fmt.Errorf("HTTP_LISTEN_FAILED: %w", err)
	}
	return ln, nil
}

// Serve blocks until ctx is cancelled or the listener fails.
// [GRACEFUL_SHUTDOWN] Cancellation drains in-flight requests for up to shutdownTimeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("HTTP_SERVER_LISTENING", "addr", ln.Addr().String())
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP_SERVE_FAILED: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP_SHUTDOWN_FAILED: %w", err)
		}
		s.logger.Info("HTTP_SERVER_STOPPED")
		return nil
	})

	return g.Wait()
}
