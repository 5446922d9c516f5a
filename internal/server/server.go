// Package server binds the listening socket and serves the document root.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/1ureka/pageshare/internal/util"
)

// Server owns the listening socket. net/http dispatches every accepted
// connection to its own goroutine, so a slow client never blocks the rest.
type Server struct {
	addr     string
	listener net.Listener
	httpSrv  *http.Server
}

// New creates a server for addr with the given root handler. Nothing is
// bound until Start.
func New(addr string, handler http.Handler) *Server {
	return &Server{
		addr:    addr,
		httpSrv: &http.Server{Handler: handler},
	}
}

// Start binds the listening socket and returns the bound port. A port that
// is already occupied surfaces here, before any serving begins.
func (s *Server) Start() (int, error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return 0, fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// Serve blocks until ctx is cancelled or the listener fails. Shutdown is an
// explicit cancellation: a goroutine closes the listener when ctx is done so
// the serve loop unwinds. In-flight handlers are left to finish.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("server not started")
	}

	// Close the listener when context is done so the accept loop returns.
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	err := s.httpSrv.Serve(s.listener)

	select {
	case <-ctx.Done():
		return nil // normal shutdown
	default:
	}
	if errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return fmt.Errorf("serve error: %w", err)
}

// Close stops accepting new connections and releases the listening socket.
// In-flight requests are not forcibly terminated.
func (s *Server) Close() {
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			util.LogDebug("close listener: %v", err)
		}
	}
}

// Port returns the bound port, or 0 before Start.
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}
