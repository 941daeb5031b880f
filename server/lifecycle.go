package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/teranos/logtap/errors"
	"github.com/teranos/logtap/logger"
)

// Start begins watching rule files and serves HTTP on port until ctx is
// done or Stop is called. Returns nil after a clean shutdown.
func (s *Server) Start(ctx context.Context, port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return errors.WithHintf(
			errors.Wrapf(err, "failed to listen on port %d", port),
			"Set server.port in am.toml or pass --port to pick another port",
		)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if err := s.rules.startWatching(); err != nil {
		s.logger.Warnw("Rule file watching disabled", logger.FieldError, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infow("Server ready", logger.FieldAddress, ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "http server failed")
	case <-ctx.Done():
		return s.Stop()
	case <-s.ctx.Done():
		return nil
	}
}

// Stop closes every scan connection, waits for the workers to exit and
// shuts the HTTP server down
func (s *Server) Stop() error {
	s.logger.Infow("Initiating server shutdown")

	s.mu.Lock()
	clientsToClose := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clientsToClose = append(clientsToClose, client)
	}
	s.mu.Unlock()

	if len(clientsToClose) > 0 {
		s.logger.Infow("Closing client connections", logger.FieldCount, len(clientsToClose))
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Debugw("All connections stopped cleanly")
	case <-time.After(ShutdownTimeout):
		s.logger.Warnw("Connection shutdown timed out", "timeout", ShutdownTimeout)
		for _, client := range clientsToClose {
			client.conn.Close()
		}
	}

	if err := s.rules.stopWatching(); err != nil {
		s.logger.Warnw("Failed to stop rule watcher", logger.FieldError, err)
	}

	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "http server shutdown")
	}
	s.logger.Infow("Server shutdown complete")
	return nil
}
