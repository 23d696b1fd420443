package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/auto-dns/dock-route/internal/domain"
)

const (
	readHeaderTimeout = 5 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 15 * time.Second
)

// Server is the public front door: one HTTP listener whose only handler is
// the routing table.
type Server struct {
	table  *Table
	server *http.Server
	logger zerolog.Logger
}

func NewServer(port string, table *Table, logger zerolog.Logger) *Server {
	return &Server{
		table: table,
		server: &http.Server{
			Addr:              net.JoinHostPort("", port),
			Handler:           table,
			ReadHeaderTimeout: readHeaderTimeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       idleTimeout,
		},
		logger: logger,
	}
}

func (s *Server) Addr() string { return s.server.Addr }

func (s *Server) Table() *Table { return s.table }

// Start listens on the configured port and blocks until the server stops.
// It returns nil after Stop and the listener error otherwise.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return domain.NewRuntimeError("proxy listen", err)
	}
	return s.Serve(ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting reverse proxy server")
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return domain.NewRuntimeError("proxy server", err)
	}
	return nil
}

// Stop stops accepting connections and waits for in-flight requests until
// ctx expires, then closes whatever is left.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down proxy server")
	err := s.server.Shutdown(ctx)
	if err == nil {
		return nil
	}
	if closeErr := s.server.Close(); closeErr != nil {
		s.logger.Warn().Err(closeErr).Msg("Force-closing proxy connections failed")
	}
	return fmt.Errorf("proxy shutdown: %w", err)
}

func (s *Server) AddProxy(subdomain, targetURL string) error {
	return s.table.AddProxy(subdomain, targetURL)
}

func (s *Server) RemoveProxy(subdomain string) {
	s.table.RemoveProxy(subdomain)
}

func (s *Server) GetActiveProxies() []string {
	return s.table.GetActiveSubdomains()
}
