package nfs

import (
	"net"

	"github.com/rs/zerolog/log"
	nfs "github.com/willscott/go-nfs"

	"github.com/runvault/runvault/internal/audit"
	"github.com/runvault/runvault/internal/storage"
)

// Server provides a read-only NFS v3 view of the vault.
type Server struct {
	handler  *Handler
	listener net.Listener
	addr     string
}

// Config holds NFS server configuration.
type Config struct {
	// Address to bind to (e.g., ":2049" or "10.0.0.1:2049")
	Address string
}

// NewServer creates a new NFS server.
func NewServer(store *storage.Store, auditLog *audit.Logger, cfg Config) *Server {
	return &Server{
		handler: NewHandler(store, auditLog),
		addr:    cfg.Address,
	}
}

// Start starts the NFS server.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	log.Info().
		Str("addr", listener.Addr().String()).
		Msg("NFS server started")

	// Run in goroutine
	go func() {
		if err := nfs.Serve(listener, s.handler); err != nil {
			log.Error().Err(err).Msg("NFS server error")
		}
	}()

	return nil
}

// Stop stops the NFS server.
func (s *Server) Stop() error {
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Handler returns the NFS handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
