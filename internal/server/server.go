// Package server implements the runvault HTTP API server.
package server

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/runvault/runvault/internal/audit"
	"github.com/runvault/runvault/internal/config"
	"github.com/runvault/runvault/internal/metrics"
	"github.com/runvault/runvault/internal/storage"
	"github.com/runvault/runvault/pkg/api"
)

// collectInterval is how often the background collector refreshes
// storage gauges.
const collectInterval = 30 * time.Second

// Server exposes a vault store over HTTP.
type Server struct {
	cfg        *config.ServerConfig
	store      *storage.Store
	mux        *http.ServeMux
	metrics    *metrics.VaultMetrics
	audit      *audit.Logger
	auditClose func() error
	events     *eventBroker
	limiter    *rate.Limiter
	httpSrv    *http.Server
	shareKey   []byte
	shareTTL   time.Duration
	version    string
	startTime  time.Time
}

// NewServer creates a new vault API server around an open store.
func NewServer(cfg *config.ServerConfig, store *storage.Store) (*Server, error) {
	srv := &Server{
		cfg:       cfg,
		store:     store,
		mux:       http.NewServeMux(),
		audit:     audit.Nop(),
		startTime: time.Now(),
	}

	if cfg.Audit.Enabled {
		logger, closeFn, err := audit.Open(cfg.Audit.Path)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		srv.audit = logger
		srv.auditClose = closeFn
	}

	if cfg.Metrics.Enabled {
		srv.metrics = metrics.InitVaultMetrics(metrics.Registry)
	}

	if cfg.Limits.RequestsPerSecond > 0 {
		srv.limiter = rate.NewLimiter(rate.Limit(cfg.Limits.RequestsPerSecond), cfg.Limits.Burst)
	}

	if cfg.Shares.Enabled {
		key, err := deriveShareKey(cfg.AuthToken)
		if err != nil {
			return nil, fmt.Errorf("derive share key: %w", err)
		}
		srv.shareKey = key
		ttl, err := cfg.ShareTTL()
		if err != nil {
			return nil, fmt.Errorf("parse share ttl: %w", err)
		}
		srv.shareTTL = ttl
	}

	srv.events = newEventBroker(srv.metrics)

	srv.setupRoutes()
	return srv, nil
}

// SetVersion sets the server version for status display.
func (s *Server) SetVersion(version string) {
	s.version = version
	if s.metrics != nil {
		s.metrics.SetServerInfo(s.cfg.Name, version)
	}
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	if s.cfg.Metrics.Enabled {
		s.mux.Handle("/metrics", metrics.Handler())
	}

	s.mux.HandleFunc("/api/v1/objects", s.withAuth(s.handleObjects))
	s.mux.HandleFunc("/api/v1/objects/meta", s.withAuth(s.handleObjectMeta))
	s.mux.HandleFunc("/api/v1/objects/data", s.withAuth(s.handleObjectData))
	s.mux.HandleFunc("/api/v1/objects/list", s.withAuth(s.handleObjectList))
	s.mux.HandleFunc("/api/v1/objects/tags", s.withAuth(s.handleObjectTags))
	s.mux.HandleFunc("/api/v1/status", s.withAuth(s.handleStatus))
	s.mux.HandleFunc("/api/v1/events", s.withAuth(s.handleEvents))
	s.mux.HandleFunc("/debug/trace", s.withAuth(s.handleTrace))

	if s.cfg.Shares.Enabled {
		s.mux.HandleFunc("/api/v1/shares", s.withAuth(s.handleShares))
		s.mux.HandleFunc("/share/", s.handleShareRedeem)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Share redeems are unauthenticated, so they must not escape the limiter.
	if s.limiter != nil && (strings.HasPrefix(r.URL.Path, "/api/") || strings.HasPrefix(r.URL.Path, "/share/")) {
		if !s.limiter.Allow() {
			s.jsonError(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			s.audit.LogAuth("bearer", "denied", "missing authorization header", clientIP(r))
			s.jsonError(w, "missing authorization header", http.StatusUnauthorized)
			return
		}

		// Expect "Bearer <token>"
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			s.audit.LogAuth("bearer", "denied", "invalid authorization header", clientIP(r))
			s.jsonError(w, "invalid authorization header", http.StatusUnauthorized)
			return
		}

		if !hmac.Equal([]byte(parts[1]), []byte(s.cfg.AuthToken)) {
			s.audit.LogAuth("bearer", "denied", "invalid token", clientIP(r))
			s.jsonError(w, "invalid token", http.StatusUnauthorized)
			return
		}

		next(w, r)
	}
}

// withVaultMetrics records request count and duration for an operation.
// Handlers that hijack the connection must not be wrapped.
func (s *Server) withVaultMetrics(w http.ResponseWriter, operation string, fn func(http.ResponseWriter)) {
	if s.metrics == nil {
		fn(w)
		return
	}

	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	fn(rec)

	status := "ok"
	if rec.status >= 400 {
		status = "error"
	}
	s.metrics.RecordRequest(operation, status, time.Since(start).Seconds())
}

// statusRecorder captures the response status code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// storageError maps store errors onto HTTP status codes.
func (s *Server) storageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		s.jsonError(w, "object not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrObjectExists):
		s.jsonError(w, "object already exists", http.StatusConflict)
	case errors.Is(err, storage.ErrNonEmptyDirectory):
		s.jsonError(w, "directory has unrelated content", http.StatusConflict)
	case errors.Is(err, storage.ErrInvalidPath):
		s.jsonError(w, "not a listable directory", http.StatusBadRequest)
	case errors.Is(err, storage.ErrInvalidArgument):
		s.jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, storage.ErrMetaDecode):
		s.jsonError(w, "metadata document is corrupt", http.StatusInternalServerError)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.jsonError(w, "request cancelled", http.StatusServiceUnavailable)
	default:
		s.jsonError(w, "storage operation failed: "+err.Error(), http.StatusInternalServerError)
	}
}

// validateURIParam validates a caller-supplied URI before it reaches the
// store. The store resolves URIs lexically as a second layer; both checks
// are intentional.
func validateURIParam(uri string) error {
	if uri == "" {
		return fmt.Errorf("uri is required")
	}
	if strings.ContainsRune(uri, 0) {
		return fmt.Errorf("null bytes not allowed")
	}
	if !strings.HasPrefix(uri, "/") {
		return fmt.Errorf("uri must be absolute")
	}
	for _, seg := range strings.Split(uri, "/") {
		if seg == ".." || seg == "." {
			return fmt.Errorf("path traversal not allowed")
		}
	}
	return nil
}

// uriParam extracts and validates the uri query parameter, writing the
// error response itself when validation fails.
func (s *Server) uriParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	uri := r.URL.Query().Get("uri")
	if err := validateURIParam(uri); err != nil {
		s.jsonError(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return uri, true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ListenAndServe starts the vault API server.
func (s *Server) ListenAndServe() error {
	log.Info().Str("listen", s.cfg.Listen).Str("data_dir", s.cfg.DataDir).Msg("starting vault server")
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server, disconnects event subscribers and
// closes the audit sink.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	s.events.closeAll()
	if s.auditClose != nil {
		if cerr := s.auditClose(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Audit returns the server's audit logger so sibling services share one sink.
func (s *Server) Audit() *audit.Logger {
	return s.audit
}

// StartCollector launches the background storage gauge collector. It is a
// no-op when metrics are disabled.
func (s *Server) StartCollector(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	capacity := func() (uint64, uint64, error) {
		total, _, available, err := storage.GetVolumeStats(s.store.Root())
		if err != nil {
			return 0, 0, err
		}
		return uint64(total), uint64(available), nil
	}
	collector := metrics.NewCollector(s.metrics, s.store, capacity)
	go collector.Run(ctx, collectInterval)
}
