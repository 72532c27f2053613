package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/runvault/runvault/internal/storage"
	"github.com/runvault/runvault/internal/tracing"
	"github.com/runvault/runvault/pkg/api"
)

// handleStatus reports server identity and store usage.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.withVaultMetrics(w, "status", func(w http.ResponseWriter) {
		stats, err := s.store.Stats(r.Context())
		if err != nil {
			s.storageError(w, err)
			return
		}

		resp := api.StatusResponse{
			Server:        s.cfg.Name,
			Version:       s.version,
			URIRoot:       s.store.URIRoot(),
			Objects:       stats.Objects,
			DataBytes:     stats.DataBytes,
			MetaBytes:     stats.MetaBytes,
			UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		}

		// Volume capacity is best effort; status still succeeds without it.
		if total, _, available, err := storage.GetVolumeStats(s.store.Root()); err == nil {
			resp.CapacityBytes = total
			resp.AvailableBytes = available
		} else {
			log.Debug().Err(err).Msg("volume stats unavailable")
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
}

// handleTrace serves a runtime trace snapshot for `go tool trace`.
func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !tracing.Enabled() {
		s.jsonError(w, "tracing not enabled (set trace.enabled in the config)", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment; filename=trace.out")

	if err := tracing.Snapshot(w); err != nil {
		log.Error().Err(err).Msg("trace snapshot failed")
	}
}
