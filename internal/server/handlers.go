package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/runvault/runvault/pkg/api"
)

// handleObjects dispatches create, fetch and delete requests for objects.
func (s *Server) handleObjects(w http.ResponseWriter, r *http.Request) {
	var operation string
	switch r.Method {
	case http.MethodPost:
		operation = "create_object"
	case http.MethodGet:
		operation = "get_object"
	case http.MethodDelete:
		operation = "delete_object"
	default:
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.withVaultMetrics(w, operation, func(w http.ResponseWriter) {
		switch r.Method {
		case http.MethodPost:
			s.handleCreateObject(w, r)
		case http.MethodGet:
			s.handleGetObject(w, r)
		case http.MethodDelete:
			s.handleDeleteObject(w, r)
		}
	})
}

// createEnvelopeSlack is the headroom allowed for the non-payload parts of
// a create envelope (metadata document, JSON framing, base64 padding).
const createEnvelopeSlack = 64 << 10

// limitBody caps the request body at the configured maximum object size.
func (s *Server) limitBody(w http.ResponseWriter, r *http.Request) {
	if maxSize := s.cfg.Limits.MaxObjectSize.Bytes(); maxSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	}
}

// bodyTooLarge writes the 413 response for a body that exceeded the
// configured limit. Returns false when err is not a size violation.
func (s *Server) bodyTooLarge(w http.ResponseWriter, err error) bool {
	var maxBytesErr *http.MaxBytesError
	if !errors.As(err, &maxBytesErr) {
		return false
	}
	s.objectTooLarge(w)
	return true
}

// objectTooLarge writes the 413 response for a payload over the limit.
func (s *Server) objectTooLarge(w http.ResponseWriter) {
	s.jsonError(w, "object too large (max "+s.cfg.Limits.MaxObjectSize.String()+")", http.StatusRequestEntityTooLarge)
}

// handleCreateObject stores a new object from a JSON body carrying the
// metadata document and the base64 payload.
func (s *Server) handleCreateObject(w http.ResponseWriter, r *http.Request) {
	uri, ok := s.uriParam(w, r)
	if !ok {
		return
	}
	overwrite := r.URL.Query().Get("overwrite") == "true"

	// The envelope carries the payload base64 encoded, inflating it by a
	// third; cap the body with that headroom so the decoded-length check
	// below is what enforces the configured limit.
	if maxSize := s.cfg.Limits.MaxObjectSize.Bytes(); maxSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxSize+maxSize/3+createEnvelopeSlack)
	}
	var req api.CreateObjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if s.bodyTooLarge(w, err) {
			return
		}
		s.jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if maxSize := s.cfg.Limits.MaxObjectSize.Bytes(); maxSize > 0 && int64(len(req.Data)) > maxSize {
		s.objectTooLarge(w)
		return
	}
	if req.Meta == nil {
		req.Meta = map[string]any{}
	}

	// The store reports the physical directory; the API speaks URIs only.
	if _, err := s.store.CreateObject(r.Context(), uri, req.Data, req.Meta, overwrite); err != nil {
		s.audit.LogObjectOp("create", uri, "error", err.Error(), clientIP(r))
		s.storageError(w, err)
		return
	}

	if s.metrics != nil {
		s.metrics.RecordUpload(int64(len(req.Data)))
	}
	s.audit.LogObjectOp("create", uri, "ok", "", clientIP(r))
	s.publishEvent(api.EventCreate, uri, "")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(api.CreateObjectResponse{URI: uri})
}

// handleGetObject returns an object's metadata, payload, or both,
// selected with the field query parameter.
func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request) {
	uri, ok := s.uriParam(w, r)
	if !ok {
		return
	}

	switch field := r.URL.Query().Get("field"); field {
	case "meta":
		s.writeMeta(w, r, uri)
	case "data":
		s.writeData(w, r, uri)
	case "", "detail":
		meta, data, err := s.store.GetDetail(r.Context(), uri)
		if err != nil {
			s.storageError(w, err)
			return
		}
		if s.metrics != nil {
			s.metrics.RecordDownload(int64(len(data)))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.DetailResponse{URI: uri, Meta: meta, Data: data})
	default:
		s.jsonError(w, "field must be meta, data or detail", http.StatusBadRequest)
	}
}

// handleDeleteObject removes an object and its payload.
func (s *Server) handleDeleteObject(w http.ResponseWriter, r *http.Request) {
	uri, ok := s.uriParam(w, r)
	if !ok {
		return
	}

	if err := s.store.DeleteObject(r.Context(), uri); err != nil {
		s.audit.LogObjectOp("delete", uri, "error", err.Error(), clientIP(r))
		s.storageError(w, err)
		return
	}

	s.audit.LogObjectOp("delete", uri, "ok", "", clientIP(r))
	s.publishEvent(api.EventDelete, uri, "")
	w.WriteHeader(http.StatusNoContent)
}

// handleObjectMeta reads or rewrites an object's metadata document.
func (s *Server) handleObjectMeta(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.withVaultMetrics(w, "get_meta", func(w http.ResponseWriter) {
			uri, ok := s.uriParam(w, r)
			if !ok {
				return
			}
			s.writeMeta(w, r, uri)
		})
	case http.MethodPut:
		s.withVaultMetrics(w, "update_meta", func(w http.ResponseWriter) {
			uri, ok := s.uriParam(w, r)
			if !ok {
				return
			}

			var req api.UpdateMetaRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				s.jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
				return
			}
			if req.Meta == nil {
				s.jsonError(w, "meta is required", http.StatusBadRequest)
				return
			}

			if err := s.store.UpdateMeta(r.Context(), uri, req.Meta, req.Replace); err != nil {
				s.audit.LogObjectOp("update_meta", uri, "error", err.Error(), clientIP(r))
				s.storageError(w, err)
				return
			}

			s.audit.LogObjectOp("update_meta", uri, "ok", "", clientIP(r))
			s.publishEvent(api.EventUpdateMeta, uri, "")
			w.WriteHeader(http.StatusNoContent)
		})
	default:
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleObjectData reads or replaces an object's raw payload.
func (s *Server) handleObjectData(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.withVaultMetrics(w, "get_data", func(w http.ResponseWriter) {
			uri, ok := s.uriParam(w, r)
			if !ok {
				return
			}
			s.writeData(w, r, uri)
		})
	case http.MethodPut:
		s.withVaultMetrics(w, "update_data", func(w http.ResponseWriter) {
			uri, ok := s.uriParam(w, r)
			if !ok {
				return
			}

			s.limitBody(w, r)
			data, err := io.ReadAll(r.Body)
			if err != nil {
				if s.bodyTooLarge(w, err) {
					return
				}
				s.jsonError(w, "read request body: "+err.Error(), http.StatusInternalServerError)
				return
			}

			if err := s.store.UpdateData(r.Context(), uri, data); err != nil {
				s.audit.LogObjectOp("update_data", uri, "error", err.Error(), clientIP(r))
				s.storageError(w, err)
				return
			}

			if s.metrics != nil {
				s.metrics.RecordUpload(int64(len(data)))
			}
			s.audit.LogObjectOp("update_data", uri, "ok", "", clientIP(r))
			s.publishEvent(api.EventUpdateData, uri, "")
			w.WriteHeader(http.StatusNoContent)
		})
	default:
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleObjectList returns the object URIs directly under a directory.
func (s *Server) handleObjectList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.withVaultMetrics(w, "list_objects", func(w http.ResponseWriter) {
		uri, ok := s.uriParam(w, r)
		if !ok {
			return
		}
		withoutTag := r.URL.Query().Get("without_tag")

		objects, err := s.store.ListObjects(r.Context(), uri, withoutTag)
		if err != nil {
			s.storageError(w, err)
			return
		}

		s.audit.LogObjectOp("list", uri, "ok", "", clientIP(r))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.ListResponse{URI: uri, Objects: objects})
	})
}

// handleObjectTags marks an object with a named tag.
func (s *Server) handleObjectTags(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.withVaultMetrics(w, "tag_object", func(w http.ResponseWriter) {
		var req api.TagRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateURIParam(req.URI); err != nil {
			s.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Tag == "" {
			s.jsonError(w, "tag is required", http.StatusBadRequest)
			return
		}

		if err := s.store.TagObject(r.Context(), req.URI, req.Tag, []byte(req.Payload)); err != nil {
			s.audit.LogObjectOp("tag", req.URI, "error", err.Error(), clientIP(r))
			s.storageError(w, err)
			return
		}

		s.audit.LogObjectOp("tag", req.URI, "ok", "tag="+req.Tag, clientIP(r))
		s.publishEvent(api.EventTag, req.URI, req.Tag)
		w.WriteHeader(http.StatusNoContent)
	})
}

// writeMeta responds with the object's metadata document as JSON.
func (s *Server) writeMeta(w http.ResponseWriter, r *http.Request, uri string) {
	meta, err := s.store.GetMeta(r.Context(), uri)
	if err != nil {
		s.storageError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(api.MetaResponse{URI: uri, Meta: meta})
}

// writeData responds with the object's raw payload bytes.
func (s *Server) writeData(w http.ResponseWriter, r *http.Request, uri string) {
	data, err := s.store.GetData(r.Context(), uri)
	if err != nil {
		s.storageError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordDownload(int64(len(data)))
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}
