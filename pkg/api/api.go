// Package api defines the shared request and response types for the
// runvault HTTP API.
package api

import "time"

// Event types pushed to event stream subscribers.
const (
	EventCreate     = "create"
	EventUpdateMeta = "update_meta"
	EventUpdateData = "update_data"
	EventDelete     = "delete"
	EventTag        = "tag"
)

// CreateObjectRequest stores a new object. The payload is base64 encoded
// in transit; an absent payload stores an empty object.
type CreateObjectRequest struct {
	Meta map[string]any `json:"meta,omitempty"`
	Data []byte         `json:"data,omitempty"`
}

// CreateObjectResponse is returned after an object is stored.
type CreateObjectResponse struct {
	URI string `json:"uri"`
}

// MetaResponse carries an object's metadata document.
type MetaResponse struct {
	URI  string         `json:"uri"`
	Meta map[string]any `json:"meta"`
}

// DetailResponse carries an object's metadata and payload together.
// The payload is base64 encoded in transit.
type DetailResponse struct {
	URI  string         `json:"uri"`
	Meta map[string]any `json:"meta"`
	Data []byte         `json:"data"`
}

// UpdateMetaRequest merges or replaces an object's metadata document.
type UpdateMetaRequest struct {
	Meta    map[string]any `json:"meta"`
	Replace bool           `json:"replace"`
}

// ListResponse contains the object URIs directly under a directory URI.
type ListResponse struct {
	URI     string   `json:"uri"`
	Objects []string `json:"objects"`
}

// TagRequest marks an object directory with a named tag.
type TagRequest struct {
	URI     string `json:"uri"`
	Tag     string `json:"tag"`
	Payload string `json:"payload,omitempty"`
}

// ShareRequest asks the server to mint a time-limited share link.
type ShareRequest struct {
	URI string `json:"uri"`
	TTL string `json:"ttl,omitempty"` // Go duration string; server default when empty
}

// ShareResponse returns the minted share link.
type ShareResponse struct {
	Token     string    `json:"token"`
	Path      string    `json:"path"` // redeem path, e.g. /share/<token>
	ExpiresAt time.Time `json:"expires_at"`
}

// StatusResponse reports server identity and store usage.
type StatusResponse struct {
	Server         string `json:"server"`
	Version        string `json:"version"`
	URIRoot        string `json:"uri_root"`
	Objects        int    `json:"objects"`
	DataBytes      int64  `json:"data_bytes"`
	MetaBytes      int64  `json:"meta_bytes"`
	CapacityBytes  int64  `json:"capacity_bytes"`  // 0 when the volume cannot be inspected
	AvailableBytes int64  `json:"available_bytes"` // non-root available space
	UptimeSeconds  int64  `json:"uptime_seconds"`
}

// Event describes a vault mutation pushed to event stream subscribers.
type Event struct {
	Type string    `json:"type"`
	URI  string    `json:"uri"`
	Tag  string    `json:"tag,omitempty"`
	Time time.Time `json:"time"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}
