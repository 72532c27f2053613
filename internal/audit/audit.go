// Package audit provides structured audit logging for security-relevant
// vault events.
package audit

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Logger provides structured audit logging for security-relevant events.
// All audit events are logged with structured fields for easy filtering and analysis.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new audit logger from a zerolog.Logger.
func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{logger: logger}
}

// Nop returns an audit logger that silently discards all events.
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// Open creates an audit logger appending JSON events to the file at path.
// Parent directories are created as needed. The returned close function
// releases the underlying file.
func Open(path string) (*Logger, func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("create audit directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit log: %w", err)
	}
	logger := zerolog.New(f).With().Timestamp().Logger()
	return NewLogger(logger), f.Close, nil
}

// levelFor maps an event result onto a log level. Denied and failed
// events surface as warnings.
func levelFor(result string) zerolog.Level {
	if result == "denied" || result == "error" {
		return zerolog.WarnLevel
	}
	return zerolog.InfoLevel
}

// LogAuth logs an authentication event.
// method: authentication method (e.g., "bearer", "share")
// result: "allowed" or "denied"
// details: additional context (e.g., error message)
// sourceIP: source IP address of the request
func (l *Logger) LogAuth(method, result, details, sourceIP string) {
	l.logger.WithLevel(levelFor(result)).
		Str("event_type", "auth").
		Str("method", method).
		Str("result", result).
		Str("details", details).
		Str("source_ip", sourceIP).
		Msg("Authentication event")
}

// LogObjectOp logs a vault object operation event.
// operation: operation name (e.g., "create_object", "get_data", "delete_object")
// uri: the object URI the operation addressed
// result: "ok", "denied" or "error"
// details: additional context (e.g., error message)
// sourceIP: source IP address of the request
func (l *Logger) LogObjectOp(operation, uri, result, details, sourceIP string) {
	event := l.logger.WithLevel(levelFor(result)).
		Str("event_type", "object_operation").
		Str("component", "vault").
		Str("operation", operation).
		Str("uri", uri).
		Str("result", result).
		Str("source_ip", sourceIP)

	if details != "" {
		event = event.Str("details", details)
	}

	event.Msg("Object operation")
}

// LogShare logs a share link lifecycle event.
// action: "issue" or "redeem"
// uri: the object URI the share grants access to
// result: "ok" or "denied"
// details: additional context (e.g., expiry, rejection reason)
// sourceIP: source IP address of the request
func (l *Logger) LogShare(action, uri, result, details, sourceIP string) {
	event := l.logger.WithLevel(levelFor(result)).
		Str("event_type", "share").
		Str("action", action).
		Str("uri", uri).
		Str("result", result).
		Str("source_ip", sourceIP)

	if details != "" {
		event = event.Str("details", details)
	}

	event.Msg("Share event")
}

// LogNFSOp logs an NFS gateway operation event.
// operation: NFS operation (e.g., "Mount", "Read", "Open")
// path: file path within the export (may be empty for mount operations)
// result: "ok", "denied" or "error"
// details: additional context (e.g., error message)
// sourceIP: source IP address of the connection
func (l *Logger) LogNFSOp(operation, path, result, details, sourceIP string) {
	event := l.logger.WithLevel(levelFor(result)).
		Str("event_type", "nfs_operation").
		Str("component", "nfs").
		Str("operation", operation).
		Str("result", result).
		Str("source_ip", sourceIP)

	if path != "" {
		event = event.Str("path", path)
	}
	if details != "" {
		event = event.Str("details", details)
	}

	event.Msg("NFS operation")
}

// LogAdmin logs an administrative event.
// action: action performed (e.g., "snapshot_export", "snapshot_import", "service_start")
// details: additional context
func (l *Logger) LogAdmin(action, details string) {
	l.logger.Info().
		Str("event_type", "admin").
		Str("action", action).
		Str("details", details).
		Msg("Administrative event")
}
