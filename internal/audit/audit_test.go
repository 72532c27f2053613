package audit

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	auditLogger := NewLogger(logger)

	if auditLogger == nil {
		t.Fatal("NewLogger returned nil")
	}
}

func TestLogAuth(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		result    string
		details   string
		sourceIP  string
		wantLevel string
	}{
		{
			name:      "successful auth",
			method:    "bearer",
			result:    "allowed",
			details:   "valid token",
			sourceIP:  "172.30.0.5",
			wantLevel: "info",
		},
		{
			name:      "failed auth",
			method:    "bearer",
			result:    "denied",
			details:   "invalid token",
			sourceIP:  "172.30.0.6",
			wantLevel: "warn",
		},
		{
			name:      "rejected share token",
			method:    "share",
			result:    "denied",
			details:   "token expired",
			sourceIP:  "172.30.0.7",
			wantLevel: "warn",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)
			auditLogger := NewLogger(logger)

			auditLogger.LogAuth(tt.method, tt.result, tt.details, tt.sourceIP)

			var logEntry map[string]interface{}
			if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
				t.Fatalf("failed to unmarshal log entry: %v", err)
			}

			// Check standard fields
			if got := logEntry["level"]; got != tt.wantLevel {
				t.Errorf("level = %v, want %v", got, tt.wantLevel)
			}
			if got := logEntry["event_type"]; got != "auth" {
				t.Errorf("event_type = %v, want auth", got)
			}
			if got := logEntry["method"]; got != tt.method {
				t.Errorf("method = %v, want %v", got, tt.method)
			}
			if got := logEntry["result"]; got != tt.result {
				t.Errorf("result = %v, want %v", got, tt.result)
			}
			if got := logEntry["source_ip"]; got != tt.sourceIP {
				t.Errorf("source_ip = %v, want %v", got, tt.sourceIP)
			}
		})
	}
}

func TestLogObjectOp(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		uri       string
		result    string
		details   string
		sourceIP  string
		wantLevel string
	}{
		{
			name:      "successful create",
			operation: "create_object",
			uri:       "/jobs/run-17/model",
			result:    "ok",
			details:   "",
			sourceIP:  "172.30.0.5",
			wantLevel: "info",
		},
		{
			name:      "failed delete",
			operation: "delete_object",
			uri:       "/jobs/missing",
			result:    "error",
			details:   "object not found",
			sourceIP:  "172.30.0.6",
			wantLevel: "warn",
		},
		{
			name:      "listing",
			operation: "list_objects",
			uri:       "/jobs",
			result:    "ok",
			details:   "",
			sourceIP:  "172.30.0.7",
			wantLevel: "info",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)
			auditLogger := NewLogger(logger)

			auditLogger.LogObjectOp(tt.operation, tt.uri, tt.result, tt.details, tt.sourceIP)

			var logEntry map[string]interface{}
			if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
				t.Fatalf("failed to unmarshal log entry: %v", err)
			}

			if got := logEntry["level"]; got != tt.wantLevel {
				t.Errorf("level = %v, want %v", got, tt.wantLevel)
			}
			if got := logEntry["event_type"]; got != "object_operation" {
				t.Errorf("event_type = %v, want object_operation", got)
			}
			if got := logEntry["operation"]; got != tt.operation {
				t.Errorf("operation = %v, want %v", got, tt.operation)
			}
			if got := logEntry["uri"]; got != tt.uri {
				t.Errorf("uri = %v, want %v", got, tt.uri)
			}
			if got := logEntry["result"]; got != tt.result {
				t.Errorf("result = %v, want %v", got, tt.result)
			}

			// details is optional
			if tt.details != "" {
				if got := logEntry["details"]; got != tt.details {
					t.Errorf("details = %v, want %v", got, tt.details)
				}
			}
		})
	}
}

func TestLogShare(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	auditLogger := NewLogger(logger)

	auditLogger.LogShare("issue", "/jobs/run-17/model", "ok", "ttl=24h", "172.30.0.5")

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to unmarshal log entry: %v", err)
	}

	if got := logEntry["event_type"]; got != "share" {
		t.Errorf("event_type = %v, want share", got)
	}
	if got := logEntry["action"]; got != "issue" {
		t.Errorf("action = %v, want issue", got)
	}
	if got := logEntry["uri"]; got != "/jobs/run-17/model" {
		t.Errorf("uri = %v, want /jobs/run-17/model", got)
	}
	if got := logEntry["details"]; got != "ttl=24h" {
		t.Errorf("details = %v, want ttl=24h", got)
	}
}

func TestNopLogger(t *testing.T) {
	// Calling methods on a nop logger must not panic
	auditLogger := Nop()

	auditLogger.LogAuth("bearer", "allowed", "details", "127.0.0.1")
	auditLogger.LogObjectOp("get_data", "/jobs/a", "ok", "", "127.0.0.1")
	auditLogger.LogShare("redeem", "/jobs/a", "ok", "", "127.0.0.1")
	auditLogger.LogNFSOp("Read", "/jobs/a/data", "ok", "", "127.0.0.1")
	auditLogger.LogAdmin("snapshot_export", "12 objects")
}

func TestOpenAppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.log")

	auditLogger, closeFn, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	auditLogger.LogAdmin("snapshot_export", "first")
	if err := closeFn(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// Reopening appends rather than truncating
	auditLogger, closeFn, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	auditLogger.LogAdmin("snapshot_import", "second")
	if err := closeFn(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(lines))
	}

	for i, line := range lines {
		var logEntry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &logEntry); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", i, err)
		}
		if got := logEntry["event_type"]; got != "admin" {
			t.Errorf("line %d event_type = %v, want admin", i, got)
		}
		if _, ok := logEntry["time"]; !ok {
			t.Errorf("line %d missing timestamp", i)
		}
	}
}

func TestMessageContent(t *testing.T) {
	// Verify that message field contains expected strings
	tests := []struct {
		name        string
		logFunc     func(*Logger)
		wantMessage string
	}{
		{
			name: "auth message",
			logFunc: func(l *Logger) {
				l.LogAuth("bearer", "allowed", "", "127.0.0.1")
			},
			wantMessage: "Authentication event",
		},
		{
			name: "object message",
			logFunc: func(l *Logger) {
				l.LogObjectOp("get_data", "/jobs/a", "ok", "", "127.0.0.1")
			},
			wantMessage: "Object operation",
		},
		{
			name: "share message",
			logFunc: func(l *Logger) {
				l.LogShare("issue", "/jobs/a", "ok", "", "127.0.0.1")
			},
			wantMessage: "Share event",
		},
		{
			name: "nfs message",
			logFunc: func(l *Logger) {
				l.LogNFSOp("Read", "/jobs/a/data", "ok", "", "127.0.0.1")
			},
			wantMessage: "NFS operation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)
			auditLogger := NewLogger(logger)

			tt.logFunc(auditLogger)

			var logEntry map[string]interface{}
			if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
				t.Fatalf("failed to unmarshal log entry: %v", err)
			}

			message, ok := logEntry["message"].(string)
			if !ok {
				t.Fatal("message field not found or not a string")
			}

			if !strings.Contains(message, tt.wantMessage) {
				t.Errorf("message = %q, want to contain %q", message, tt.wantMessage)
			}
		})
	}
}
