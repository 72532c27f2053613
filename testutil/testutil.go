// Package testutil provides shared test utilities for runvault tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/runvault/runvault/internal/storage"
)

// TempDir creates a temporary directory for testing and returns a cleanup function.
func TempDir(t *testing.T) (string, func()) {
	t.Helper()
	dir, err := os.MkdirTemp("", "runvault-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	return dir, func() {
		_ = os.RemoveAll(dir)
	}
}

// TempFile creates a temporary file with the given content and returns its path.
func TempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

// TempStore opens a store rooted in a fresh temporary directory.
func TempStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(t.TempDir(), "/")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	return store
}

// SeedObject creates an object in the store, failing the test on error.
func SeedObject(t *testing.T, store *storage.Store, uri string, data []byte, meta map[string]any) {
	t.Helper()
	if _, err := store.CreateObject(context.Background(), uri, data, meta, true); err != nil {
		t.Fatalf("failed to seed object %s: %v", uri, err)
	}
}
