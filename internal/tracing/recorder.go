// Package tracing keeps a runtime flight recorder running so operators can
// pull a `go tool trace` snapshot from a live server.
package tracing

import (
	"errors"
	"io"
	"runtime/trace"
	"sync"
	"time"
)

// DefaultBufferSize is the trace ring buffer size used when none is
// configured (10MB).
const DefaultBufferSize = 10 * 1024 * 1024

// ErrNotEnabled is returned by Snapshot while no recorder is running.
var ErrNotEnabled = errors.New("tracing not enabled")

var (
	mu       sync.Mutex
	recorder *trace.FlightRecorder
)

// Init starts the flight recorder with a ring buffer of bufferSize bytes.
// A bufferSize of 0 or less uses DefaultBufferSize.
func Init(bufferSize int) error {
	mu.Lock()
	defer mu.Unlock()

	if recorder != nil {
		return nil
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	fr := trace.NewFlightRecorder(trace.FlightRecorderConfig{
		MinAge:   30 * time.Second,
		MaxBytes: uint64(bufferSize),
	})
	if err := fr.Start(); err != nil {
		return err
	}

	recorder = fr
	return nil
}

// Enabled reports whether a recorder is running.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return recorder != nil
}

// Snapshot writes the recorder's current ring buffer to w in a format
// `go tool trace` accepts.
func Snapshot(w io.Writer) error {
	mu.Lock()
	defer mu.Unlock()

	if recorder == nil {
		return ErrNotEnabled
	}
	_, err := recorder.WriteTo(w)
	return err
}

// Stop stops the recorder. Safe to call repeatedly.
func Stop() {
	mu.Lock()
	defer mu.Unlock()

	if recorder != nil {
		recorder.Stop()
		recorder = nil
	}
}
