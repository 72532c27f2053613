package tracing

import (
	"bytes"
	"testing"
)

func TestSnapshotWithoutInit(t *testing.T) {
	Stop()

	if Enabled() {
		t.Error("Enabled() should return false before Init")
	}

	var buf bytes.Buffer
	if err := Snapshot(&buf); err != ErrNotEnabled {
		t.Errorf("Snapshot() = %v, want ErrNotEnabled", err)
	}
}

func TestInitAndSnapshot(t *testing.T) {
	Stop()

	if err := Init(DefaultBufferSize); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer Stop()

	if !Enabled() {
		t.Error("Enabled() should return true after Init")
	}

	var buf bytes.Buffer
	if err := Snapshot(&buf); err != nil {
		t.Errorf("Snapshot() failed: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("Snapshot() wrote nothing")
	}
}

func TestInitDefaultBufferSize(t *testing.T) {
	Stop()

	if err := Init(0); err != nil {
		t.Fatalf("Init(0) failed: %v", err)
	}
	defer Stop()

	if !Enabled() {
		t.Error("Enabled() should return true")
	}
}

func TestInitTwice(t *testing.T) {
	Stop()

	if err := Init(DefaultBufferSize); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer Stop()

	// A second Init keeps the running recorder.
	if err := Init(DefaultBufferSize); err != nil {
		t.Fatalf("second Init failed: %v", err)
	}
	if !Enabled() {
		t.Error("Enabled() should return true")
	}
}

func TestStopMultiple(t *testing.T) {
	Stop()

	if err := Init(DefaultBufferSize); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	Stop()
	Stop()
	Stop()

	if Enabled() {
		t.Error("Enabled() should return false after Stop")
	}
}

func TestSnapshotAfterStop(t *testing.T) {
	Stop()

	if err := Init(DefaultBufferSize); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	Stop()

	var buf bytes.Buffer
	if err := Snapshot(&buf); err != ErrNotEnabled {
		t.Errorf("Snapshot() after Stop = %v, want ErrNotEnabled", err)
	}
}
