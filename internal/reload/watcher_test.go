package reload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestWatcherDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beacon.yaml")
	other := filepath.Join(dir, "other.yaml")
	if err := os.WriteFile(path, []byte("a: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	w, err := New([]string{path, ""}, func() error {
		calls.Add(1)
		return nil
	}, Options{Debounce: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Unwatched files in the same directory are ignored
	if err := os.WriteFile(other, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("calls = %d after unrelated write", calls.Load())
	}

	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("a: 2\n"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, func() bool { return calls.Load() >= 1 })

	time.Sleep(300 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 for a burst of writes", got)
	}
	if w.Reloads() != 1 {
		t.Errorf("Reloads() = %d, want 1", w.Reloads())
	}
}

func TestWatcherSurvivesCallbackError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	w, err := New([]string{path}, func() error {
		calls.Add(1)
		return errors.New("bad rules")
	}, Options{Debounce: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if err := os.WriteFile(path, []byte("rules: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return calls.Load() == 1 })

	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(path, []byte("rules: [x]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return calls.Load() == 2 })
}

func TestNewMissingDirectory(t *testing.T) {
	_, err := New([]string{"/nonexistent-beacon-dir/beacon.yaml"}, func() error { return nil }, Options{})
	if err == nil {
		t.Error("expected error for missing directory")
	}
}
