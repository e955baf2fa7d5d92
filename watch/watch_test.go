package watch

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatcherFiresAfterDebounce(t *testing.T) {
	root := t.TempDir()

	var fired int32
	w, err := New(root, func() { atomic.AddInt32(&fired, 1) }, WithDebounce(50*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(root, "20240101"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&fired) > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("trigger was not called within the deadline")
}

func TestNewRejectsNilTrigger(t *testing.T) {
	if _, err := New(t.TempDir(), nil); err == nil {
		t.Fatal("expected error for nil trigger")
	}
}
