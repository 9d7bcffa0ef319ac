package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestWatcherFiresOnChangeForMediaFile(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	var seen []string
	done := make(chan struct{}, 1)

	w, err := New(dir, func(changed []string) {
		mu.Lock()
		seen = append(seen, changed...)
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	target := filepath.Join(dir, "recovered.png")
	if err := os.WriteFile(target, []byte("bytes"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for onChange callback")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) == 0 {
		t.Fatalf("expected at least one change event")
	}
}

func TestWatcherIgnoresNonMediaFile(t *testing.T) {
	dir := t.TempDir()

	fired := make(chan struct{}, 1)
	w, err := New(dir, func([]string) {
		select {
		case fired <- struct{}{}:
		default:
		}
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	select {
	case <-fired:
		t.Fatal("expected non-media file to be ignored")
	case <-time.After(300 * time.Millisecond):
	}
}
