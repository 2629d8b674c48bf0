package confloader

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func startWatcher(t *testing.T, file string, opts ...WatcherOption) (*Watcher, chan string) {
	t.Helper()
	w, err := NewWatcher(opts...)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	t.Cleanup(func() { _ = w.Stop() })

	if err := w.Watch(file); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	changed := make(chan string, 16)
	w.OnChange(func(path string) {
		select {
		case changed <- path:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Run(ctx)
	time.Sleep(50 * time.Millisecond)
	return w, changed
}

func TestWatcher_Watch_NonexistentDir(t *testing.T) {
	w, err := NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	if err := w.Watch("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Watch() expected error for nonexistent directory")
	}
}

func TestWatcher_FileChange(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(file, []byte("log:\n  level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, changed := startWatcher(t, file, WithDebounce(20*time.Millisecond))

	if err := os.WriteFile(file, []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case path := <-changed:
		if filepath.Base(path) != "config.yaml" {
			t.Errorf("changed path = %q", path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification")
	}
}

func TestWatcher_RenameIntoPlace(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(file, []byte("a: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, changed := startWatcher(t, file, WithDebounce(20*time.Millisecond))

	tmp := filepath.Join(dir, "config.yaml.tmp")
	if err := os.WriteFile(tmp, []byte("a: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, file); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("rename into place not reported")
	}
}

func TestWatcher_IgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(file, []byte("a: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, changed := startWatcher(t, file, WithDebounce(0))

	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case path := <-changed:
		t.Errorf("unexpected notification for %q", path)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_DebounceCoalesces(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(file, []byte("a: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, changed := startWatcher(t, file, WithDebounce(200*time.Millisecond))

	for i := 1; i <= 5; i++ {
		if err := os.WriteFile(file, []byte("a: 1\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("no notification after burst")
	}
	select {
	case <-changed:
		t.Error("burst reported more than once")
	case <-time.After(400 * time.Millisecond):
	}
}

func TestWatcher_ConcurrentCallbacks(t *testing.T) {
	w, err := NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	var mu sync.Mutex
	count := 0
	w.OnChange(func(string) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.notifyCallbacks("/test/path")
		}()
	}
	wg.Wait()

	if count != 100 {
		t.Errorf("count = %d, want 100", count)
	}
}

func TestWatcher_StopIdempotent(t *testing.T) {
	w, err := NewWatcher()
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
