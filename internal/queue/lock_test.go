//go:build unix

package queue

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileLock_AcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	l := newFileLock(path)

	if err := l.acquire(defaultLockTimeout); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	data, err := os.ReadFile(path + ".lock")
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	if !strings.HasPrefix(string(data), "pid:") {
		t.Errorf("lock file should contain holder info, got %q", data)
	}

	if err := l.release(); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	// Second release is a no-op.
	if err := l.release(); err != nil {
		t.Fatalf("second release: %v", err)
	}
}

func TestFileLock_HeldLockTimesOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	owner := newFileLock(path)
	if err := owner.acquire(defaultLockTimeout); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer owner.release()

	start := time.Now()
	err := newFileLock(path).acquire(50 * time.Millisecond)
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if !strings.Contains(err.Error(), "pid:") {
		t.Errorf("error should name the holder: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("acquire waited too long: %v", time.Since(start))
	}
}

func TestFileLock_ReacquireAfterRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	first := newFileLock(path)
	if err := first.acquire(defaultLockTimeout); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := first.release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	second := newFileLock(path)
	if err := second.acquire(defaultLockTimeout); err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	second.release()
}
