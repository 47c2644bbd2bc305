package queue

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultLockTimeout = 500 * time.Millisecond
	initialBackoff     = 5 * time.Millisecond
	maxBackoff         = 50 * time.Millisecond
)

// ErrLocked is returned when another process owns the queue file.
var ErrLocked = errors.New("queue is locked by another process")

// fileLock gives one process exclusive ownership of a queue file using OS
// file locks. The lock is released when the process exits, including crashes.
type fileLock struct {
	path string
	file *os.File
}

func newFileLock(queuePath string) *fileLock {
	return &fileLock{path: queuePath + ".lock"}
}

// acquire takes the lock, retrying with backoff until timeout.
func (l *fileLock) acquire(timeout time.Duration) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	l.file = f

	deadline := time.Now().Add(timeout)
	backoff := initialBackoff

	for {
		if err := l.tryLock(); err == nil {
			l.writeHolder()
			return nil
		}

		if time.Now().After(deadline) {
			holder := l.readHolder()
			l.file.Close()
			l.file = nil
			return fmt.Errorf("%w (holder %s)", ErrLocked, holder)
		}

		time.Sleep(backoff)
		if backoff < maxBackoff {
			backoff = min(backoff*2, maxBackoff)
		}
	}
}

func (l *fileLock) release() error {
	if l.file == nil {
		return nil
	}
	l.file.Truncate(0)
	l.unlock()
	err := l.file.Close()
	l.file = nil
	return err
}

// writeHolder records the owning pid for diagnostics.
func (l *fileLock) writeHolder() {
	l.file.Truncate(0)
	l.file.Seek(0, 0)
	fmt.Fprintf(l.file, "pid:%d\ntime:%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
	l.file.Sync()
}

func (l *fileLock) readHolder() string {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return "unknown"
	}

	var pid, since string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		switch {
		case strings.HasPrefix(line, "pid:"):
			pid = strings.TrimPrefix(line, "pid:")
		case strings.HasPrefix(line, "time:"):
			since = strings.TrimPrefix(line, "time:")
		}
	}
	if pid == "" {
		return "unknown"
	}

	if n, err := strconv.Atoi(pid); err == nil && !isProcessAlive(n) {
		return fmt.Sprintf("pid:%s since %s, stale", pid, since)
	}
	return fmt.Sprintf("pid:%s since %s", pid, since)
}

// tryLock, unlock and isProcessAlive are platform specific:
// lock_unix.go (flock) and lock_windows.go (LockFileEx).
