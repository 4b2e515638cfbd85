// Package filemutex provides a named, cross-process mutex backed by an
// flock'd lock file, for coordinating writes to a shared file across
// multiple processes on the same host. Its one user is the snapshot
// tracking file; the operational and audit log writers do not take it.
package filemutex

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// Mutex is a named cross-process lock. The zero value is not usable; use
// New.
type Mutex struct {
	path string
	fd   int
	file *os.File
}

// New returns a Mutex named name, backed by a lock file under dir (the OS
// temp directory is the usual choice for process-wide coordination).
func New(dir, name string) *Mutex {
	return &Mutex{path: filepath.Join(dir, name+".lock")}
}

// Lock attempts to acquire the mutex, blocking until acquired or timeout
// elapses. On timeout it returns an error; the spec's policy is that
// callers proceed unsynchronized rather than lose the write, so callers
// should treat a timeout as "proceed without the lock", not as a fatal
// error.
func (m *Mutex) Lock(timeout time.Duration) error {
	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open lock file %s: %w", m.path, err)
	}
	fd := int(f.Fd())

	deadline := time.Now().Add(timeout)
	backoff := 10 * time.Millisecond
	for {
		err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			m.fd = fd
			// Intentionally leak f's Go-level handle alongside the raw fd:
			// closing it would release the flock. Unlock closes it.
			m.file = f
			return nil
		}
		if time.Now().After(deadline) {
			f.Close()
			return fmt.Errorf("acquire lock %s: timed out after %s", m.path, timeout)
		}
		time.Sleep(backoff)
		if backoff < 200*time.Millisecond {
			backoff *= 2
		}
	}
}

// Unlock releases the mutex. Safe to call even if Lock timed out (no-op).
func (m *Mutex) Unlock() error {
	if m.file == nil {
		return nil
	}
	err := unix.Flock(m.fd, unix.LOCK_UN)
	closeErr := m.file.Close()
	m.file = nil
	if err != nil {
		return fmt.Errorf("release lock %s: %w", m.path, err)
	}
	return closeErr
}

// WithLock runs fn while holding the mutex if it can be acquired within
// timeout; otherwise it runs fn unsynchronized, per the spec's
// proceed-rather-than-lose-the-write policy.
func WithLock(m *Mutex, timeout time.Duration, fn func()) {
	if err := m.Lock(timeout); err != nil {
		fn()
		return
	}
	defer m.Unlock()
	fn()
}
