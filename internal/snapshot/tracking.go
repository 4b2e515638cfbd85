package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"

	"replicurse/internal/filemutex"
)

// trackingEntry is one line of the snapshot tracking file: enough to
// release an orphaned snapshot left by a crashed prior run.
type trackingEntry struct {
	ShadowID     string    `json:"ShadowId"`
	SourceVolume string    `json:"SourceVolume"`
	CreatedAt    time.Time `json:"CreatedAt"`
	ServerName   string    `json:"ServerName,omitempty"`
	IsRemote     bool      `json:"IsRemote,omitempty"`
}

// Tracker persists the set of currently-outstanding snapshots so a
// crashed process's orphaned snapshots can be released on next startup.
type Tracker struct {
	path  string
	mutex *filemutex.Mutex
}

// NewTracker builds a Tracker backed by a file in dir, synchronized with a
// per-user-session named mutex (timeout 10s per the concurrency model).
func NewTracker(dir string) *Tracker {
	return &Tracker{
		path:  filepath.Join(dir, "replicurse-snapshot-tracking.json"),
		mutex: filemutex.New(dir, "replicurse-snapshot-tracking-session"),
	}
}

const trackingMutexTimeout = 10 * time.Second

// Record appends an entry for a newly created snapshot.
func (t *Tracker) Record(s Snapshot) error {
	var writeErr error
	filemutex.WithLock(t.mutex, trackingMutexTimeout, func() {
		entries, err := t.readLocked()
		if err != nil {
			writeErr = err
			return
		}
		entries = append(entries, trackingEntry{
			ShadowID:     s.ID,
			SourceVolume: s.SourceVolume,
			CreatedAt:    s.CreatedAt,
			ServerName:   s.ServerName,
			IsRemote:     s.IsRemote,
		})
		writeErr = t.writeLocked(entries)
	})
	return writeErr
}

// Forget removes the entry for shadowID, e.g. once the snapshot has been
// cleanly released.
func (t *Tracker) Forget(shadowID string) error {
	var writeErr error
	filemutex.WithLock(t.mutex, trackingMutexTimeout, func() {
		entries, err := t.readLocked()
		if err != nil {
			writeErr = err
			return
		}
		kept := entries[:0]
		for _, e := range entries {
			if e.ShadowID != shadowID {
				kept = append(kept, e)
			}
		}
		writeErr = t.writeLocked(kept)
	})
	return writeErr
}

// RecoverOrphans reads the tracking file, invokes release for each
// recorded snapshot, and removes the tracking file regardless of whether
// every release succeeded (crash-left snapshots are a best-effort
// cleanup, not a correctness requirement).
func RecoverOrphans(dir string, release func(shadowID, sourceVolume string, isRemote bool, serverName string) error) error {
	t := NewTracker(dir)

	var entries []trackingEntry
	var readErr error
	filemutex.WithLock(t.mutex, trackingMutexTimeout, func() {
		entries, readErr = t.readLocked()
	})
	if readErr != nil {
		return readErr
	}

	var firstErr error
	for _, e := range entries {
		if err := release(e.ShadowID, e.SourceVolume, e.IsRemote, e.ServerName); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	_ = os.Remove(t.path)
	return firstErr
}

func (t *Tracker) readLocked() ([]trackingEntry, error) {
	b, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot tracking file: %w", err)
	}
	var entries []trackingEntry
	if len(b) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("parse snapshot tracking file: %w", err)
	}
	return entries, nil
}

func (t *Tracker) writeLocked(entries []trackingEntry) error {
	b, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal snapshot tracking file: %w", err)
	}

	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return fmt.Errorf("write snapshot tracking temp file: %w", err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return fmt.Errorf("rename snapshot tracking file: %w", err)
	}
	return nil
}
