// Package health writes and reads the periodic status document external
// monitors poll, and exposes the same numbers as Prometheus metrics for
// scrape-based consumers.
package health

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"replicurse/internal/logging"
)

// StatusFileName is the fixed external-interface filename, written to the
// OS temp directory.
const StatusFileName = "Robocurse-Health.json"

// Status is the on-disk document, matching the external interface schema.
type Status struct {
	Timestamp       time.Time `json:"Timestamp"`
	Phase           string    `json:"Phase"`
	CurrentProfile  *string   `json:"CurrentProfile"`
	ProfileIndex    int       `json:"ProfileIndex"`
	ProfileCount    int       `json:"ProfileCount"`
	ChunksCompleted int       `json:"ChunksCompleted"`
	ChunksTotal     int       `json:"ChunksTotal"`
	ChunksPending   int       `json:"ChunksPending"`
	ChunksFailed    int       `json:"ChunksFailed"`
	ActiveJobs      int       `json:"ActiveJobs"`
	BytesCompleted  int64     `json:"BytesCompleted"`
	EtaSeconds      *int64    `json:"EtaSeconds"`
	SessionID       string    `json:"SessionId"`
	Healthy         bool      `json:"Healthy"`
	Message         string    `json:"Message"`

	// IsStale is set by ReadStatus when the document is older than the
	// caller's max age; it is never itself persisted.
	IsStale bool `json:"-"`
}

// Reporter writes Status documents at a fixed path, rate-limited to at
// most one write per interval unless forced.
type Reporter struct {
	path     string
	interval time.Duration
	log      *logging.Logger

	mu       sync.Mutex
	lastWrite time.Time
}

// NewReporter builds a Reporter that writes to the OS temp directory's
// StatusFileName, skipping writes more frequent than interval unless
// forced.
func NewReporter(interval time.Duration, log *logging.Logger) *Reporter {
	return &Reporter{
		path:     filepath.Join(os.TempDir(), StatusFileName),
		interval: interval,
		log:      log,
	}
}

// WriteStatus writes status atomically (temp file + rename), skipping the
// write if less than Reporter.interval has elapsed since the last
// successful write, unless force is true.
func (r *Reporter) WriteStatus(status Status, force bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !force && r.interval > 0 && time.Since(r.lastWrite) < r.interval {
		return nil
	}

	status.Timestamp = time.Now().UTC()

	b, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal health status: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return fmt.Errorf("write health status temp file: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("rename health status file: %w", err)
	}

	r.lastWrite = time.Now()
	return nil
}

// ReadStatus reads and deserializes the health status file. If maxAge > 0
// and the document's timestamp is older than that, IsStale is set and
// Healthy is forced false, but the rest of the document is returned
// unmodified so callers can still show the last-known values.
func (r *Reporter) ReadStatus(maxAge time.Duration) (Status, error) {
	b, err := os.ReadFile(r.path)
	if err != nil {
		return Status{}, fmt.Errorf("read health status: %w", err)
	}

	var status Status
	if err := json.Unmarshal(b, &status); err != nil {
		return Status{}, fmt.Errorf("parse health status: %w", err)
	}

	if maxAge > 0 && time.Since(status.Timestamp) > maxAge {
		status.IsStale = true
		status.Healthy = false
	}
	return status, nil
}

// Remove deletes the status file; called when the run completes. A
// missing file is not an error.
func (r *Reporter) Remove() error {
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove health status: %w", err)
	}
	return nil
}

// ComputeHealthy implements the schema's derivation rule: healthy iff the
// phase is not "stopped" and there have been no failures.
func ComputeHealthy(phase string, failedCount int) bool {
	return phase != "stopped" && failedCount == 0
}
