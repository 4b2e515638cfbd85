// Package checkpoint persists completed-chunk identity so a run can
// resume after a crash, and reads it back on the next attempt.
//
// Grounded on the Store/FileStore pattern used for periodic checkpointing
// elsewhere in the corpus: schema-versioned documents, atomic
// temp-then-rename writes, a forward-incompatible version treated as
// absent rather than an error.
package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"replicurse/internal/logging"
)

// CurrentSchemaVersion is the version string this package writes and
// expects on read. A mismatched version on load is treated as "no
// checkpoint" so callers begin fresh rather than trying to interpret an
// unknown schema.
const CurrentSchemaVersion = "1.0"

// Checkpoint is the on-disk document, matching the external interface
// schema exactly (field names and casing are part of the file format).
type Checkpoint struct {
	Version             string    `json:"Version"`
	SessionID           string    `json:"SessionId"`
	SavedAt             time.Time `json:"SavedAt"`
	ProfileIndex        int       `json:"ProfileIndex"`
	CurrentProfileName  string    `json:"CurrentProfileName"`
	CompletedChunkPaths []string  `json:"CompletedChunkPaths"`
	CompletedCount      int       `json:"CompletedCount"`
	FailedCount         int       `json:"FailedCount"`
	BytesComplete       int64     `json:"BytesComplete"`
	StartTime           time.Time `json:"StartTime"`
}

// Store reads and writes checkpoint documents at a fixed path.
type Store struct {
	path string
	log  *logging.Logger
}

// NewStore builds a Store for the checkpoint file at
// <logRoot>/<session>/replication-checkpoint.json.
func NewStore(logRoot, session string, log *logging.Logger) *Store {
	return &Store{
		path: filepath.Join(logRoot, session, "replication-checkpoint.json"),
		log:  log,
	}
}

// Save writes cp through a temp file: write to path+".tmp", rotate any
// existing final file to path+".bak", rename temp to final, then delete
// the backup. A complete copy stays on disk at every step of the swap,
// but between the rotate and the final rename the old copy is at
// path+".bak" and nothing is at `path`; Load reads only `path`.
func (s *Store) Save(cp Checkpoint) error {
	cp.Version = CurrentSchemaVersion

	if err := os.MkdirAll(filepath.Dir(s.path), os.ModePerm); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}

	b, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return fmt.Errorf("write checkpoint temp file: %w", err)
	}

	bak := s.path + ".bak"
	if _, err := os.Stat(s.path); err == nil {
		if err := os.Rename(s.path, bak); err != nil {
			return fmt.Errorf("rotate checkpoint backup: %w", err)
		}
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename checkpoint temp file into place: %w", err)
	}

	_ = os.Remove(bak)
	return nil
}

// Load reads the checkpoint at path. A missing file returns (nil, nil): no
// checkpoint, not an error. A schema-version mismatch is logged and also
// treated as absent.
func (s *Store) Load() (*Checkpoint, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(b, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}

	if cp.Version != CurrentSchemaVersion {
		if s.log != nil {
			s.log.Warnf("checkpoint schema version %q does not match current %q, starting fresh", cp.Version, CurrentSchemaVersion)
		}
		return nil, nil
	}

	return &cp, nil
}

// Remove deletes the checkpoint file, on successful full-run completion.
// A missing file is not an error.
func (s *Store) Remove() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

// IsCompleted reports whether sourcePath appears in cp's completed-chunk
// list, ordinal case-insensitive. A nil checkpoint or nil entries in the
// list are tolerated and simply never match.
func IsCompleted(sourcePath string, cp *Checkpoint) bool {
	if cp == nil {
		return false
	}
	for _, p := range cp.CompletedChunkPaths {
		if p == "" {
			continue
		}
		if strings.EqualFold(p, sourcePath) {
			return true
		}
	}
	return false
}
