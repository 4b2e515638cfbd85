// Package snapshot creates and tears down point-in-time filesystem
// snapshots, local or remote, and translates original paths into their
// snapshot-equivalent form so the copier can read a consistent view of a
// volume even while the original is actively changing.
package snapshot

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Snapshot describes one active point-in-time view, local or remote.
type Snapshot struct {
	ID           string
	SourceVolume string
	DevicePath   string
	CreatedAt    time.Time

	// LinkPath is the filesystem directory-link the manager created so the
	// copier can address the snapshot as an ordinary path rather than the
	// raw device path.
	LinkPath string

	// Remote-only fields.
	IsRemote        bool
	ServerName      string
	ShareName       string
	ServerLocalPath string
	JunctionPath    string
}

// retryableSubstrings is the fallback transient-failure classifier used
// when the platform error code isn't in the known-retryable set.
var retryableSubstrings = []string{"busy", "timeout", "lock", "in use", "try again"}

// knownRetryableCodes are platform error codes known to indicate a
// transient snapshot-facility failure (VSS writer busy, provider timeout,
// and similar). Populated from the platform's own documented set; this
// orchestrator treats them as opaque integers.
var knownRetryableCodes = map[int]bool{
	21:  true, // device not ready
	170: true, // requested resource in use
	1450: true, // insufficient system resources (often transient under load)
}

// IsTransient classifies a snapshot-creation failure as retryable. code is
// the platform error code if known, or 0 if only a message is available.
func IsTransient(code int, message string) bool {
	if code != 0 && knownRetryableCodes[code] {
		return true
	}
	lower := strings.ToLower(message)
	for _, substr := range retryableSubstrings {
		if strings.Contains(lower, substr) {
			return true
		}
	}
	return false
}

// Translate rewrites an original path under a snapshot's source volume to
// its snapshot-equivalent path. For the root directory case (original ==
// the volume root) it returns the snapshot's link/junction path itself.
func Translate(original string, snap Snapshot) (string, error) {
	root := snap.ShadowRoot()
	return translate(original, snap.SourceVolume, root)
}

// TranslateWithRoots is the alternate call form the spec allows for
// testing and unusual topologies: the shadow root and source volume are
// supplied directly instead of being derived from a Snapshot value.
func TranslateWithRoots(original, sourceVolume, shadowRoot string) (string, error) {
	return translate(original, sourceVolume, shadowRoot)
}

func translate(original, sourceVolume, shadowRoot string) (string, error) {
	cleanOriginal := filepath.Clean(original)
	cleanVolume := filepath.Clean(sourceVolume)

	normOriginal := strings.ToLower(cleanOriginal)
	normVolume := strings.ToLower(cleanVolume)

	if normOriginal == normVolume {
		return shadowRoot, nil
	}
	prefix := normVolume
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	if !strings.HasPrefix(normOriginal, prefix) {
		return "", fmt.Errorf("translate: %q is not under source volume %q", original, sourceVolume)
	}

	rel := cleanOriginal[len(cleanVolume):]
	rel = strings.TrimPrefix(rel, string(filepath.Separator))
	return filepath.Join(shadowRoot, rel), nil
}

// ShadowRoot returns the path the copier should actually address: the
// server-side junction for a remote snapshot, the local directory-link
// for a local one.
func (s Snapshot) ShadowRoot() string {
	if s.IsRemote && s.JunctionPath != "" {
		return s.JunctionPath
	}
	return s.LinkPath
}
