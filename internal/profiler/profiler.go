package profiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/semaphore"

	"replicurse/internal/copier"
	"replicurse/internal/logging"
	"replicurse/internal/types"
)

// Profiler obtains directory profiles by driving the copier in list-only
// mode and aggregating its summary stats, backed by a Cache.
type Profiler struct {
	Cache  *Cache
	Binary string
	LogDir string
	log    *logging.Logger

	// Watcher, if set, is attached to every directory this Profiler scans
	// fresh so the cache entry invalidates on first change instead of
	// waiting out cache_max_age. Optional; a nil Watcher is a no-op.
	Watcher *Watcher
}

// New constructs a Profiler. binary is the copier executable name (see
// internal/copier.Start); logDir is where scratch profiling logs are
// written (one temp file per call, removed after parsing).
func New(cache *Cache, binary, logDir string, log *logging.Logger) *Profiler {
	return &Profiler{Cache: cache, Binary: binary, LogDir: logDir, log: log}
}

// Outcome is what ProfileMany returns per path: exactly one of Profile or
// Err is set, so callers can distinguish a zero-sized directory (a real,
// successful zero) from a scan failure.
type Outcome struct {
	Path    string
	Profile types.DirectoryProfile
	Err     error
}

// Profile returns the cached profile for path if useCache is true and a
// fresh entry exists; otherwise it runs the copier in list-only mode over
// path and stores the result.
func (p *Profiler) Profile(ctx context.Context, path string, useCache bool) (types.DirectoryProfile, error) {
	now := time.Now()

	if useCache {
		if entry, ok := p.Cache.Get(path, now); ok {
			return entry, nil
		}
	}

	profile, err := p.scan(ctx, path, now)
	if err != nil {
		return types.DirectoryProfile{}, err
	}

	p.Cache.Put(profile)
	if p.Watcher != nil {
		p.Watcher.Attach(path)
	}
	return profile, nil
}

// ProfileMany profiles many directories concurrently. For fewer than 3
// paths it falls back to sequential Profile calls: the dispatch overhead
// of a worker pool isn't worth it for a handful of directories.
func (p *Profiler) ProfileMany(ctx context.Context, paths []string, useCache bool, degree int) []Outcome {
	if len(paths) < 3 {
		out := make([]Outcome, len(paths))
		for i, path := range paths {
			profile, err := p.Profile(ctx, path, useCache)
			out[i] = Outcome{Path: path, Profile: profile, Err: err}
		}
		return out
	}

	if degree <= 0 {
		degree = 4
	}
	sem := semaphore.NewWeighted(int64(degree))
	out := make([]Outcome, len(paths))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i, path := range paths {
			if err := sem.Acquire(ctx, 1); err != nil {
				out[i] = Outcome{Path: path, Err: fmt.Errorf("acquire profiler slot: %w", err)}
				continue
			}
			i, path := i, path
			go func() {
				defer sem.Release(1)
				profile, err := p.Profile(ctx, path, useCache)
				out[i] = Outcome{Path: path, Profile: profile, Err: err}
			}()
		}
		// Wait for all outstanding workers to release their slot before
		// declaring the batch done.
		_ = sem.Acquire(ctx, int64(degree))
	}()
	<-done

	return out
}

// scan runs the copier in list-only, verbose-per-file mode over path and
// parses its log for aggregate totals. The destination argument is the
// source path itself: in list-only mode the copier never touches the
// destination, so there is nothing meaningful to supply.
func (p *Profiler) scan(ctx context.Context, path string, now time.Time) (types.DirectoryProfile, error) {
	if fi, err := os.Stat(path); err != nil {
		return types.DirectoryProfile{}, fmt.Errorf("profile %s: %w", path, err)
	} else if !fi.IsDir() {
		return types.DirectoryProfile{}, fmt.Errorf("profile %s: not a directory", path)
	}

	scratchDir := p.LogDir
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}
	logPath := filepath.Join(scratchDir, fmt.Sprintf("profile-%d.log", now.UnixNano()))
	defer os.Remove(logPath)

	args, _, err := copier.BuildArgs(copier.BuildArgsInput{
		SourcePath:      path,
		DestinationPath: path,
		LogPath:         logPath,
		Threads:         1,
		Preview:         true,
		Verbose:         true,
	})
	if err != nil {
		return types.DirectoryProfile{}, fmt.Errorf("build profiler args for %s: %w", path, err)
	}

	binary := p.Binary
	if binary == "" {
		binary = "robocopy"
	}
	cmd := buildCommand(ctx, binary, args)
	if err := cmd.Run(); err != nil {
		if !isBenignExitError(err) {
			return types.DirectoryProfile{}, fmt.Errorf("profile scan %s: %w", path, err)
		}
	}

	parsed, err := copier.ParseLog(logPath)
	if err != nil {
		return types.DirectoryProfile{}, fmt.Errorf("parse profile log for %s: %w", path, err)
	}
	if p.log != nil && parsed.ParseWarning != "" {
		p.log.Warnf("profiler: %s: %s", path, parsed.ParseWarning)
	}

	fileCount := parsed.FilesCopied
	avg := float64(0)
	if fileCount > 0 {
		avg = float64(parsed.BytesCopied) / float64(fileCount)
	}

	return types.DirectoryProfile{
		Path:        cleanPathForDisplay(path),
		TotalBytes:  parsed.BytesCopied,
		FileCount:   fileCount,
		DirCount:    parsed.DirsCopied,
		AvgFileSize: avg,
		LastScanned: now,
	}, nil
}
