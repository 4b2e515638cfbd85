// Package chunker recursively partitions a source tree into Chunks under
// configured size/file/depth limits, each an independently copyable unit
// of work for the orchestrator.
package chunker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"replicurse/internal/logging"
	"replicurse/internal/profiler"
	"replicurse/internal/types"
)

// directoryProfiler is the subset of *profiler.Profiler the chunker
// depends on; kept as an interface so tests can stand in a fixed-result
// fake instead of driving a real copier process.
type directoryProfiler interface {
	Profile(ctx context.Context, path string, useCache bool) (types.DirectoryProfile, error)
	ProfileMany(ctx context.Context, paths []string, useCache bool, degree int) []profiler.Outcome
}

// Chunker partitions source trees using a shared profiler and a
// run-scoped monotonic id counter.
type Chunker struct {
	profiler directoryProfiler
	nextID   atomic.Int64
	log      *logging.Logger
	degree   int
}

// New constructs a Chunker backed by p. The id counter starts at 0 and is
// shared across every Chunk call made on this Chunker for the life of one
// run, matching the per-run monotonic identifier the spec requires. degree
// bounds how many sibling directories are profiled concurrently before a
// recursive descent; 0 leaves the choice to ProfileMany's own default.
func New(p directoryProfiler, log *logging.Logger, degree int) *Chunker {
	return &Chunker{profiler: p, log: log, degree: degree}
}

// Chunk recursively partitions path (rooted under srcRoot, mapping to
// dstRoot) into a sequence of Chunks, per the five-step procedure: whole
// subtree if within limits, whole subtree with a warning if depth-limited,
// whole subtree if below the splitting-worth threshold, else recurse into
// children and emit a trailing files-only chunk for any loose files.
func (c *Chunker) Chunk(ctx context.Context, path, srcRoot, dstRoot string, limits types.ChunkLimits, mode types.ScanMode, depth int) ([]types.Chunk, error) {
	if limits.MaxSizeBytes <= limits.MinSizeBytes {
		return nil, fmt.Errorf("chunk limits invalid: max_size (%d) must exceed min_size (%d)", limits.MaxSizeBytes, limits.MinSizeBytes)
	}
	if mode == types.ScanModeFlat {
		limits.MaxDepth = 0
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", path, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("chunk %s: not a directory", path)
	}

	profile, err := c.profiler.Profile(ctx, path, true)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: profile failed: %w", path, err)
	}

	dst, err := translateDest(path, srcRoot, dstRoot)
	if err != nil {
		return nil, err
	}

	// Step 2: fits within both limits, copy the whole subtree.
	if profile.TotalBytes <= limits.MaxSizeBytes && profile.FileCount <= int64(limits.MaxFiles) {
		return []types.Chunk{c.newChunk(path, dst, profile, false, nil)}, nil
	}

	// Step 3: can't split further.
	if depth >= limits.MaxDepth {
		if c.log != nil {
			c.log.Warnf("chunk %s: depth limit %d reached, emitting oversized whole-subtree chunk", path, limits.MaxDepth)
		}
		return []types.Chunk{c.newChunk(path, dst, profile, false, nil)}, nil
	}

	// Step 4: below the threshold at which splitting is worth the extra
	// copier invocations.
	if profile.TotalBytes < limits.MinSizeBytes {
		return []types.Chunk{c.newChunk(path, dst, profile, false, nil)}, nil
	}

	// Step 5: enumerate children and recurse.
	children, looseFiles, err := listChildren(path)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: list children: %w", path, err)
	}
	if len(children) == 0 {
		return []types.Chunk{c.newChunk(path, dst, profile, false, nil)}, nil
	}

	// Profile every sibling concurrently before descending into each in
	// turn, so the recursive Chunk call below hits a warm cache instead of
	// each one driving its own copier list-only pass in series.
	for _, outcome := range c.profiler.ProfileMany(ctx, children, true, c.degree) {
		if outcome.Err != nil && c.log != nil {
			c.log.Warnf("prewarm profile for %s: %v", outcome.Path, outcome.Err)
		}
	}

	var chunks []types.Chunk
	for _, child := range children {
		sub, err := c.Chunk(ctx, child, srcRoot, dstRoot, limits, mode, depth+1)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, sub...)
	}

	if looseFiles {
		chunks = append(chunks, c.newChunk(path, dst, types.DirectoryProfile{}, true, []string{"/lev:1"}))
	}

	return chunks, nil
}

func (c *Chunker) newChunk(src, dst string, profile types.DirectoryProfile, filesOnly bool, extraSwitches []string) types.Chunk {
	return types.Chunk{
		ID:              c.nextID.Add(1),
		SourcePath:      src,
		DestinationPath: dst,
		EstimatedSize:   profile.TotalBytes,
		EstimatedFiles:  profile.FileCount,
		IsFilesOnly:     filesOnly,
		Status:          types.ChunkPending,
		ExtraSwitches:   extraSwitches,
	}
}

// listChildren returns the immediate subdirectories of path and reports
// whether path also directly contains at least one regular file.
func listChildren(path string) (children []string, hasLooseFiles bool, err error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, false, err
	}
	for _, e := range entries {
		if e.IsDir() {
			children = append(children, filepath.Join(path, e.Name()))
		} else {
			hasLooseFiles = true
		}
	}
	return children, hasLooseFiles, nil
}

// translateDest strips the srcRoot prefix from path (case-insensitive,
// normalized comparison) and appends the remainder to dstRoot. A path that
// does not fall under srcRoot is a programming error, not recoverable
// input, so it returns a hard error rather than a best-effort guess.
func translateDest(path, srcRoot, dstRoot string) (string, error) {
	cleanPath := filepath.Clean(path)
	cleanRoot := filepath.Clean(srcRoot)
	normPath := strings.ToLower(cleanPath)
	normRoot := strings.ToLower(cleanRoot)

	if normPath == normRoot {
		return filepath.Clean(dstRoot), nil
	}
	prefix := normRoot
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	if !strings.HasPrefix(normPath, prefix) {
		return "", fmt.Errorf("translate dest: %q is not under source root %q", path, srcRoot)
	}

	rel := cleanPath[len(cleanRoot):]
	rel = strings.TrimPrefix(rel, string(filepath.Separator))
	return filepath.Join(dstRoot, rel), nil
}
