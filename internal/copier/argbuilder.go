// Package copier builds copier command lines, parses the copier's log
// output, and drives the copier process through start/wait/exit-code
// classification. The copier itself is never implemented here — this
// package only knows how to talk to it.
package copier

import (
	"fmt"
	"strconv"
	"strings"

	"replicurse/internal/sanitize"
	"replicurse/internal/types"
)

// managedSwitchPrefixes are the copier switches this orchestrator always
// sets itself. A user-supplied CustomSwitches entry colliding with one of
// these is dropped so the orchestrator's semantics (thread count, retry
// count, log path, mirror mode, tee, progress suppression, byte-accurate
// stats) are never silently overridden by profile configuration.
var managedSwitchPrefixes = []string{
	"/threads:",
	"/mt:",
	"/retries:",
	"/r:",
	"/retry_wait:",
	"/w:",
	"/log:",
	"/unilog:",
	"/mir",
	"/e",
	"/copy_tree",
	"/tee",
	"/no_progress",
	"/np",
	"/bytes",
	"/ipg:",
}

// defaultCopySwitches are emitted when the profile specifies no custom
// switches at all: select file attributes (Data, Attributes, Timestamps)
// and preserve directory timestamps, a reasonable baseline for an unattended
// mirror.
var defaultCopySwitches = []string{"/copy:DAT", "/dcopy:DAT"}

// BuildArgsInput collects everything the argument builder needs for one
// copier invocation.
type BuildArgsInput struct {
	SourcePath      string
	DestinationPath string
	LogPath         string
	Threads         int
	Options         types.CopierOptions
	ChunkSwitches   []string
	InterPacketGapMS int
	Preview         bool
	Verbose         bool
}

// BuildArgs deterministically assembles the copier argument vector per the
// fixed ordering contract: source, destination, mirror mode, filtered user
// switches, managed switches, exclusions, chunk switches, preview flag.
//
// Every path-shaped argument passes through the sanitizer and a hard error
// here aborts the whole profile (the caller should not attempt to start a
// process with a partially-sanitized argument vector). Exclude patterns are
// filtered, not rejected: an unsafe pattern is dropped and the caller should
// log the returned warnings but proceed with the copy.
func BuildArgs(in BuildArgsInput) ([]string, []string, error) {
	var warnings []string

	src, err := sanitize.SanitizePath(in.SourcePath, "source")
	if err != nil {
		return nil, nil, err
	}
	dst, err := sanitize.SanitizePath(in.DestinationPath, "destination")
	if err != nil {
		return nil, nil, err
	}
	logPath, err := sanitize.SanitizePath(in.LogPath, "log")
	if err != nil {
		return nil, nil, err
	}

	args := []string{src, dst}

	if in.Options.NoMirror {
		args = append(args, "/e")
	} else {
		args = append(args, "/mir")
	}

	userSwitches := filterManagedSwitches(in.Options.CustomSwitches)
	if len(userSwitches) == 0 {
		userSwitches = defaultCopySwitches
	}
	for _, sw := range userSwitches {
		if !sanitize.IsSafeArgument(sw) {
			warnings = append(warnings, fmt.Sprintf("dropping unsafe custom switch %q", sw))
			continue
		}
		args = append(args, sw)
	}

	threads := in.Threads
	if threads <= 0 {
		threads = 1
	}
	args = append(args,
		fmt.Sprintf("/threads:%d", threads),
		fmt.Sprintf("/retries:%d", in.Options.RetryCount),
		fmt.Sprintf("/retry_wait:%d", int(in.Options.RetryWait.Seconds())),
		"/log:"+logPath,
		"/tee",
		"/no_progress",
	)

	if !in.Verbose {
		args = append(args, "/no_file_list", "/no_dir_list")
	}
	args = append(args, "/bytes")

	if in.Options.SkipJunctions {
		args = append(args, "/exclude_junction_dirs", "/exclude_junction_files")
	}

	if in.InterPacketGapMS > 0 {
		args = append(args, fmt.Sprintf("/ipg:%d", in.InterPacketGapMS))
	}

	safeFiles, droppedFiles := sanitize.SanitizeExcludePatterns(in.Options.ExcludeFilePatterns, "file")
	warnings = append(warnings, droppedFiles...)
	if len(safeFiles) > 0 {
		args = append(args, "/exclude_files")
		args = append(args, safeFiles...)
	}

	safeDirs, droppedDirs := sanitize.SanitizeExcludePatterns(in.Options.ExcludeDirPatterns, "dir")
	warnings = append(warnings, droppedDirs...)
	if len(safeDirs) > 0 {
		args = append(args, "/exclude_dirs")
		args = append(args, safeDirs...)
	}

	args = append(args, sanitize.SanitizeChunkSwitches(in.ChunkSwitches)...)

	if in.Preview {
		args = append(args, "/list_only")
	}

	return args, warnings, nil
}

// filterManagedSwitches drops any user-supplied switch whose identifier
// collides (case-insensitively, by prefix) with one this orchestrator
// manages itself.
func filterManagedSwitches(in []string) []string {
	out := make([]string, 0, len(in))
	for _, sw := range in {
		lower := strings.ToLower(strings.TrimSpace(sw))
		managed := false
		for _, prefix := range managedSwitchPrefixes {
			if strings.HasPrefix(lower, prefix) {
				managed = true
				break
			}
		}
		if !managed {
			out = append(out, sw)
		}
	}
	return out
}

// chunkLogName returns the per-chunk log filename: Chunk_NNN.log with the
// chunk id zero-padded to three digits (spec.md §6).
func chunkLogName(chunkID int64) string {
	return "Chunk_" + padInt(chunkID, 3) + ".log"
}

func padInt(v int64, width int) string {
	s := strconv.FormatInt(v, 10)
	for len(s) < width {
		s = "0" + s
	}
	return s
}
