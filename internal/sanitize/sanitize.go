// Package sanitize is the boundary every string crosses before it becomes an
// argument to the external copier process. It is a dedicated, always-called
// filter: the argument builder never assembles a command line without first
// routing paths, exclude patterns, and chunk switches through here.
//
// Policy is deny-first: where a transform could make a string safe, we
// still prefer rejecting it outright, matching the conservative stance the
// teacher codebase takes with path traversal (paths.go, ErrPathEscapesRoot).
package sanitize

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// controlChars matches any ASCII control character (U+0000..U+001F).
var controlChars = regexp.MustCompile(`[\x00-\x1F]`)

// shellMeta matches command separators, redirectors, backticks, and
// command-substitution/brace-expansion introducers — anything that would
// change meaning if the string reached a shell instead of being passed as a
// literal argv entry to the copier.
var shellMeta = regexp.MustCompile("[;&|<>`]|\\$\\(|\\$\\{")

// percentPattern matches Windows-style %VAR% environment expansion.
var percentPattern = regexp.MustCompile(`%[^%]*%`)

// parentTraversal matches ".." at a path boundary: "../", "..\", or a
// trailing "..".
var parentTraversal = regexp.MustCompile(`(^|[/\\])\.\.([/\\]|$)`)

// chunkSwitchWhitelist is the set of chunk-specific switches the chunker is
// allowed to attach to a Chunk. Everything else is dropped.
var chunkSwitchWhitelist = []*regexp.Regexp{
	regexp.MustCompile(`^/lev:\d+$`),          // limit recursion depth
	regexp.MustCompile(`^/maxage:\d+$`),       // age-based selection
	regexp.MustCompile(`^/minage:\d+$`),       // age-based selection
	regexp.MustCompile(`^/xf:.+$`),            // exclude files (chunk-local)
	regexp.MustCompile(`^/xd:.+$`),            // exclude dirs (chunk-local)
}

// IsSafeArgument reports whether s may be passed, unmodified, as a single
// argv entry to the copier.
func IsSafeArgument(s string) bool {
	if controlChars.MatchString(s) {
		return false
	}
	if shellMeta.MatchString(s) {
		return false
	}
	if percentPattern.MatchString(s) {
		return false
	}
	if parentTraversal.MatchString(s) {
		return false
	}
	// A leading dash would be interpreted by the copier as a switch rather
	// than a path argument.
	if strings.HasPrefix(s, "-") {
		return false
	}
	return true
}

// SanitizePath validates s as a path argument for the given field name,
// returning the path unchanged (with a doubled trailing backslash, see
// below) or a hard error. Argument-build-time errors here abort the whole
// profile; unlike exclude patterns, a bad source/destination/log path is not
// something the copy can proceed without.
func SanitizePath(s, fieldName string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("sanitize %s: empty path", fieldName)
	}
	if !IsSafeArgument(s) {
		return "", fmt.Errorf("sanitize %s: unsafe path argument %q", fieldName, s)
	}

	// A path argument ending in a single backslash, when quoted by the
	// process-start layer, can swallow the closing quote on some argument
	// parsers. Doubling the terminal backslash keeps the quoting intact
	// without changing the path the copier sees.
	if strings.HasSuffix(s, `\`) && !strings.HasSuffix(s, `\\`) {
		s += `\`
	}
	return s, nil
}

// SanitizeExcludePatterns filters a list of exclude-file or exclude-dir
// patterns, dropping (with a reason, for the caller to log) any pattern that
// fails the argument safety check or is not a valid glob. Unlike
// SanitizePath, this never fails the build: an unsafe exclude pattern is
// simply omitted and the copy proceeds without it.
func SanitizeExcludePatterns(patterns []string, kind string) (safe []string, dropped []string) {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if !IsSafeArgument(p) {
			dropped = append(dropped, fmt.Sprintf("%s pattern %q: unsafe argument", kind, p))
			continue
		}
		if _, err := doublestar.Match(p, "probe"); err != nil {
			dropped = append(dropped, fmt.Sprintf("%s pattern %q: invalid glob: %v", kind, p, err))
			continue
		}
		safe = append(safe, p)
	}
	return safe, dropped
}

// SanitizeChunkSwitches filters chunk-specific switches against a whitelist
// of safe level/age/exclude selector patterns. Unlike exclude patterns,
// switches that fail the whitelist are dropped silently (they originate
// from the chunker itself, not external configuration, so a mismatch here
// is a programming error rather than operator input to warn about).
func SanitizeChunkSwitches(switches []string) []string {
	out := make([]string, 0, len(switches))
	for _, sw := range switches {
		for _, re := range chunkSwitchWhitelist {
			if re.MatchString(sw) {
				out = append(out, sw)
				break
			}
		}
	}
	return out
}
