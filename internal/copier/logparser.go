package copier

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// ParseResult is what the log parser hands back after reading a chunk's
// log file, whether the copier is still running or has already exited.
type ParseResult struct {
	FilesCopied  int64
	FilesSkipped int64
	FilesFailed  int64
	DirsCopied   int64
	DirsSkipped  int64
	DirsFailed   int64
	BytesCopied  int64
	Speed        float64
	CurrentFile  string

	ParseSuccess bool
	ParseWarning string
	ErrorLines   []string
}

// statsLine matches a copier summary line: a label, a colon, then six
// whitespace-separated numbers, each optionally suffixed with a k/m/g/t
// size unit (only meaningful on the bytes line, but accepted everywhere
// since the structural shape is what identifies the line, not the label
// text — the copier's label text is locale-dependent).
var statsLine = regexp.MustCompile(`^\s*(\S.*?)\s*:\s*([\d.,]+[kmgtKMGT]?)\s+([\d.,]+[kmgtKMGT]?)\s+([\d.,]+[kmgtKMGT]?)\s+([\d.,]+[kmgtKMGT]?)\s+([\d.,]+[kmgtKMGT]?)\s+([\d.,]+[kmgtKMGT]?)\s*$`)

// progressLine matches a current-file progress update: some amount of
// whitespace-padded size, then whitespace, then a path containing a path
// separator.
var progressLine = regexp.MustCompile(`^\s*([\d.,]+%?)\s+(.*[/\\].*)$`)

// errorLine matches an ERROR marker, which the copier emits either as
// "ERROR <code>" or "ERROR :" (locale-dependent following text, ignored).
var errorLine = regexp.MustCompile(`\bERROR\s+(\d+|:)`)

// minFileSizeForWarning is the threshold below which an unparsed log is
// assumed to be mid-write rather than malformed; below it, no warning is
// raised even if no statistics line was found yet.
const minFileSizeForWarning = 256

// ParseLog reads the copier's log file at path and extracts running or
// final statistics. The file may still be open for writing by the copier
// process; ParseLog only ever reads, never locks, so repeated calls during
// a run are safe.
func ParseLog(path string) (ParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ParseResult{}, fmt.Errorf("open log %s: %w", path, err)
	}
	defer f.Close()

	info, statErr := f.Stat()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return ParseResult{}, fmt.Errorf("scan log %s: %w", path, err)
	}

	result := parseLines(lines)

	if !result.ParseSuccess && statErr == nil && info.Size() > minFileSizeForWarning {
		result.ParseWarning = fmt.Sprintf("no statistics lines found in %d bytes of log", info.Size())
	}
	return result, nil
}

// parseLines is the pure core of the parser: no filesystem access, so it
// can be exercised directly against in-memory fixtures.
func parseLines(lines []string) ParseResult {
	var result ParseResult

	// The copier emits its summary as a block of (at least) three
	// consecutive structurally-matching lines — directories, files, bytes
	// — near the end of the log. We scan for the last such run rather
	// than the first, so mid-run partial summaries are superseded by the
	// final one.
	var statBlocks [][]string
	var current []string
	for _, line := range lines {
		if statsLine.MatchString(line) {
			current = append(current, line)
		} else if len(current) > 0 {
			statBlocks = append(statBlocks, current)
			current = nil
		}
	}
	if len(current) > 0 {
		statBlocks = append(statBlocks, current)
	}

	if len(statBlocks) > 0 {
		block := statBlocks[len(statBlocks)-1]
		applyStatBlock(block, &result)
		result.ParseSuccess = true
	}

	for i := len(lines) - 1; i >= 0; i-- {
		m := progressLine.FindStringSubmatch(lines[i])
		if m != nil {
			result.CurrentFile = strings.TrimSpace(m[2])
			break
		}
	}

	seen := make(map[string]bool)
	for _, line := range lines {
		if !errorLine.MatchString(line) {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		result.ErrorLines = append(result.ErrorLines, trimmed)
		if len(result.ErrorLines) >= 5 {
			break
		}
	}

	return result
}

// applyStatBlock assigns each structurally-matched line in the trailing
// block to dirs/files/bytes by position: the copier always emits them in
// that order (directories, files, bytes), with an optional speed line
// trailing the bytes line.
func applyStatBlock(block []string, result *ParseResult) {
	assign := func(line string, isBytes bool) (copiedVal, skippedVal, failedVal int64) {
		m := statsLine.FindStringSubmatch(line)
		if m == nil {
			return 0, 0, 0
		}
		// groups: 1=label 2=total 3=copied 4=skipped 5=mismatch 6=failed 7=extras
		copiedVal = parseNumber(m[3], isBytes)
		skippedVal = parseNumber(m[4], isBytes)
		failedVal = parseNumber(m[6], isBytes)
		return
	}

	n := len(block)
	if n >= 1 {
		result.DirsCopied, result.DirsSkipped, result.DirsFailed = assign(block[0], false)
	}
	if n >= 2 {
		result.FilesCopied, result.FilesSkipped, result.FilesFailed = assign(block[1], false)
	}
	if n >= 3 {
		copied, _, _ := assign(block[2], true)
		result.BytesCopied = copied
	}
	if n >= 4 {
		if speed, err := strconv.ParseFloat(strings.ReplaceAll(block[3], ",", "."), 64); err == nil {
			result.Speed = speed
		}
	}
}

// parseNumber decodes a copier-formatted number: European conventions use
// a comma as the decimal point and a period to group thousands, so both
// "1.234,56" and "1234.56" must resolve to the same value. An optional
// trailing k/m/g/t size suffix (case-insensitive) is applied when isBytes
// is true.
func parseNumber(raw string, isBytes bool) int64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0
	}

	var multiplier float64 = 1
	if isBytes && len(s) > 0 {
		switch s[len(s)-1] {
		case 'k', 'K':
			multiplier = 1024
			s = s[:len(s)-1]
		case 'm', 'M':
			multiplier = 1024 * 1024
			s = s[:len(s)-1]
		case 'g', 'G':
			multiplier = 1024 * 1024 * 1024
			s = s[:len(s)-1]
		case 't', 'T':
			multiplier = 1024 * 1024 * 1024 * 1024
			s = s[:len(s)-1]
		}
	}

	s = normalizeDecimal(s)
	val, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(val * multiplier)
}

// normalizeDecimal converts European-style "1.234,56" or plain
// thousands-grouped "1,234,567" into a Go-parseable float string. Rule:
// if both '.' and ',' appear, whichever appears last is the decimal
// separator and the other is a thousands grouping to strip. If only ','
// appears, more than one comma is thousands grouping and is stripped, and
// a single comma is the decimal separator (European convention);
// period-only or digits-only strings pass through unchanged.
func normalizeDecimal(s string) string {
	lastDot := strings.LastIndexByte(s, '.')
	lastComma := strings.LastIndexByte(s, ',')

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	}
	return s
}
