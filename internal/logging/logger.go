// Package logging provides the shared, goroutine-safe logger used across the
// orchestrator's subsystems. A single instance is constructed at startup and
// handed (never stored in a global) to every subsystem that needs it; each
// subsystem calls Named() to get a sub-logger tagged with its own component
// name (orchestrator, chunker, snapshot, copier, ...).
//
// Output is backed by github.com/hashicorp/go-hclog for leveled, named
// logging. COUNT and ERROR lines are additionally duplicated into dedicated
// daily files, matching the operational habit of keeping a quick-to-scan
// failures file and a quick-to-scan run-summary file next to the full log.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// LogSettings controls where logs go.
//
// Modes:
// - NoLogs=true  => console-only (stdout). No log files are created.
// - NoLogs=false => write logs to files under LogDir.
type LogSettings struct {
	NoLogs bool
	LogDir string
}

// Logger is a lightweight wrapper around an hclog.Logger intended for:
// - a single shared instance across the entire process
// - safe concurrent writes from multiple goroutines (walkers, workers, the
//   admission loop)
type Logger struct {
	settings LogSettings
	levels   map[string]bool
	base     hclog.Logger

	// dup guards writes to the dedicated COUNT/ERROR duplicate files so
	// concurrent Countf/Errorf calls from different goroutines don't
	// interleave within a single line.
	dup *sync.Mutex
}

// New initializes a Logger.
//
// Behavior:
//   - Reads configDir/logging.json (if present) to determine enabled log
//     levels; falls back to sensible defaults (see loadLevels).
//   - If settings.NoLogs is false, settings.LogDir must be set and is
//     created eagerly so misconfiguration fails at startup, not mid-run.
func New(configDir string, settings LogSettings) (*Logger, error) {
	levels, err := loadLevels(configDir)
	if err != nil {
		return nil, err
	}

	var output io.Writer = os.Stdout
	if !settings.NoLogs {
		if settings.LogDir == "" {
			return nil, fmt.Errorf("log dir is empty (settings.LogDir)")
		}
		if err := os.MkdirAll(settings.LogDir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		output = &dailyFileWriter{dir: settings.LogDir, prefix: "replicurse"}
	}

	base := hclog.New(&hclog.LoggerOptions{
		Name:            "replicurse",
		Level:           hclog.Trace,
		Output:          output,
		TimeFormat:      "01/02/06 15:04:05",
		IncludeLocation: false,
	})

	return &Logger{
		settings: settings,
		levels:   levels,
		base:     base,
		dup:      &sync.Mutex{},
	}, nil
}

// Named returns a sub-logger tagged with component, sharing this logger's
// settings, levels, and duplicate-file mutex. Use one per subsystem
// (orchestrator, chunker, snapshot manager, copier driver, ...) so log lines
// are attributable without threading a component string through every call.
func (l *Logger) Named(component string) *Logger {
	return &Logger{
		settings: l.settings,
		levels:   l.levels,
		base:     l.base.Named(component),
		dup:      l.dup,
	}
}

// loadLevels loads log-level enable/disable configuration from
// logging.json. Missing file => defaults: INFO/WARN/ERROR/SUCCESS/FATAL/COUNT
// enabled, DEBUG disabled (avoids noisy unattended runs).
//
// Policy for unknown levels is fail-open: a level absent from logging.json is
// treated as enabled so a newly introduced level isn't silently dropped
// until the config catches up.
func loadLevels(configDir string) (map[string]bool, error) {
	path := filepath.Join(configDir, "logging.json")

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return map[string]bool{
				"DEBUG":   false,
				"COUNT":   true,
				"INFO":    true,
				"WARN":    true,
				"ERROR":   true,
				"SUCCESS": true,
				"FATAL":   true,
			}, nil
		}
		return nil, fmt.Errorf("stat logging config: %w", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read logging config: %w", err)
	}

	var levels map[string]bool
	if err := json.Unmarshal(b, &levels); err != nil {
		return nil, fmt.Errorf("parse logging config: %w", err)
	}
	return levels, nil
}

// Enabled returns whether a log level is enabled, fail-open for unknown levels.
func (l *Logger) Enabled(level string) bool {
	level = strings.ToUpper(strings.TrimSpace(level))
	enabled, ok := l.levels[level]
	if ok && !enabled {
		return false
	}
	return true
}

func (l *Logger) Debug(msg string) {
	if l.Enabled("DEBUG") {
		l.base.Debug(msg)
	}
}

func (l *Logger) Info(msg string) {
	if l.Enabled("INFO") {
		l.base.Info(msg)
	}
}

func (l *Logger) Warn(msg string) {
	if l.Enabled("WARN") {
		l.base.Warn(msg)
	}
}

// Error logs at error level and, when file logging is enabled, duplicates
// the line into a dedicated daily errors_YYYY-MM-DD.log so failures are easy
// to scan without grepping the full log.
func (l *Logger) Error(msg string) {
	if !l.Enabled("ERROR") {
		return
	}
	l.base.Error(msg)
	l.duplicate("errors", "ERROR", msg)
}

// Success logs a success line at info level. hclog has no dedicated success
// level, so we tag the message to keep the distinction visible in the file.
func (l *Logger) Success(msg string) {
	if l.Enabled("SUCCESS") {
		l.base.Info("[SUCCESS] " + msg)
	}
}

// Count logs a summary/counter line and duplicates it into a dedicated daily
// count_YYYY-MM-DD.log, e.g. end-of-profile totals.
func (l *Logger) Count(msg string) {
	if !l.Enabled("COUNT") {
		return
	}
	l.base.Info("[COUNT] " + msg)
	l.duplicate("count", "COUNT", msg)
}

// Fatal logs the message and exits the process with code 1.
//
// os.Exit(1) terminates immediately; deferred cleanup does not run. Use only
// for unrecoverable states where continuing risks data loss (e.g. the
// destination for a required backup is unreachable).
func (l *Logger) Fatal(msg string) {
	l.base.Error("[FATAL] " + msg)
	os.Exit(1)
}

func (l *Logger) Debugf(format string, args ...any)   { l.Debug(fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...any)    { l.Info(fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...any)    { l.Warn(fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any)   { l.Error(fmt.Sprintf(format, args...)) }
func (l *Logger) Successf(format string, args ...any) { l.Success(fmt.Sprintf(format, args...)) }
func (l *Logger) Countf(format string, args ...any)   { l.Count(fmt.Sprintf(format, args...)) }
func (l *Logger) Fatalf(format string, args ...any)   { l.Fatal(fmt.Sprintf(format, args...)) }

// duplicate appends a formatted line to a dedicated daily file, if file
// logging is enabled. No-op in console-only mode; the primary hclog line
// already covers that case.
func (l *Logger) duplicate(filePrefix, level, msg string) {
	if l.settings.NoLogs {
		return
	}

	now := time.Now()
	date := now.Format("2006-01-02")
	stamp := now.Format("01/02/06 15:04:05")
	line := fmt.Sprintf("[%s] [%s] -> %s\n", stamp, level, msg)
	path := filepath.Join(l.settings.LogDir, fmt.Sprintf("%s_%s.log", filePrefix, date))

	l.dup.Lock()
	defer l.dup.Unlock()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		fmt.Printf("error writing to %s log file: %v\n", filePrefix, err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		fmt.Printf("error writing to %s log file: %v\n", filePrefix, err)
	}
}

// dailyFileWriter is an io.Writer that appends every write to a daily
// rolling file (prefix_YYYY-MM-DD.log) inside dir. Each write reopens the
// file; this keeps the writer simple and robust (no handle to leak or
// rotate at midnight) at the cost of one extra open/close syscall pair per
// log line, which is negligible next to the filesystem work the rest of the
// orchestrator performs.
type dailyFileWriter struct {
	dir    string
	prefix string
	mu     sync.Mutex
}

func (w *dailyFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	path := filepath.Join(w.dir, fmt.Sprintf("%s_%s.log", w.prefix, time.Now().Format("2006-01-02")))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.Write(p)
}
