// Command replicurse drives the parallel replication orchestrator from the
// command line: run starts (or resumes) a replication, resume forces a
// checkpointed resume, and status prints the current health document.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"replicurse/internal/app"
	"replicurse/internal/logging"
	"replicurse/internal/types"
	"replicurse/internal/utils"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root, err := utils.ExeDir()
	if err != nil {
		root, _ = os.Getwd()
	}
	defaultLogDir := filepath.Join(root, "logs")

	var (
		logDir = defaultLogDir
		noLogs bool
	)

	cmd := &cobra.Command{
		Use:   "replicurse",
		Short: "Parallel replication orchestrator over a directory-mirroring copier",
	}
	cmd.PersistentFlags().StringVar(&logDir, "log-dir", defaultLogDir, "Directory for session logs, checkpoints, and job logs")
	cmd.PersistentFlags().BoolVar(&noLogs, "no-logs", false, "Log to stdout instead of files")

	cmd.AddCommand(newRunCmd(&logDir, &noLogs, false))
	cmd.AddCommand(newRunCmd(&logDir, &noLogs, true))
	cmd.AddCommand(newStatusCmd())
	return cmd
}

// runFlags holds the flags shared by run and resume.
type runFlags struct {
	source           string
	destination      string
	profileName      string
	scanMode         string
	maxConcurrent    int
	bandwidthMbps    float64
	checkpointEvery  int64
	healthIntervalMS int
	tickIntervalMS   int
	stopWaitSeconds  int
	maxRetries       int
	retryBaseMS      int
	retryMultiplier  float64
	retryMaxMS       int
	copierBinary     string
	threads          int
	mismatchSeverity string
	ignoreCheckpoint bool
	snapshotSource   bool
	maxSizeMB        int64
	maxFiles         int
	maxDepth         int
	minSizeMB        int64
	sessionName      string
	profilerDegree   int
}

func newRunCmd(logDir *string, noLogs *bool, resume bool) *cobra.Command {
	f := &runFlags{}

	use := "run"
	short := "Start a replication run"
	if resume {
		use = "resume"
		short = "Resume a replication run from its last checkpoint"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ignoreCheckpoint = f.ignoreCheckpoint && !resume
			return runReplication(*logDir, *noLogs, f)
		},
	}

	cmd.Flags().StringVar(&f.source, "source", "", "Source path to replicate (required)")
	cmd.Flags().StringVar(&f.destination, "destination", "", "Destination path (required)")
	cmd.Flags().StringVar(&f.profileName, "profile-name", "default", "Name for this sync profile")
	cmd.Flags().StringVar(&f.scanMode, "scan-mode", "smart", "Chunking scan mode: smart or flat")
	cmd.Flags().IntVar(&f.maxConcurrent, "max-concurrent", 4, "Maximum concurrent copier jobs")
	cmd.Flags().Float64Var(&f.bandwidthMbps, "bandwidth-mbps", 0, "Aggregate bandwidth cap in megabits/sec (0 = unlimited)")
	cmd.Flags().Int64Var(&f.checkpointEvery, "checkpoint-every", 10, "Write a checkpoint every N completed chunks")
	cmd.Flags().IntVar(&f.healthIntervalMS, "health-interval-ms", 5000, "Minimum interval between health document writes")
	cmd.Flags().IntVar(&f.tickIntervalMS, "tick-interval-ms", 500, "Interval between admission/completion ticks")
	cmd.Flags().IntVar(&f.stopWaitSeconds, "stop-wait-seconds", 10, "Bounded wait for jobs to exit cleanly on stop")
	cmd.Flags().IntVar(&f.maxRetries, "max-retries", 3, "Maximum retries for a retryable chunk failure")
	cmd.Flags().IntVar(&f.retryBaseMS, "retry-base-ms", 1000, "Base retry delay in milliseconds")
	cmd.Flags().Float64Var(&f.retryMultiplier, "retry-multiplier", 2.0, "Exponential backoff multiplier")
	cmd.Flags().IntVar(&f.retryMaxMS, "retry-max-ms", 60000, "Maximum retry delay in milliseconds")
	cmd.Flags().StringVar(&f.copierBinary, "copier-binary", "robocopy", "Directory-mirroring tool executable")
	cmd.Flags().IntVar(&f.threads, "threads", 8, "Per-job copier thread count (/threads)")
	cmd.Flags().StringVar(&f.mismatchSeverity, "mismatch-severity", "success", "success, warning, or error")
	cmd.Flags().BoolVar(&f.ignoreCheckpoint, "ignore-checkpoint", false, "Ignore any existing checkpoint and start fresh")
	cmd.Flags().BoolVar(&f.snapshotSource, "snapshot", false, "Request a point-in-time snapshot of the source before copying")
	cmd.Flags().Int64Var(&f.maxSizeMB, "max-chunk-mb", 5000, "Maximum chunk size in megabytes before splitting")
	cmd.Flags().IntVar(&f.maxFiles, "max-chunk-files", 50000, "Maximum chunk file count before splitting")
	cmd.Flags().IntVar(&f.maxDepth, "max-depth", 6, "Maximum recursion depth before accepting an oversized chunk")
	cmd.Flags().Int64Var(&f.minSizeMB, "min-chunk-mb", 50, "Minimum chunk size worth splitting further")
	cmd.Flags().StringVar(&f.sessionName, "session-name", "", "Override the generated session nickname")
	cmd.Flags().IntVar(&f.profilerDegree, "profiler-degree", 0, "Concurrent directory profiles per sibling batch (0 = profiler default)")

	cmd.MarkFlagRequired("source")
	cmd.MarkFlagRequired("destination")

	return cmd
}

func runReplication(logDir string, noLogs bool, f *runFlags) error {
	log, err := logging.New(logDir, logging.LogSettings{NoLogs: noLogs, LogDir: logDir})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	scanMode := types.ScanModeSmart
	if f.scanMode == "flat" {
		scanMode = types.ScanModeFlat
	}

	profile := types.SyncProfile{
		Name:              f.profileName,
		SourcePath:        f.source,
		DestinationPath:   f.destination,
		SnapshotRequested: f.snapshotSource,
		ScanMode:          scanMode,
		Limits: types.ChunkLimits{
			MaxSizeBytes: f.maxSizeMB * 1024 * 1024,
			MaxFiles:     f.maxFiles,
			MaxDepth:     f.maxDepth,
			MinSizeBytes: f.minSizeMB * 1024 * 1024,
		},
	}

	cfg := app.AppConfig{
		LogSettings:         logging.LogSettings{NoLogs: noLogs, LogDir: logDir},
		LogRoot:             logDir,
		SessionName:         f.sessionName,
		Profiles:            []types.SyncProfile{profile},
		MaxConcurrent:       f.maxConcurrent,
		BandwidthLimitMbps:  f.bandwidthMbps,
		CheckpointFrequency: f.checkpointEvery,
		HealthInterval:      time.Duration(f.healthIntervalMS) * time.Millisecond,
		TickInterval:        time.Duration(f.tickIntervalMS) * time.Millisecond,
		StopWait:            time.Duration(f.stopWaitSeconds) * time.Second,
		MaxRetries:          f.maxRetries,
		RetryBaseDelay:      time.Duration(f.retryBaseMS) * time.Millisecond,
		RetryMultiplier:     f.retryMultiplier,
		RetryMaxDelay:       time.Duration(f.retryMaxMS) * time.Millisecond,
		CopierBinary:        f.copierBinary,
		Threads:             f.threads,
		MismatchSeverity:    types.MismatchSeverity(f.mismatchSeverity),
		IgnoreCheckpoint:    f.ignoreCheckpoint,
		ProfilerDegree:      f.profilerDegree,
	}

	return app.Run(cfg, log)
}

func newStatusCmd() *cobra.Command {
	var maxAgeSeconds int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the current replication health document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.PrintStatus(time.Duration(maxAgeSeconds) * time.Second)
		},
	}
	cmd.Flags().IntVar(&maxAgeSeconds, "max-age-seconds", 30, "Health document older than this is reported stale")
	return cmd
}
