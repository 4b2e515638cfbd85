// Package app wires every subsystem (profiler, chunker, snapshot manager,
// copier driver, checkpoint store, health reporter, bandwidth governor,
// events queue) into one Orchestrator and drives it to completion, the way
// the teacher's internal/app built one AppConfig and handed it to
// maintenance.Worker.
package app

import (
	"time"

	"replicurse/internal/logging"
	"replicurse/internal/types"
)

// AppConfig is the single configuration object the CLI builds from flags
// and hands to Run.
type AppConfig struct {
	LogSettings logging.LogSettings
	LogRoot     string

	SessionName string // human nickname; empty means Run generates one

	Profiles []types.SyncProfile

	MaxConcurrent       int
	BandwidthLimitMbps  float64
	CheckpointFrequency int64
	HealthInterval      time.Duration
	TickInterval        time.Duration
	StopWait            time.Duration

	MaxRetries      int
	RetryBaseDelay  time.Duration
	RetryMultiplier float64
	RetryMaxDelay   time.Duration

	CopierBinary     string
	Threads          int
	MismatchSeverity types.MismatchSeverity
	IgnoreCheckpoint bool

	ProfilerDegree  int
	CacheMaxEntries int
	CacheMaxAge     time.Duration
}
