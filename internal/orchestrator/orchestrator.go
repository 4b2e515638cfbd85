// Package orchestrator drives a replication run end to end: it asks the
// snapshot manager for a consistent view of each profile's source, the
// profiler and chunker for a unit-of-work breakdown, starts and tracks
// copier jobs bounded by a concurrency limit, retries transient failures
// with backoff, checkpoints progress, and reports health.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"replicurse/internal/bandwidth"
	"replicurse/internal/checkpoint"
	"replicurse/internal/chunker"
	"replicurse/internal/events"
	"replicurse/internal/health"
	"replicurse/internal/logging"
	"replicurse/internal/profiler"
	"replicurse/internal/snapshot"
	"replicurse/internal/types"
)

// Config bundles the run-scoped knobs that aren't themselves a dependency
// (those are passed as constructed objects to New).
type Config struct {
	MaxConcurrent       int
	BandwidthLimitMbps  float64
	CheckpointFrequency int64
	HealthInterval      time.Duration
	Retry               RetryPolicy
	LogRoot             string
	Binary              string
	Threads             int
	MismatchSeverity    types.MismatchSeverity
	IgnoreCheckpoint    bool
	StopWait            time.Duration
}

// Orchestrator wires together every subsystem a run needs and drives the
// admission/completion loop via Tick.
type Orchestrator struct {
	cfg       Config
	runner    JobRunner
	chunker   *chunker.Chunker
	profiler  *profiler.Profiler
	snapshots *snapshot.Manager
	checkpts  *checkpoint.Store
	reporter  *health.Reporter
	metrics   *health.Metrics
	governor  *bandwidth.Governor
	events    *events.Queue
	log       *logging.Logger

	state       *State
	completions chan jobCompletion
	resumeCP    *checkpoint.Checkpoint
	sessionDir  string

	// profile-scoped bookkeeping; touched only from the Tick goroutine.
	profileEstimatedBytes int64
	profileEstimatedFiles int64
	profileChunksTotal    int
}

// New builds an Orchestrator. Any of runner/chunker/profiler/snapshots may
// be nil only if the caller never exercises the operations that need them;
// checkpts/reporter/governor/events/log are expected non-nil.
func New(
	cfg Config,
	runner JobRunner,
	ck *chunker.Chunker,
	pf *profiler.Profiler,
	sm *snapshot.Manager,
	cp *checkpoint.Store,
	reporter *health.Reporter,
	metrics *health.Metrics,
	governor *bandwidth.Governor,
	eventQueue *events.Queue,
	log *logging.Logger,
) *Orchestrator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.CheckpointFrequency <= 0 {
		cfg.CheckpointFrequency = 10
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 5 * time.Second
	}
	if cfg.MismatchSeverity == "" {
		cfg.MismatchSeverity = types.MismatchSuccess
	}
	return &Orchestrator{
		cfg:       cfg,
		runner:    runner,
		chunker:   ck,
		profiler:  pf,
		snapshots: sm,
		checkpts:  cp,
		reporter:  reporter,
		metrics:   metrics,
		governor:  governor,
		events:    eventQueue,
		log:       log,
	}
}

// State exposes the run's shared state for status reporting and tests.
func (o *Orchestrator) State() *State { return o.state }

// StartRun initializes a fresh run over profiles and begins the first one.
// It does not block: callers drive progress by invoking Tick periodically.
func (o *Orchestrator) StartRun(ctx context.Context, profiles []types.SyncProfile) error {
	if len(profiles) == 0 {
		return fmt.Errorf("start run: no profiles configured")
	}

	sessionID := events.NewSessionID()
	o.state = NewState(sessionID, profiles)
	o.state.startTime = time.Now()
	o.sessionDir = time.Now().Format("2006-01-02")
	o.completions = make(chan jobCompletion, o.cfg.MaxConcurrent*2+4)

	o.publish(events.SessionStart, nil)

	if !o.cfg.IgnoreCheckpoint && o.checkpts != nil {
		cp, err := o.checkpts.Load()
		if err != nil {
			o.log.Warnf("load checkpoint: %v", err)
		} else {
			o.resumeCP = cp
		}
	}

	o.state.setPhase(types.PhaseScanning)
	return o.beginProfile(ctx, 0)
}

// RequestStop, RequestPause, and RequestResume set the respective volatile
// flag; the next Tick observes it.
func (o *Orchestrator) RequestStop()   { o.state.RequestStop() }
func (o *Orchestrator) RequestPause()  { o.state.RequestPause() }
func (o *Orchestrator) RequestResume() { o.state.RequestResume() }

// beginProfile scans and chunks profiles[idx], optionally behind a
// snapshot, and enqueues the resulting chunks. idx == len(profiles)
// transitions the run to complete.
func (o *Orchestrator) beginProfile(ctx context.Context, idx int) error {
	o.state.mu.Lock()
	if idx >= len(o.state.profiles) {
		o.state.mu.Unlock()
		return o.finalize(ctx)
	}
	profile := o.state.profiles[idx]
	o.state.profileIndex = idx
	o.state.profileStartTime = time.Now()
	o.state.mu.Unlock()

	o.state.profileStartFiles.Store(o.state.completedChunkFiles.Load())
	o.state.profileStartBytes.Store(o.state.completedChunkBytes.Load())
	o.state.profileStartSkipped.Store(o.state.skippedChunkCount.Load())
	o.profileEstimatedBytes = 0
	o.profileEstimatedFiles = 0
	o.profileChunksTotal = 0

	o.publish(events.ProfileStart, map[string]any{"profile": profile.Name})

	sourcePath := profile.SourcePath
	var snap snapshot.Snapshot
	if profile.SnapshotRequested && o.snapshots != nil {
		var err error
		snap, err = o.createSnapshot(ctx, profile)
		if err != nil {
			o.log.Errorf("snapshot create for profile %q: %v", profile.Name, err)
			o.publish(events.ChunkError, map[string]any{"profile": profile.Name, "error": err.Error()})
		} else {
			o.state.mu.Lock()
			o.state.currentSnapshot = snap
			o.state.mu.Unlock()
			translated, terr := snapshot.Translate(sourcePath, snap)
			if terr == nil {
				sourcePath = translated
			}
			o.publish(events.SnapshotCreated, map[string]any{"profile": profile.Name, "snapshot_id": snap.ID})
		}
	}

	chunks, err := o.chunker.Chunk(ctx, sourcePath, sourcePath, profile.DestinationPath, profile.Limits, profile.ScanMode, 0)
	if err != nil {
		return fmt.Errorf("chunk profile %q: %w", profile.Name, err)
	}

	for i := range chunks {
		c := chunks[i]
		if o.resumeCP != nil && checkpoint.IsCompleted(c.SourcePath, o.resumeCP) {
			o.state.completedChunkBytes.Add(c.EstimatedSize)
			o.state.skippedChunkCount.Add(1)
			o.profileChunksTotal++
			continue
		}
		o.profileEstimatedBytes += c.EstimatedSize
		o.profileEstimatedFiles += c.EstimatedFiles
		o.profileChunksTotal++
		o.state.chunkQueue.Enqueue(&c)
	}

	o.state.setPhase(types.PhaseReplicating)
	return nil
}

// createSnapshot dispatches to local or remote snapshot creation based on
// whether the source path is a UNC share.
func (o *Orchestrator) createSnapshot(ctx context.Context, profile types.SyncProfile) (snapshot.Snapshot, error) {
	server, share, relative, isRemote := splitUNC(profile.SourcePath)
	if isRemote {
		return o.snapshots.CreateRemote(ctx, server, share, relative)
	}
	volume := filepath.VolumeName(profile.SourcePath)
	if volume == "" {
		volume = profile.SourcePath
	}
	return o.snapshots.CreateLocal(ctx, volume)
}

// completeProfile synthesizes a ProfileResult, tears down the profile's
// snapshot, drains the per-profile queues in place, and either advances to
// the next profile or finalizes the run.
func (o *Orchestrator) completeProfile(ctx context.Context) error {
	o.state.mu.Lock()
	profile := o.state.profiles[o.state.profileIndex]
	snap, _ := o.state.currentSnapshot.(snapshot.Snapshot)
	startTime := o.state.profileStartTime
	o.state.mu.Unlock()

	skipped := int(o.state.skippedChunkCount.Load() - o.state.profileStartSkipped.Load())
	result := types.ProfileResult{
		ProfileName: profile.Name,
		ChunksTotal: o.profileChunksTotal,
		// Chunks skipped at resume were already completed by the killed
		// run; they count toward chunks_complete the same way their
		// estimated bytes already fold into BytesCopied below
		// (FilesCopied counts only chunks copied in this run).
		ChunksComplete: len(o.state.completedChunks.Snapshot()) + skipped,
		ChunksFailed:   len(o.state.failedChunks.Snapshot()),
		ChunksSkipped:  skipped,
		BytesCopied:    o.state.completedChunkBytes.Load() - o.state.profileStartBytes.Load(),
		FilesCopied:    o.state.completedChunkFiles.Load() - o.state.profileStartFiles.Load(),
		Duration:       time.Since(startTime),
		ErrorMessages:  o.state.errorMessages.Snapshot(),
	}
	o.state.profileResults.Enqueue(result)
	o.publish(events.ProfileComplete, map[string]any{"profile": profile.Name})

	if snap.ID != "" && o.snapshots != nil {
		if err := o.snapshots.Teardown(ctx, snap); err != nil {
			o.log.Warnf("teardown snapshot for profile %q: %v", profile.Name, err)
		}
		o.publish(events.SnapshotRemoved, map[string]any{"profile": profile.Name, "snapshot_id": snap.ID})
	}

	o.state.completedChunks.Drain()
	o.state.failedChunks.Drain()
	o.state.errorMessages.Drain()
	o.state.mu.Lock()
	o.state.currentSnapshot = nil
	next := o.state.profileIndex + 1
	o.state.mu.Unlock()

	return o.beginProfile(ctx, next)
}

// finalize transitions the run to complete, clears the checkpoint, and
// emits the terminal health document and session-end event.
func (o *Orchestrator) finalize(ctx context.Context) error {
	o.state.setPhase(types.PhaseComplete)
	if o.checkpts != nil {
		if err := o.checkpts.Remove(); err != nil {
			o.log.Warnf("remove checkpoint: %v", err)
		}
	}
	if o.reporter != nil {
		status := o.buildStatus()
		if err := o.reporter.WriteStatus(status, true); err != nil {
			o.log.Warnf("write final health document: %v", err)
		}
		if err := o.reporter.Remove(); err != nil {
			o.log.Warnf("remove health document: %v", err)
		}
	}
	o.publish(events.SessionEnd, map[string]any{"reason": "complete"})
	return nil
}

// stopAllJobs kills every active job, waits briefly for clean exit,
// empties the active set, releases any current snapshot, and transitions
// to stopped.
func (o *Orchestrator) stopAllJobs(ctx context.Context) {
	var pids []int
	o.state.forEachActive(func(pid int, a *activeJob) {
		if err := o.runner.Kill(a.job); err != nil {
			o.log.Warnf("kill pid %d: %v", pid, err)
		}
		pids = append(pids, pid)
	})

	deadline := time.After(o.stopWait())
	remaining := len(pids)
	for remaining > 0 {
		select {
		case <-o.completions:
			remaining--
		case <-deadline:
			remaining = 0
		}
	}
	for _, pid := range pids {
		o.state.removeActive(pid)
	}

	o.state.mu.Lock()
	snap, _ := o.state.currentSnapshot.(snapshot.Snapshot)
	o.state.currentSnapshot = nil
	o.state.mu.Unlock()
	if snap.ID != "" && o.snapshots != nil {
		if err := o.snapshots.Teardown(ctx, snap); err != nil {
			o.log.Warnf("teardown snapshot on stop: %v", err)
		}
	}

	o.state.setPhase(types.PhaseStopped)
	o.publish(events.SessionEnd, map[string]any{"reason": "stopped"})
}

func (o *Orchestrator) stopWait() time.Duration {
	if o.cfg.StopWait > 0 {
		return o.cfg.StopWait
	}
	return 10 * time.Second
}

func (o *Orchestrator) publish(typ events.Type, data map[string]any) {
	if o.events == nil {
		return
	}
	o.events.Publish(events.New(typ, o.state.sessionID, "", "", data))
}

// splitUNC reports whether path is a \\server\share[\relative] UNC path and
// decomposes it if so.
func splitUNC(path string) (server, share, relative string, isUNC bool) {
	if !strings.HasPrefix(path, `\\`) {
		return "", "", "", false
	}
	parts := strings.SplitN(strings.TrimPrefix(path, `\\`), `\`, 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", false
	}
	server, share = parts[0], parts[1]
	if len(parts) == 3 {
		relative = parts[2]
	}
	return server, share, relative, true
}
