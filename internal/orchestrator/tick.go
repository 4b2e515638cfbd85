package orchestrator

import (
	"context"
	"time"

	"replicurse/internal/checkpoint"
	"replicurse/internal/copier"
	"replicurse/internal/events"
	"replicurse/internal/health"
	"replicurse/internal/types"
)

// Tick runs one pass of the admission and completion loop. Callers invoke
// it periodically (every ~500ms is the documented cadence); Tick itself
// never blocks waiting on a job to exit.
func (o *Orchestrator) Tick(ctx context.Context) error {
	if o.state.StopRequested() {
		o.stopAllJobs(ctx)
		return nil
	}

	o.drainCompletions(ctx)

	if !o.state.PauseRequested() {
		o.admit(ctx)
	}

	if o.state.chunkQueue.Len() == 0 && o.state.ActiveCount() == 0 {
		if err := o.completeProfile(ctx); err != nil {
			return err
		}
	}

	o.reportProgress()
	return nil
}

// drainCompletions processes every completion currently queued without
// blocking for more to arrive.
func (o *Orchestrator) drainCompletions(ctx context.Context) {
	for {
		select {
		case jc := <-o.completions:
			o.handleCompletion(ctx, jc)
		default:
			return
		}
	}
}

// admit starts new jobs while capacity and queued chunks both remain. It
// passes over the queue at most once per call so chunks deferred by
// retry_after don't spin the loop.
func (o *Orchestrator) admit(ctx context.Context) {
	originalLen := o.state.chunkQueue.Len()
	now := time.Now()

	for processed := 0; processed < originalLen && o.state.ActiveCount() < o.cfg.MaxConcurrent; processed++ {
		chunk, ok := o.state.chunkQueue.Dequeue()
		if !ok {
			return
		}

		if o.resumeCP != nil && checkpoint.IsCompleted(chunk.SourcePath, o.resumeCP) {
			o.state.completedChunkBytes.Add(chunk.EstimatedSize)
			o.state.skippedChunkCount.Add(1)
			continue
		}

		if !chunk.RetryAfter.IsZero() && chunk.RetryAfter.After(now) {
			o.state.chunkQueue.Enqueue(chunk)
			continue
		}

		if !o.governor.Allow() {
			// Aggregate limit says wait; put the chunk back at the tail and
			// stop admitting for this tick rather than spinning through the
			// rest of the queue against the same closed gate.
			o.state.chunkQueue.Enqueue(chunk)
			return
		}

		o.startChunk(ctx, chunk)
	}
}

// startChunk launches a copier job for chunk and spawns its watcher
// goroutine, or routes a start failure through the retry/backoff path.
func (o *Orchestrator) startChunk(ctx context.Context, chunk *types.Chunk) {
	profile, _ := o.state.CurrentProfile()
	gapMS := o.governor.Gap(o.state.ActiveCount(), true)

	in := copier.JobInput{
		Chunk:            chunk,
		SourcePath:       chunk.SourcePath,
		DestinationPath:  chunk.DestinationPath,
		LogRoot:          o.cfg.LogRoot,
		SessionDir:       o.sessionDir,
		Threads:          o.cfg.Threads,
		Options:          profile.Options,
		InterPacketGapMS: gapMS,
		MismatchSeverity: effectiveMismatchSeverity(profile, o.cfg.MismatchSeverity),
		Binary:           o.cfg.Binary,
	}

	handle, warnings, err := o.runner.Start(ctx, in)
	for _, w := range warnings {
		o.log.Warnf("chunk %d: %s", chunk.ID, w)
	}
	if err != nil {
		o.log.Errorf("start chunk %d: %v", chunk.ID, err)
		o.handleFailure(chunk, true, err.Error())
		return
	}

	pid := handle.Pid()
	chunk.Status = types.ChunkRunning
	o.state.addActive(pid, &activeJob{job: handle, chunk: chunk, startTime: time.Now(), logPath: handle.LogPath()})
	o.publish(events.ChunkStart, map[string]any{"chunk_id": chunk.ID, "source": chunk.SourcePath})

	go o.watch(handle, pid)
}

// watch blocks on the job's exit in its own goroutine and reports the
// result back to Tick via the completions channel, keeping Tick itself
// non-blocking.
func (o *Orchestrator) watch(handle jobHandle, pid int) {
	exitCode, err := o.runner.Wait(handle)
	o.completions <- jobCompletion{pid: pid, exitCode: exitCode, err: err}
}

// handleCompletion processes one job's exit: parses its log, classifies
// the result, and updates counters, queues, and the checkpoint cadence.
func (o *Orchestrator) handleCompletion(ctx context.Context, jc jobCompletion) {
	active, ok := o.state.removeActive(jc.pid)
	if !ok {
		return
	}
	chunk := active.chunk
	failed := false

	if jc.err != nil {
		o.handleFailure(chunk, true, jc.err.Error())
		failed = true
	} else {
		parsed, perr := copier.ParseLog(active.logPath)
		if perr != nil {
			o.log.Warnf("parse log for chunk %d: %v", chunk.ID, perr)
		}
		profile, _ := o.state.CurrentProfile()
		result := copier.BuildResult(chunk, jc.exitCode, effectiveMismatchSeverity(profile, o.cfg.MismatchSeverity), parsed)
		failed = o.applyResult(chunk, result)
	}

	o.state.completedCount.Add(1)
	if failed || o.state.completedCount.Load()%o.cfg.CheckpointFrequency == 0 {
		o.writeCheckpoint()
	}
}

// applyResult folds a ChunkResult into the run's counters and queues,
// dispatching retryable/permanent failures through handleFailure. It
// reports whether the outcome was a failure (for checkpoint cadence).
func (o *Orchestrator) applyResult(chunk *types.Chunk, result types.ChunkResult) bool {
	switch result.Severity {
	case types.SeveritySuccess, types.SeverityWarning:
		if result.Severity == types.SeverityWarning {
			chunk.Status = types.ChunkCompleteWithWarnings
		} else {
			chunk.Status = types.ChunkComplete
		}
		o.state.completedChunks.Enqueue(chunk)
		o.state.completedChunkBytes.Add(result.BytesCopied)
		o.state.completedChunkFiles.Add(result.FilesCopied)
		o.state.bytesComplete.Add(result.BytesCopied)
		if o.metrics != nil {
			o.metrics.BytesCompleted.Add(float64(result.BytesCopied))
		}
		o.publish(events.ChunkComplete, map[string]any{
			"chunk_id":     chunk.ID,
			"severity":     string(result.Severity),
			"files_copied": result.FilesCopied,
			"bytes_copied": result.BytesCopied,
		})
		return false

	default:
		o.handleFailure(chunk, result.Retryable, result.Message)
		return true
	}
}

// handleFailure either re-enqueues chunk with an exponential backoff
// retry_after, or marks it permanently failed.
func (o *Orchestrator) handleFailure(chunk *types.Chunk, retryable bool, message string) {
	if retryable && chunk.RetryCount < o.cfg.Retry.MaxRetries {
		chunk.RetryCount++
		delay := o.cfg.Retry.nextDelay(chunk.RetryCount)
		chunk.RetryAfter = time.Now().Add(delay)
		chunk.Status = types.ChunkPending
		o.state.chunkQueue.Enqueue(chunk)
		if o.metrics != nil {
			o.metrics.RetryTotal.Inc()
		}
		return
	}

	chunk.Status = types.ChunkFailed
	o.state.failedChunks.Enqueue(chunk)
	o.state.errorMessages.Enqueue(message)
	o.publish(events.ChunkError, map[string]any{"chunk_id": chunk.ID, "source": chunk.SourcePath, "error": message})
}

// writeCheckpoint persists the current run state; it does nothing if no
// checkpoint store is configured for this run.
func (o *Orchestrator) writeCheckpoint() {
	if o.checkpts == nil {
		return
	}
	profile, _ := o.state.CurrentProfile()
	completedPaths := make([]string, 0)
	for _, c := range o.state.completedChunks.Snapshot() {
		completedPaths = append(completedPaths, c.SourcePath)
	}

	cp := checkpoint.Checkpoint{
		Version:             checkpoint.CurrentSchemaVersion,
		SessionID:           o.state.sessionID,
		SavedAt:             time.Now(),
		ProfileIndex:        o.state.ProfileIndex(),
		CurrentProfileName:  profile.Name,
		CompletedChunkPaths: completedPaths,
		CompletedCount:      int(o.state.completedCount.Load()),
		FailedCount:         len(o.state.failedChunks.Snapshot()),
		BytesComplete:       o.state.bytesComplete.Load(),
		StartTime:           o.state.startTime,
	}
	if err := o.checkpts.Save(cp); err != nil {
		o.log.Warnf("save checkpoint: %v", err)
	}
}

// reportProgress writes a rate-limited health document and syncs metrics.
func (o *Orchestrator) reportProgress() {
	status := o.buildStatus()
	if o.reporter != nil {
		if err := o.reporter.WriteStatus(status, false); err != nil {
			o.log.Warnf("write health document: %v", err)
		}
	}
	if o.metrics != nil {
		o.metrics.Sync(status)
	}
}

// buildStatus snapshots the run's counters into the external health
// document schema.
func (o *Orchestrator) buildStatus() health.Status {
	profile, hasProfile := o.state.CurrentProfile()
	var currentProfile *string
	if hasProfile {
		name := profile.Name
		currentProfile = &name
	}

	return health.Status{
		Timestamp:       time.Now().UTC(),
		Phase:           string(o.state.Phase()),
		CurrentProfile:  currentProfile,
		ProfileIndex:    o.state.ProfileIndex(),
		ProfileCount:    len(o.state.profiles),
		ChunksCompleted: len(o.state.completedChunks.Snapshot()),
		ChunksTotal:     o.profileChunksTotal,
		ChunksPending:   o.state.chunkQueue.Len(),
		ChunksFailed:    len(o.state.failedChunks.Snapshot()),
		ActiveJobs:      o.state.ActiveCount(),
		BytesCompleted:  o.state.bytesComplete.Load(),
		EtaSeconds:      o.estimateETA(),
		SessionID:       o.state.sessionID,
		Healthy:         health.ComputeHealthy(string(o.state.Phase()), len(o.state.failedChunks.Snapshot())),
		Message:         "",
	}
}

// estimateETA projects remaining time from the current profile's
// bytes-per-second rate since its start; nil when there isn't enough
// signal yet.
func (o *Orchestrator) estimateETA() *int64 {
	o.state.mu.Lock()
	started := o.state.profileStartTime
	o.state.mu.Unlock()

	elapsed := time.Since(started).Seconds()
	if elapsed < 1 || o.profileEstimatedBytes <= 0 {
		return nil
	}
	done := o.state.completedChunkBytes.Load() - o.state.profileStartBytes.Load()
	if done <= 0 {
		return nil
	}
	rate := float64(done) / elapsed
	if rate <= 0 {
		return nil
	}
	remaining := o.profileEstimatedBytes - done
	if remaining < 0 {
		remaining = 0
	}
	eta := int64(float64(remaining) / rate)
	return &eta
}

// effectiveMismatchSeverity prefers a profile-level override over the
// run-wide default.
func effectiveMismatchSeverity(profile types.SyncProfile, fallback types.MismatchSeverity) types.MismatchSeverity {
	if profile.Options.MismatchSeverity != "" {
		return profile.Options.MismatchSeverity
	}
	return fallback
}
