package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/prometheus/client_golang/prometheus"

	"replicurse/internal/bandwidth"
	"replicurse/internal/checkpoint"
	"replicurse/internal/chunker"
	"replicurse/internal/events"
	"replicurse/internal/health"
	"replicurse/internal/logging"
	"replicurse/internal/orchestrator"
	"replicurse/internal/profiler"
	"replicurse/internal/snapshot"
	"replicurse/internal/types"
)

// Run wires every subsystem together, starts a run over cfg.Profiles, and
// drives tick() until the run reaches a terminal phase or the process is
// interrupted.
func Run(cfg AppConfig, log *logging.Logger) error {
	if len(cfg.Profiles) == 0 {
		return fmt.Errorf("no profiles configured")
	}

	nickname := cfg.SessionName
	if nickname == "" {
		nickname = petname.Generate(2, "-")
	}
	log.Infof("session %s starting over %d profile(s)", nickname, len(cfg.Profiles))

	sessionDir := time.Now().Format("2006-01-02")

	cache := profiler.NewCache(cacheEntriesOr(cfg.CacheMaxEntries), cacheAgeOr(cfg.CacheMaxAge))
	prof := profiler.New(cache, cfg.CopierBinary, cfg.LogRoot, log.Named("profiler"))

	watcher, werr := profiler.NewWatcher(cache, log.Named("profiler"))
	if werr != nil {
		log.Warnf("directory watch disabled: %v", werr)
	} else {
		prof.Watcher = watcher
		defer watcher.Close()
	}

	ck := chunker.New(prof, log.Named("chunker"), cfg.ProfilerDegree)
	runner := orchestrator.NewDefaultRunner()

	if err := snapshot.RecoverOrphans(cfg.LogRoot, func(shadowID, sourceVolume string, isRemote bool, serverName string) error {
		log.Warnf("orphan snapshot %s on %s left by a prior run; no platform release binding is configured, recording removed", shadowID, sourceVolume)
		return nil
	}); err != nil {
		log.Warnf("recover orphan snapshots: %v", err)
	}
	tracker := snapshot.NewTracker(cfg.LogRoot)
	snapMgr := snapshot.New(nil, nil, tracker, snapshot.RetryPolicy{}, os.TempDir(), log.Named("snapshot"))

	cpStore := checkpoint.NewStore(cfg.LogRoot, sessionDir, log.Named("checkpoint"))
	reporter := health.NewReporter(cfg.HealthInterval, log.Named("health"))
	metrics := health.NewMetrics(prometheus.DefaultRegisterer)
	governor := bandwidth.NewGovernor(cfg.BandwidthLimitMbps)
	eventQueue := events.NewQueue(256)

	orchCfg := orchestrator.Config{
		MaxConcurrent:       cfg.MaxConcurrent,
		BandwidthLimitMbps:  cfg.BandwidthLimitMbps,
		CheckpointFrequency: cfg.CheckpointFrequency,
		HealthInterval:      cfg.HealthInterval,
		Retry: orchestrator.RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.RetryBaseDelay,
			Multiplier: cfg.RetryMultiplier,
			MaxDelay:   cfg.RetryMaxDelay,
		},
		LogRoot:          cfg.LogRoot,
		Binary:           cfg.CopierBinary,
		Threads:          cfg.Threads,
		MismatchSeverity: cfg.MismatchSeverity,
		IgnoreCheckpoint: cfg.IgnoreCheckpoint,
		StopWait:         cfg.StopWait,
	}

	orch := orchestrator.New(orchCfg, runner, ck, prof, snapMgr, cpStore, reporter, metrics, governor, eventQueue, log.Named("orchestrator"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		if _, ok := <-sigCh; ok {
			log.Warn("interrupt received, stopping active jobs")
			orch.RequestStop()
		}
	}()
	defer signal.Stop(sigCh)

	if err := orch.StartRun(ctx, cfg.Profiles); err != nil {
		return fmt.Errorf("start run: %w", err)
	}

	ticker := time.NewTicker(tickIntervalOr(cfg.TickInterval))
	defer ticker.Stop()

	for range ticker.C {
		if err := orch.Tick(ctx); err != nil {
			return fmt.Errorf("tick: %w", err)
		}
		switch orch.State().Phase() {
		case types.PhaseComplete, types.PhaseStopped:
			log.Successf("run finished: phase=%s", orch.State().Phase())
			return nil
		}
	}

	return nil
}

func cacheEntriesOr(n int) int {
	if n <= 0 {
		return 500
	}
	return n
}

func cacheAgeOr(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Minute
	}
	return d
}

func tickIntervalOr(d time.Duration) time.Duration {
	if d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}
