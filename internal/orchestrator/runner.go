package orchestrator

import (
	"context"

	"replicurse/internal/copier"
)

// jobHandle is the minimal surface the orchestrator needs from a started
// copier process; *copier.Job is adapted to it by jobWrapper below.
type jobHandle interface {
	Pid() int
	LogPath() string
}

// JobRunner starts, waits on, and kills copier processes. Abstracted
// behind an interface so the admission/completion loop can be exercised
// without spawning a real copier binary.
type JobRunner interface {
	Start(ctx context.Context, in copier.JobInput) (jobHandle, []string, error)
	Wait(h jobHandle) (int, error)
	Kill(h jobHandle) error
}

// defaultRunner drives the real internal/copier package.
type defaultRunner struct{}

// NewDefaultRunner returns the production JobRunner.
func NewDefaultRunner() JobRunner { return defaultRunner{} }

func (defaultRunner) Start(ctx context.Context, in copier.JobInput) (jobHandle, []string, error) {
	job, warnings, err := copier.Start(ctx, in)
	if err != nil {
		return nil, warnings, err
	}
	return jobWrapper{job}, warnings, nil
}

func (defaultRunner) Wait(h jobHandle) (int, error) {
	return copier.Wait(h.(jobWrapper).job)
}

func (defaultRunner) Kill(h jobHandle) error {
	return copier.Kill(h.(jobWrapper).job)
}

// jobWrapper adapts *copier.Job to jobHandle.
type jobWrapper struct {
	job *copier.Job
}

func (w jobWrapper) Pid() int { return w.job.Cmd.Process.Pid }

func (w jobWrapper) LogPath() string { return w.job.LogPath }
