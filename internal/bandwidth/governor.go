package bandwidth

import (
	"context"

	"golang.org/x/time/rate"
)

// Governor pairs the gap computation above with a token-bucket limiter
// used to pace job *admission*: Gap alone throttles bytes already in
// flight, but says nothing about how fast the orchestrator should start
// new jobs when the aggregate limit is tight. The governor's limiter
// allows one admission per estimated per-job interval, smoothing bursts
// of chunk starts rather than letting the admission loop launch every
// eligible chunk in the same tick.
type Governor struct {
	limiter   *rate.Limiter
	limitMbps float64
}

// NewGovernor builds a Governor for an aggregate limit of limitMbps
// megabits/sec. A non-positive limit disables admission pacing entirely
// (Allow always permits).
func NewGovernor(limitMbps float64) *Governor {
	if limitMbps <= 0 {
		return &Governor{limiter: rate.NewLimiter(rate.Inf, 1), limitMbps: limitMbps}
	}
	// One admission burst per second, refilling at a rate derived from the
	// aggregate limit so tighter budgets pace admission more conservatively.
	perSecond := rate.Limit(limitMbps / 10)
	if perSecond < 1 {
		perSecond = 1
	}
	return &Governor{limiter: rate.NewLimiter(perSecond, 1), limitMbps: limitMbps}
}

// Allow reports whether a new job may be admitted right now without
// blocking; the admission loop re-tries on the next tick if not.
func (g *Governor) Allow() bool {
	return g.limiter.Allow()
}

// Wait blocks until admission is permitted or ctx is done.
func (g *Governor) Wait(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}

// Gap computes this job's inter-packet gap given the current count of
// active jobs, using the governor's configured aggregate limit.
func (g *Governor) Gap(activeJobs int, pendingNew bool) int {
	return Gap(g.limitMbps, activeJobs, pendingNew)
}
