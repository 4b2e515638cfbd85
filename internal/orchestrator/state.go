package orchestrator

import (
	"sync"
	"sync/atomic"
	"time"

	"replicurse/internal/types"
)

// activeJob tracks one running copier process alongside the chunk it is
// executing.
type activeJob struct {
	job       jobHandle
	chunk     *types.Chunk
	startTime time.Time
	logPath   string
}

// jobCompletion is delivered on the completions channel when a job's
// watcher goroutine observes process exit. The chunk itself is looked up
// from the active-job map by pid, not carried here, so the watcher
// goroutine doesn't need a reference race with the admission loop.
type jobCompletion struct {
	pid      int
	exitCode int
	err      error
}

// State is the orchestration run's shared, concurrently-accessed state.
// Scalar counters are atomic; reference fields are guarded by mu; the
// concurrent containers (chunk queue, active jobs, completed/failed
// chunks, profile results, error messages) need no external lock for
// individual operations.
type State struct {
	mu sync.Mutex

	sessionID       string
	phase           types.Phase
	profiles        []types.SyncProfile
	profileIndex    int
	currentSnapshot any // snapshot.Snapshot value, or nil when no snapshot is active

	startTime        time.Time
	profileStartTime time.Time

	completedCount       atomic.Int64
	bytesComplete        atomic.Int64
	completedChunkBytes  atomic.Int64
	completedChunkFiles  atomic.Int64
	skippedChunkCount    atomic.Int64
	profileStartFiles    atomic.Int64
	profileStartBytes    atomic.Int64
	profileStartSkipped  atomic.Int64

	stopRequested  atomic.Bool
	pauseRequested atomic.Bool

	chunkQueue      *Queue[*types.Chunk]
	completedChunks *Queue[*types.Chunk]
	failedChunks    *Queue[*types.Chunk]
	profileResults  *Queue[types.ProfileResult]
	errorMessages   *Queue[string]

	activeJobs sync.Map // pid -> *activeJob
	activeLen  atomic.Int64
}

// NewState builds a fresh per-run State.
func NewState(sessionID string, profiles []types.SyncProfile) *State {
	return &State{
		sessionID:       sessionID,
		phase:           types.PhaseIdle,
		profiles:        profiles,
		chunkQueue:      NewQueue[*types.Chunk](),
		completedChunks: NewQueue[*types.Chunk](),
		failedChunks:    NewQueue[*types.Chunk](),
		profileResults:  NewQueue[types.ProfileResult](),
		errorMessages:   NewQueue[string](),
	}
}

func (s *State) Phase() types.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *State) setPhase(p types.Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
}

func (s *State) CurrentProfile() (types.SyncProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profileIndex < 0 || s.profileIndex >= len(s.profiles) {
		return types.SyncProfile{}, false
	}
	return s.profiles[s.profileIndex], true
}

func (s *State) ProfileIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profileIndex
}

func (s *State) RequestStop()    { s.stopRequested.Store(true) }
func (s *State) RequestPause()   { s.pauseRequested.Store(true) }
func (s *State) RequestResume()  { s.pauseRequested.Store(false) }
func (s *State) StopRequested() bool  { return s.stopRequested.Load() }
func (s *State) PauseRequested() bool { return s.pauseRequested.Load() }

func (s *State) ActiveCount() int {
	return int(s.activeLen.Load())
}

func (s *State) addActive(pid int, a *activeJob) {
	s.activeJobs.Store(pid, a)
	s.activeLen.Add(1)
}

func (s *State) removeActive(pid int) (*activeJob, bool) {
	v, ok := s.activeJobs.LoadAndDelete(pid)
	if !ok {
		return nil, false
	}
	s.activeLen.Add(-1)
	return v.(*activeJob), true
}

func (s *State) forEachActive(fn func(pid int, a *activeJob)) {
	s.activeJobs.Range(func(k, v any) bool {
		fn(k.(int), v.(*activeJob))
		return true
	})
}

// ActiveChunkIDs is a test/diagnostic helper returning the chunk ids of
// currently active jobs.
func (s *State) ActiveChunkIDs() []int64 {
	var ids []int64
	s.forEachActive(func(_ int, a *activeJob) { ids = append(ids, a.chunk.ID) })
	return ids
}
