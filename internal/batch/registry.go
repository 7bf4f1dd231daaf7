package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"survey-insights-go/internal/metrics"
	"survey-insights-go/internal/types"
)

// JobStore persists job snapshots. Implemented by store.Store.
type JobStore interface {
	SaveJob(ctx context.Context, job types.Job) error
}

var transitions = map[types.JobState][]types.JobState{
	types.JobCreated:  {types.JobUploaded, types.JobSubmissionFailed},
	types.JobUploaded: {types.JobStarted, types.JobSubmissionFailed},
	types.JobStarted:  {types.JobCompleted, types.JobFailed, types.JobAbandoned},
}

func isValidTransition(from, to types.JobState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Registry tracks the jobs of one run in insertion order and persists every
// change through the optional JobStore.
type Registry struct {
	mu      sync.Mutex
	runID   string
	jobs    []*types.Job
	byChunk map[int]*types.Job
	store   JobStore
	log     *logrus.Entry
	now     func() time.Time
}

func NewRegistry(runID string, store JobStore, log *logrus.Entry) *Registry {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Registry{
		runID:   runID,
		byChunk: map[int]*types.Job{},
		store:   store,
		log:     log.WithField("run_id", runID),
		now:     time.Now,
	}
}

func (r *Registry) RunID() string {
	return r.runID
}

// Add registers a new job for a chunk in the Created state.
func (r *Registry) Add(ctx context.Context, chunk types.Chunk) error {
	now := r.now()
	return r.insert(ctx, types.Job{
		RunID:      r.runID,
		ChunkIndex: chunk.Index,
		State:      types.JobCreated,
		Files:      chunk.FileNames(),
		Items:      chunk.Items,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, true)
}

// Restore registers a previously persisted job as is.
func (r *Registry) Restore(job types.Job) error {
	job.RunID = r.runID
	return r.insert(context.Background(), job, false)
}

func (r *Registry) insert(ctx context.Context, job types.Job, persist bool) error {
	r.mu.Lock()
	if _, ok := r.byChunk[job.ChunkIndex]; ok {
		r.mu.Unlock()
		return fmt.Errorf("chunk %d already registered", job.ChunkIndex)
	}
	j := &job
	r.jobs = append(r.jobs, j)
	r.byChunk[job.ChunkIndex] = j
	snapshot := *j
	r.mu.Unlock()

	r.refreshInflight()
	if persist {
		r.persist(ctx, snapshot)
	}
	return nil
}

// AssignJobID records the remote id returned when the job was created.
func (r *Registry) AssignJobID(ctx context.Context, chunkIndex int, jobID string) error {
	r.mu.Lock()
	j, ok := r.byChunk[chunkIndex]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("chunk %d not registered", chunkIndex)
	}
	j.JobID = jobID
	j.UpdatedAt = r.now()
	snapshot := *j
	r.mu.Unlock()

	r.persist(ctx, snapshot)
	return nil
}

// Transition moves a job to a new state. Invalid transitions leave the job
// untouched and return an error.
func (r *Registry) Transition(ctx context.Context, chunkIndex int, to types.JobState, errMsg string) error {
	r.mu.Lock()
	j, ok := r.byChunk[chunkIndex]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("chunk %d not registered", chunkIndex)
	}
	if !isValidTransition(j.State, to) {
		from := j.State
		r.mu.Unlock()
		return fmt.Errorf("invalid transition for chunk %d: %s -> %s", chunkIndex, from, to)
	}
	j.State = to
	if errMsg != "" {
		j.Error = errMsg
	}
	j.UpdatedAt = r.now()
	snapshot := *j
	r.mu.Unlock()

	metrics.IncreaseJobTransitions(string(to))
	r.refreshInflight()
	r.log.WithFields(logrus.Fields{
		"chunk_index": snapshot.ChunkIndex,
		"job_id":      snapshot.JobID,
		"state":       to,
	}).Debug("job transition")
	r.persist(ctx, snapshot)
	return nil
}

// Started returns the jobs that are waiting on the remote service, in
// insertion order.
func (r *Registry) Started() []types.Job {
	return r.filter(func(j *types.Job) bool { return j.State == types.JobStarted })
}

// Pending returns every non-terminal job in insertion order.
func (r *Registry) Pending() []types.Job {
	return r.filter(func(j *types.Job) bool { return !j.State.Terminal() })
}

// Jobs returns a snapshot of every job in insertion order.
func (r *Registry) Jobs() []types.Job {
	return r.filter(func(*types.Job) bool { return true })
}

func (r *Registry) Get(chunkIndex int) (types.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.byChunk[chunkIndex]
	if !ok {
		return types.Job{}, false
	}
	return *j, true
}

// AllTerminal reports whether every registered job reached a terminal state.
func (r *Registry) AllTerminal() bool {
	return len(r.Pending()) == 0
}

// NextChunkIndex returns one past the highest registered chunk index.
func (r *Registry) NextChunkIndex() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := 0
	for idx := range r.byChunk {
		if idx >= next {
			next = idx + 1
		}
	}
	return next
}

func (r *Registry) filter(keep func(*types.Job) bool) []types.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.Job
	for _, j := range r.jobs {
		if keep(j) {
			out = append(out, *j)
		}
	}
	return out
}

func (r *Registry) refreshInflight() {
	metrics.SetJobsInflight(len(r.Started()))
}

func (r *Registry) persist(ctx context.Context, job types.Job) {
	if r.store == nil {
		return
	}
	// Persisted even after the run context is cancelled.
	if err := r.store.SaveJob(context.WithoutCancel(ctx), job); err != nil {
		r.log.WithError(err).WithField("chunk_index", job.ChunkIndex).Warn("failed to persist job")
	}
}
