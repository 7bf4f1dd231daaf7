package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"survey-insights-go/internal/aggregator"
	"survey-insights-go/internal/metrics"
	"survey-insights-go/internal/types"
)

var ErrDuplicateFileName = errors.New("duplicate file name in catalog")

// Options configures one orchestrated run.
type Options struct {
	RunID        string
	MaxChunkSize int
	PollInterval time.Duration
	PollTimeout  time.Duration
	SubmitPause  time.Duration
	OutputDir    string
	Job          types.JobConfig
}

type Orchestrator struct {
	svc    Service
	opts   Options
	store  JobStore
	exists func(string) bool
	sleep  SleepFunc
	now    func() time.Time
	log    *logrus.Entry
}

type Option func(*Orchestrator)

// WithStore persists every job transition.
func WithStore(s JobStore) Option {
	return func(o *Orchestrator) { o.store = s }
}

func WithLogger(log *logrus.Entry) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithFileExists replaces the on-disk existence check used to filter the catalog.
func WithFileExists(fn func(string) bool) Option {
	return func(o *Orchestrator) { o.exists = fn }
}

func WithSleep(fn SleepFunc) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func New(svc Service, opts Options, options ...Option) *Orchestrator {
	o := &Orchestrator{
		svc:    svc,
		opts:   opts,
		exists: FileExists,
		sleep:  sleepContext,
		now:    time.Now,
		log:    logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range options {
		opt(o)
	}
	o.log = o.log.WithField("run_id", opts.RunID)
	return o
}

// ValidateCatalog rejects catalogs where two items share a file name.
func ValidateCatalog(catalog []types.WorkItem) error {
	seen := make(map[string]string, len(catalog))
	for _, it := range catalog {
		if prev, ok := seen[it.FileName]; ok {
			return fmt.Errorf("%w: %q used by samples %s and %s", ErrDuplicateFileName, it.FileName, prev, it.SampleID)
		}
		seen[it.FileName] = it.SampleID
	}
	return nil
}

// run state shared by Run and Resume.
type run struct {
	reg       *Registry
	outcomes  *aggregator.Outcomes
	submitter *Submitter
	poller    *Poller
}

func (o *Orchestrator) newRun() *run {
	reg := NewRegistry(o.opts.RunID, o.store, o.log)
	reg.now = o.now
	outcomes := aggregator.NewOutcomes()

	submitter := NewSubmitter(o.svc, reg, outcomes, o.opts.Job, o.opts.SubmitPause, o.log)
	submitter.sleep = o.sleep

	collector := NewCollector(o.svc, o.opts.OutputDir, o.log)
	poller := NewPoller(o.svc, reg, collector, outcomes, o.opts.PollInterval, o.opts.PollTimeout, o.log)
	poller.sleep = o.sleep
	poller.now = o.now

	return &run{reg: reg, outcomes: outcomes, submitter: submitter, poller: poller}
}

func (o *Orchestrator) preflight(catalog []types.WorkItem) error {
	if err := ValidateCatalog(catalog); err != nil {
		return err
	}
	if err := os.MkdirAll(o.opts.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return nil
}

// Run partitions the catalog, submits every chunk, polls all started jobs to
// a terminal state and returns exactly one record per catalog item. Errors
// before the first remote call are returned with nil records. A cancelled
// context returns the records built so far, with unresolved items PENDING,
// together with the context error.
func (o *Orchestrator) Run(ctx context.Context, catalog []types.WorkItem) ([]types.AggregatedRecord, error) {
	if err := o.preflight(catalog); err != nil {
		return nil, err
	}
	r := o.newRun()

	chunks, missing := Partition(catalog, o.opts.MaxChunkSize, o.exists)
	o.recordMissing(r, missing)
	o.log.WithFields(logrus.Fields{
		"items":   len(catalog),
		"missing": len(missing),
		"chunks":  len(chunks),
	}).Info("catalog partitioned")

	return o.execute(ctx, r, catalog, chunks)
}

// Resume continues a run from its persisted jobs. Completed jobs are re-read
// from the output directory, terminal failures are replayed, started jobs are
// polled again and jobs interrupted mid-submission are marked failed. Catalog
// items not covered by any persisted job are submitted as new chunks.
func (o *Orchestrator) Resume(ctx context.Context, catalog []types.WorkItem, jobs []types.Job) ([]types.AggregatedRecord, error) {
	if err := o.preflight(catalog); err != nil {
		return nil, err
	}
	r := o.newRun()

	sorted := append([]types.Job(nil), jobs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ChunkIndex < sorted[j].ChunkIndex })

	covered := map[string]bool{}
	for _, job := range sorted {
		if err := r.reg.Restore(job); err != nil {
			return nil, fmt.Errorf("restore job: %w", err)
		}
		for _, f := range job.Files {
			covered[f] = true
		}
		o.replay(ctx, r, job)
	}

	var rest []types.WorkItem
	for _, it := range catalog {
		if !covered[it.FileName] {
			rest = append(rest, it)
		}
	}
	chunks, missing := Partition(rest, o.opts.MaxChunkSize, o.exists)
	o.recordMissing(r, missing)
	offset := r.reg.NextChunkIndex()
	for i := range chunks {
		chunks[i].Index += offset
	}
	o.log.WithFields(logrus.Fields{
		"restored_jobs": len(sorted),
		"new_chunks":    len(chunks),
		"missing":       len(missing),
	}).Info("run resumed")

	return o.execute(ctx, r, catalog, chunks)
}

func (o *Orchestrator) replay(ctx context.Context, r *run, job types.Job) {
	log := o.log.WithField("chunk_index", job.ChunkIndex).WithField("job_id", job.JobID)
	switch job.State {
	case types.JobCompleted:
		for _, a := range ParseArtifacts(o.opts.OutputDir, job.Files) {
			r.outcomes.Artifact(a)
		}
	case types.JobFailed:
		r.outcomes.FailAll(job.Items, types.StatusJobFailed, job.Error)
	case types.JobSubmissionFailed:
		r.outcomes.FailAll(job.Items, types.StatusSubmissionFailed, job.Error)
	case types.JobAbandoned:
		r.outcomes.FailAll(job.Items, types.StatusAbandoned, job.Error)
	case types.JobCreated, types.JobUploaded:
		detail := "interrupted during submission"
		r.outcomes.FailAll(job.Items, types.StatusSubmissionFailed, detail)
		if err := r.reg.Transition(ctx, job.ChunkIndex, types.JobSubmissionFailed, detail); err != nil {
			log.WithError(err).Error("job transition rejected")
		}
	case types.JobStarted:
		log.Info("resuming poll of started job")
	default:
		log.WithField("state", job.State).Warn("unknown persisted job state")
	}
}

func (o *Orchestrator) recordMissing(r *run, missing []types.WorkItem) {
	for _, it := range missing {
		o.log.WithField("sample_id", it.SampleID).WithField("file_path", it.FilePath).Warn("audio file not found")
		r.outcomes.Fail(it.FileName, types.StatusFileMissing, "file not found: "+it.FilePath)
	}
}

func (o *Orchestrator) execute(ctx context.Context, r *run, catalog []types.WorkItem, chunks []types.Chunk) ([]types.AggregatedRecord, error) {
	err := r.submitter.Submit(ctx, chunks)
	if err == nil {
		err = r.poller.Run(ctx)
	}
	if err != nil {
		o.log.WithError(err).Warn("run interrupted, unfinished items stay pending")
	}
	records := aggregator.Aggregate(catalog, r.outcomes)
	countRecords(records)
	return records, err
}

func countRecords(records []types.AggregatedRecord) {
	counts := map[types.RecordStatus]int{}
	for _, rec := range records {
		counts[rec.Status]++
	}
	for status, n := range counts {
		metrics.IncreaseRecords(string(status), n)
	}
}

// CollectFromDisk builds records from artifacts already present in outputDir
// without contacting the service. Items with no artifact yet are PENDING.
func CollectFromDisk(catalog []types.WorkItem, outputDir string, exists func(string) bool) []types.AggregatedRecord {
	if exists == nil {
		exists = FileExists
	}
	outcomes := aggregator.NewOutcomes()
	for _, it := range catalog {
		if !exists(it.FilePath) {
			outcomes.Fail(it.FileName, types.StatusFileMissing, "file not found: "+it.FilePath)
			continue
		}
		a := parseArtifact(outputDir, it.FileName)
		if a.Status == types.ArtifactMissing {
			continue
		}
		outcomes.Artifact(a)
	}
	return aggregator.Aggregate(catalog, outcomes)
}
