package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"survey-insights-go/internal/aggregator"
	"survey-insights-go/internal/metrics"
	"survey-insights-go/internal/types"
)

// Submitter turns chunks into started remote jobs, one chunk at a time.
type Submitter struct {
	svc      Service
	reg      *Registry
	outcomes *aggregator.Outcomes
	cfg      types.JobConfig
	pause    time.Duration
	sleep    SleepFunc
	log      *logrus.Entry
}

func NewSubmitter(svc Service, reg *Registry, outcomes *aggregator.Outcomes, cfg types.JobConfig, pause time.Duration, log *logrus.Entry) *Submitter {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Submitter{
		svc:      svc,
		reg:      reg,
		outcomes: outcomes,
		cfg:      cfg,
		pause:    pause,
		sleep:    sleepContext,
		log:      log.WithField("component", "submitter"),
	}
}

// Submit creates, uploads and starts a job per chunk. A failing chunk is
// marked SubmissionFailed and the next chunk is tried. Only context
// cancellation stops the loop early; unsubmitted chunks are left untouched.
func (s *Submitter) Submit(ctx context.Context, chunks []types.Chunk) error {
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.submitChunk(ctx, c)
		if i < len(chunks)-1 && s.pause > 0 {
			if err := s.sleep(ctx, s.pause); err != nil {
				return err
			}
		}
	}
	return ctx.Err()
}

func (s *Submitter) submitChunk(ctx context.Context, c types.Chunk) {
	log := s.log.WithField("chunk_index", c.Index).WithField("files", len(c.Items))
	if err := s.reg.Add(ctx, c); err != nil {
		log.WithError(err).Error("cannot register chunk")
		return
	}

	log.Info("creating job")
	jobID, err := s.svc.CreateJob(ctx, s.cfg)
	if err != nil {
		s.fail(ctx, log, c, "create", err)
		return
	}
	log = log.WithField("job_id", jobID)
	if err := s.reg.AssignJobID(ctx, c.Index, jobID); err != nil {
		log.WithError(err).Warn("cannot record job id")
	}

	log.Info("uploading files")
	if err := s.svc.UploadFiles(ctx, jobID, c.FilePaths()); err != nil {
		s.fail(ctx, log, c, "upload", err)
		return
	}
	s.transition(ctx, log, c.Index, types.JobUploaded, "")

	log.Info("starting job")
	if err := s.svc.StartJob(ctx, jobID, c.FileNames()); err != nil {
		s.fail(ctx, log, c, "start", err)
		return
	}
	s.transition(ctx, log, c.Index, types.JobStarted, "")
	log.Info("job started")
}

func (s *Submitter) fail(ctx context.Context, log *logrus.Entry, c types.Chunk, step string, err error) {
	detail := fmt.Sprintf("%s: %v", step, err)
	log.WithError(err).WithField("step", step).Error("chunk submission failed")
	metrics.IncreaseSubmissionFailures(step)
	s.outcomes.FailAll(c.Items, types.StatusSubmissionFailed, detail)
	s.transition(ctx, log, c.Index, types.JobSubmissionFailed, detail)
}

func (s *Submitter) transition(ctx context.Context, log *logrus.Entry, chunkIndex int, to types.JobState, errMsg string) {
	if err := s.reg.Transition(ctx, chunkIndex, to, errMsg); err != nil {
		log.WithError(err).Error("job transition rejected")
	}
}
