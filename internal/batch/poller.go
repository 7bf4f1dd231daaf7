package batch

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"survey-insights-go/internal/aggregator"
	"survey-insights-go/internal/metrics"
	"survey-insights-go/internal/types"
)

// Poller drives every started job to a terminal state.
type Poller struct {
	svc       Service
	reg       *Registry
	collector *Collector
	outcomes  *aggregator.Outcomes
	interval  time.Duration
	timeout   time.Duration
	sleep     SleepFunc
	now       func() time.Time
	log       *logrus.Entry
}

func NewPoller(svc Service, reg *Registry, collector *Collector, outcomes *aggregator.Outcomes, interval, timeout time.Duration, log *logrus.Entry) *Poller {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Poller{
		svc:       svc,
		reg:       reg,
		collector: collector,
		outcomes:  outcomes,
		interval:  interval,
		timeout:   timeout,
		sleep:     sleepContext,
		now:       time.Now,
		log:       log.WithField("component", "poller"),
	}
}

// Run sweeps the started jobs, querying each once per sweep, and sleeps the
// poll interval between sweeps. It returns nil once no job is waiting, or
// once the timeout (if any) expired and the waiting jobs were abandoned. On
// context cancellation the waiting jobs are left Started.
func (p *Poller) Run(ctx context.Context) error {
	var deadline time.Time
	if p.timeout > 0 {
		deadline = p.now().Add(p.timeout)
	}
	sweep := 0
	for {
		waiting := p.reg.Started()
		if len(waiting) == 0 {
			return nil
		}
		sweep++
		p.log.WithField("sweep", sweep).WithField("jobs", len(waiting)).Debug("polling")
		for _, job := range waiting {
			if err := ctx.Err(); err != nil {
				return err
			}
			p.poll(ctx, job)
		}

		left := len(p.reg.Started())
		if left == 0 {
			return nil
		}
		if !deadline.IsZero() && !p.now().Before(deadline) {
			p.abandon(ctx)
			return nil
		}
		p.log.WithField("jobs", left).Infof("waiting %s before next status sweep", p.interval)
		if err := p.sleep(ctx, p.interval); err != nil {
			return err
		}
	}
}

func (p *Poller) poll(ctx context.Context, job types.Job) {
	log := p.log.WithField("chunk_index", job.ChunkIndex).WithField("job_id", job.JobID)
	st, err := p.svc.GetStatus(ctx, job.JobID)
	if err != nil {
		metrics.IncreasePollErrors()
		log.WithError(err).Warn("status check failed, retrying next sweep")
		return
	}

	switch st.State {
	case types.RemoteCompleted:
		arts, err := p.collector.Collect(ctx, job)
		if err != nil {
			metrics.IncreasePollErrors()
			log.WithError(err).Warn("collection failed, retrying next sweep")
			return
		}
		for _, a := range arts {
			p.outcomes.Artifact(a)
		}
		p.transition(ctx, log, job.ChunkIndex, types.JobCompleted, "")
		log.Info("job completed")
	case types.RemoteFailed:
		detail := st.Message
		if detail == "" {
			detail = "job failed"
		}
		p.outcomes.FailAll(job.Items, types.StatusJobFailed, detail)
		p.transition(ctx, log, job.ChunkIndex, types.JobFailed, detail)
		log.WithField("detail", detail).Error("job failed")
	default:
		log.WithField("remote_state", st.State).Debug("job still running")
	}
}

func (p *Poller) abandon(ctx context.Context) {
	for _, job := range p.reg.Started() {
		log := p.log.WithField("chunk_index", job.ChunkIndex).WithField("job_id", job.JobID)
		detail := "poll timeout of " + p.timeout.String() + " exceeded"
		p.outcomes.FailAll(job.Items, types.StatusAbandoned, detail)
		p.transition(ctx, log, job.ChunkIndex, types.JobAbandoned, detail)
		log.Warn("job abandoned")
	}
}

func (p *Poller) transition(ctx context.Context, log *logrus.Entry, chunkIndex int, to types.JobState, errMsg string) {
	if err := p.reg.Transition(ctx, chunkIndex, to, errMsg); err != nil {
		log.WithError(err).Error("job transition rejected")
	}
}
