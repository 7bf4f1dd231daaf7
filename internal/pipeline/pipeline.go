// internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"survey-insights-go/internal/aggregator"
	"survey-insights-go/internal/types"
)

// Transcriber transcribes one local audio file synchronously.
type Transcriber interface {
	Transcribe(ctx context.Context, path string, cfg types.JobConfig) (string, error)
}

type Options struct {
	Workers        int
	PerFileTimeout time.Duration
	Job            types.JobConfig
	Log            *logrus.Entry
}

// Result is the outcome of one file.
type Result struct {
	SampleID   string        `json:"sample_id"`
	FileName   string        `json:"file_name"`
	Transcript string        `json:"transcript"`
	Err        error         `json:"-"`
	Duration   time.Duration `json:"duration"`
}

// Run transcribes every item with at most opts.Workers files in flight. A
// failing file never cancels the others. Results are keyed by sample id.
func Run(ctx context.Context, items []types.WorkItem, tr Transcriber, opts Options) map[string]Result {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "pipeline")

	var (
		mu      sync.Mutex
		results = make(map[string]Result, len(items))
	)
	var g errgroup.Group
	g.SetLimit(workers)
	for _, it := range items {
		it := it
		g.Go(func() error {
			res := processWithTimeout(ctx, it, tr, opts)
			entry := log.WithField("sample_id", it.SampleID).WithField("duration_ms", res.Duration.Milliseconds())
			if res.Err != nil {
				entry.WithError(res.Err).Warn("transcription failed")
			} else {
				entry.Debug("transcribed")
			}
			mu.Lock()
			results[it.SampleID] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// processWithTimeout runs one transcription under its own deadline.
func processWithTimeout(ctx context.Context, it types.WorkItem, tr Transcriber, opts Options) Result {
	start := time.Now()
	res := Result{SampleID: it.SampleID, FileName: it.FileName}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	if opts.PerFileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.PerFileTimeout)
		defer cancel()
	}
	text, err := tr.Transcribe(ctx, it.FilePath, opts.Job)
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = fmt.Errorf("transcription error: %w", err)
		return res
	}
	res.Transcript = text
	return res
}

// Records reconciles the results with the catalog: one record per item, in
// catalog order. Items in missing are FILE_MISSING; items without a result
// are PENDING.
func Records(catalog []types.WorkItem, results map[string]Result, missing []types.WorkItem) []types.AggregatedRecord {
	outcomes := aggregator.NewOutcomes()
	for _, it := range missing {
		outcomes.Fail(it.FileName, types.StatusFileMissing, "file not found: "+it.FilePath)
	}
	for _, it := range catalog {
		res, ok := results[it.SampleID]
		if !ok {
			continue
		}
		if res.Err != nil {
			outcomes.Fail(it.FileName, types.StatusTranscriptionFailed, res.Err.Error())
			continue
		}
		outcomes.Succeed(it.FileName, res.Transcript)
	}
	return aggregator.Aggregate(catalog, outcomes)
}
