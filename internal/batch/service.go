package batch

import (
	"context"
	"time"

	"survey-insights-go/internal/types"
)

// Service is the remote asynchronous transcription service.
type Service interface {
	CreateJob(ctx context.Context, cfg types.JobConfig) (string, error)
	UploadFiles(ctx context.Context, jobID string, paths []string) error
	StartJob(ctx context.Context, jobID string, fileNames []string) error
	GetStatus(ctx context.Context, jobID string) (types.RemoteStatus, error)
	DownloadOutputs(ctx context.Context, jobID, outputDir string) error
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
