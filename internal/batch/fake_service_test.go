package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"survey-insights-go/internal/types"
)

// fakeService is an in-memory transcription service. Jobs are named job-1,
// job-2... in creation order.
type fakeService struct {
	mu sync.Mutex

	created     int
	failCreate  map[int]bool
	failUpload  map[int]bool
	failStart   map[int]bool
	remoteFail  map[string]string
	running     int
	noArtifact  map[string]bool
	downloadErr int

	uploaded    map[string][]string
	started     map[string][]string
	statusCalls map[string]int
	downloads   int
}

func newFakeService() *fakeService {
	return &fakeService{
		failCreate:  map[int]bool{},
		failUpload:  map[int]bool{},
		failStart:   map[int]bool{},
		remoteFail:  map[string]string{},
		noArtifact:  map[string]bool{},
		uploaded:    map[string][]string{},
		started:     map[string][]string{},
		statusCalls: map[string]int{},
	}
}

func (f *fakeService) CreateJob(ctx context.Context, cfg types.JobConfig) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	if f.failCreate[f.created] {
		return "", errors.New("create refused")
	}
	return fmt.Sprintf("job-%d", f.created), nil
}

func (f *fakeService) ordinal(jobID string) int {
	var n int
	_, _ = fmt.Sscanf(jobID, "job-%d", &n)
	return n
}

func (f *fakeService) UploadFiles(ctx context.Context, jobID string, paths []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpload[f.ordinal(jobID)] {
		return errors.New("upload refused")
	}
	f.uploaded[jobID] = paths
	return nil
}

func (f *fakeService) StartJob(ctx context.Context, jobID string, fileNames []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStart[f.ordinal(jobID)] {
		return errors.New("start job: status 500: internal error")
	}
	f.started[jobID] = fileNames
	return nil
}

func (f *fakeService) GetStatus(ctx context.Context, jobID string) (types.RemoteStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls[jobID]++
	if _, ok := f.started[jobID]; !ok {
		return types.RemoteStatus{}, fmt.Errorf("unknown job %s", jobID)
	}
	if msg, ok := f.remoteFail[jobID]; ok {
		return types.RemoteStatus{State: types.RemoteFailed, Message: msg}, nil
	}
	if f.statusCalls[jobID] <= f.running {
		return types.RemoteStatus{State: types.RemoteRunning}, nil
	}
	return types.RemoteStatus{State: types.RemoteCompleted}, nil
}

func (f *fakeService) DownloadOutputs(ctx context.Context, jobID, outputDir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads++
	if f.downloadErr > 0 {
		f.downloadErr--
		return errors.New("download interrupted")
	}
	for _, name := range f.started[jobID] {
		if f.noArtifact[name] {
			continue
		}
		body := fmt.Sprintf(`{"transcript":"text of %s"}`, name)
		if err := os.WriteFile(filepath.Join(outputDir, types.ArtifactName(name)), []byte(body), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeService) polled(jobID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls[jobID]
}

// fakeClock advances only when the code under test sleeps.
type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	sleeps []time.Duration
	onNap  func(n int)
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.sleeps = append(c.sleeps, d)
	n := len(c.sleeps)
	onNap := c.onNap
	c.mu.Unlock()
	if onNap != nil {
		onNap(n)
	}
	return ctx.Err()
}

type memStore struct {
	mu    sync.Mutex
	saves []types.Job
	last  map[int]types.Job
}

func newMemStore() *memStore {
	return &memStore{last: map[int]types.Job{}}
}

func (m *memStore) SaveJob(ctx context.Context, job types.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, job)
	m.last[job.ChunkIndex] = job
	return nil
}

func makeItems(n int) []types.WorkItem {
	items := make([]types.WorkItem, 0, n)
	for i := 1; i <= n; i++ {
		items = append(items, types.NewWorkItem(fmt.Sprintf("s%02d", i), fmt.Sprintf("/audio/f%02d.mp3", i)))
	}
	return items
}

func allExist(string) bool { return true }
