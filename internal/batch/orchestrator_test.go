package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"survey-insights-go/internal/types"
)

type harness struct {
	svc   *fakeService
	clock *fakeClock
	store *memStore
	hook  *test.Hook
	opts  Options
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	_, hook := test.NewNullLogger()
	return &harness{
		svc:   newFakeService(),
		clock: newFakeClock(),
		store: newMemStore(),
		hook:  hook,
		opts: Options{
			RunID:        "run-test",
			MaxChunkSize: 20,
			PollInterval: 10 * time.Second,
			SubmitPause:  time.Second,
			OutputDir:    filepath.Join(t.TempDir(), "outputs"),
			Job:          types.JobConfig{Model: "saaras:v3", LanguageCode: "te-IN", Mode: "transcribe"},
		},
	}
}

func (h *harness) orchestrator(exists func(string) bool) *Orchestrator {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	h.hook = hook
	return New(h.svc, h.opts,
		WithStore(h.store),
		WithLogger(log.WithField("test", true)),
		WithFileExists(exists),
		WithSleep(h.clock.Sleep),
		WithClock(h.clock.Now),
	)
}

func statuses(records []types.AggregatedRecord) map[types.RecordStatus]int {
	out := map[types.RecordStatus]int{}
	for _, r := range records {
		out[r.Status]++
	}
	return out
}

func TestRun_AllSucceed(t *testing.T) {
	h := newHarness(t)
	catalog := makeItems(45)

	records, err := h.orchestrator(allExist).Run(context.Background(), catalog)
	require.NoError(t, err)
	require.Len(t, records, 45)
	for i, r := range records {
		assert.Equal(t, catalog[i].SampleID, r.SampleID)
		assert.Equal(t, types.StatusOK, r.Status)
		assert.Equal(t, "text of "+catalog[i].FileName, r.Transcript)
	}
	assert.Equal(t, 3, h.svc.created)
	assert.Len(t, h.svc.started["job-3"], 5)
	for i := 0; i < 3; i++ {
		assert.Equal(t, types.JobCompleted, h.store.last[i].State)
	}
}

func TestRun_StartFailureFailsWholeChunk(t *testing.T) {
	h := newHarness(t)
	h.svc.failStart[2] = true
	catalog := makeItems(45)

	records, err := h.orchestrator(allExist).Run(context.Background(), catalog)
	require.NoError(t, err)
	require.Len(t, records, 45)

	for i, r := range records {
		if i >= 20 && i < 40 {
			assert.Equal(t, types.StatusSubmissionFailed, r.Status, r.FileName)
			assert.Contains(t, r.Detail, "start")
		} else {
			assert.Equal(t, types.StatusOK, r.Status, r.FileName)
		}
	}
	assert.Equal(t, 0, h.svc.polled("job-2"), "a job that never started is never polled")
	assert.Equal(t, types.JobSubmissionFailed, h.store.last[1].State)
	assert.Equal(t, "job-2", h.store.last[1].JobID)
}

func TestRun_CreateAndUploadFailures(t *testing.T) {
	h := newHarness(t)
	h.opts.MaxChunkSize = 2
	h.svc.failCreate[1] = true
	h.svc.failUpload[2] = true

	records, err := h.orchestrator(allExist).Run(context.Background(), makeItems(6))
	require.NoError(t, err)
	assert.Equal(t, map[types.RecordStatus]int{
		types.StatusSubmissionFailed: 4,
		types.StatusOK:               2,
	}, statuses(records))
	assert.Contains(t, records[0].Detail, "create")
	assert.Contains(t, records[2].Detail, "upload")
	assert.Equal(t, "", h.store.last[0].JobID)
}

func TestRun_MissingArtifacts(t *testing.T) {
	h := newHarness(t)
	h.svc.noArtifact["f03.mp3"] = true
	h.svc.noArtifact["f17.mp3"] = true

	records, err := h.orchestrator(allExist).Run(context.Background(), makeItems(20))
	require.NoError(t, err)
	assert.Equal(t, map[types.RecordStatus]int{
		types.StatusOK:            18,
		types.StatusOutputMissing: 2,
	}, statuses(records))
	assert.Equal(t, types.StatusOutputMissing, records[2].Status)
	assert.Equal(t, types.StatusOutputMissing, records[16].Status)
}

func TestRun_RemoteJobFailure(t *testing.T) {
	h := newHarness(t)
	h.opts.MaxChunkSize = 3
	h.svc.remoteFail["job-1"] = "audio decode error"

	records, err := h.orchestrator(allExist).Run(context.Background(), makeItems(5))
	require.NoError(t, err)
	for _, r := range records[:3] {
		assert.Equal(t, types.StatusJobFailed, r.Status)
		assert.Equal(t, "audio decode error", r.Detail)
	}
	for _, r := range records[3:] {
		assert.Equal(t, types.StatusOK, r.Status)
	}
	assert.Equal(t, types.JobFailed, h.store.last[0].State)
}

func TestRun_MissingFilesAreNotSubmitted(t *testing.T) {
	h := newHarness(t)
	exists := func(p string) bool { return p != "/audio/f02.mp3" }

	records, err := h.orchestrator(exists).Run(context.Background(), makeItems(3))
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, types.StatusFileMissing, records[1].Status)
	assert.Equal(t, []string{"/audio/f01.mp3", "/audio/f03.mp3"}, h.svc.uploaded["job-1"])
}

func TestRun_PollsUntilTerminal(t *testing.T) {
	h := newHarness(t)
	h.opts.MaxChunkSize = 2
	h.svc.running = 2

	records, err := h.orchestrator(allExist).Run(context.Background(), makeItems(4))
	require.NoError(t, err)
	assert.Equal(t, 4, statuses(records)[types.StatusOK])

	assert.Equal(t, 3, h.svc.polled("job-1"))
	assert.Equal(t, 3, h.svc.polled("job-2"))
	// one submit pause, then two poll intervals
	assert.Equal(t, []time.Duration{time.Second, 10 * time.Second, 10 * time.Second}, h.clock.sleeps)
}

func TestRun_DownloadErrorIsRetriedNextSweep(t *testing.T) {
	h := newHarness(t)
	h.svc.downloadErr = 1

	records, err := h.orchestrator(allExist).Run(context.Background(), makeItems(2))
	require.NoError(t, err)
	assert.Equal(t, 2, statuses(records)[types.StatusOK])
	assert.Equal(t, 2, h.svc.downloads)
	assert.Equal(t, 2, h.svc.polled("job-1"))
}

func TestRun_PollTimeoutAbandonsJobs(t *testing.T) {
	h := newHarness(t)
	h.opts.PollTimeout = 30 * time.Second
	h.svc.running = 1000

	records, err := h.orchestrator(allExist).Run(context.Background(), makeItems(3))
	require.NoError(t, err)
	for _, r := range records {
		assert.Equal(t, types.StatusAbandoned, r.Status)
	}
	assert.Equal(t, types.JobAbandoned, h.store.last[0].State)
	assert.Equal(t, 4, h.svc.polled("job-1"))
}

func TestRun_DuplicateFileNames(t *testing.T) {
	h := newHarness(t)
	catalog := []types.WorkItem{
		types.NewWorkItem("a", "/one/x.mp3"),
		types.NewWorkItem("b", "/two/x.mp3"),
	}

	records, err := h.orchestrator(allExist).Run(context.Background(), catalog)
	require.ErrorIs(t, err, ErrDuplicateFileName)
	assert.Nil(t, records)
	assert.Equal(t, 0, h.svc.created)
}

func TestRun_CancelLeavesStartedJobsPending(t *testing.T) {
	h := newHarness(t)
	h.svc.running = 1000
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.clock.onNap = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	h.opts.MaxChunkSize = 2

	records, err := h.orchestrator(allExist).Run(ctx, makeItems(4))
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, records, 4)
	for _, r := range records {
		assert.Equal(t, types.StatusPending, r.Status)
	}
	assert.Equal(t, types.JobStarted, h.store.last[0].State)
	assert.Equal(t, types.JobStarted, h.store.last[1].State)
}

func TestRun_EmptyCatalog(t *testing.T) {
	h := newHarness(t)
	records, err := h.orchestrator(allExist).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 0, h.svc.created)
}

func TestCollectFromDisk_AgreesWithRun(t *testing.T) {
	h := newHarness(t)
	h.svc.failStart[1] = true
	h.opts.MaxChunkSize = 2
	o := h.orchestrator(allExist)
	catalog := makeItems(4)

	first, err := o.Run(context.Background(), catalog)
	require.NoError(t, err)
	again := CollectFromDisk(catalog, h.opts.OutputDir, allExist)
	assert.Equal(t, first[2:], again[2:])
}

func TestResume(t *testing.T) {
	h := newHarness(t)
	h.opts.MaxChunkSize = 2
	require.NoError(t, os.MkdirAll(h.opts.OutputDir, 0o755))
	catalog := makeItems(8)

	// chunk 0 completed in the previous process, artifacts already on disk
	require.NoError(t, os.WriteFile(filepath.Join(h.opts.OutputDir, "f01.mp3.json"), []byte(`{"transcript":"one"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(h.opts.OutputDir, "f02.mp3.json"), []byte(`{"transcript":"two"}`), 0o644))
	// chunk 1 was still running remotely
	h.svc.started["old-1"] = []string{"f03.mp3", "f04.mp3"}

	chunk := func(idx int, items []types.WorkItem) types.Chunk { return types.Chunk{Index: idx, Items: items} }
	jobs := []types.Job{
		{ChunkIndex: 2, JobID: "old-2", State: types.JobUploaded, Files: chunk(2, catalog[4:6]).FileNames(), Items: catalog[4:6]},
		{ChunkIndex: 0, JobID: "old-0", State: types.JobCompleted, Files: chunk(0, catalog[0:2]).FileNames(), Items: catalog[0:2]},
		{ChunkIndex: 1, JobID: "old-1", State: types.JobStarted, Files: chunk(1, catalog[2:4]).FileNames(), Items: catalog[2:4]},
	}

	records, err := h.orchestrator(allExist).Resume(context.Background(), catalog, jobs)
	require.NoError(t, err)
	require.Len(t, records, 8)

	assert.Equal(t, "one", records[0].Transcript)
	assert.Equal(t, types.StatusOK, records[1].Status)
	assert.Equal(t, "text of f03.mp3", records[2].Transcript)
	assert.Equal(t, types.StatusSubmissionFailed, records[4].Status)
	assert.Equal(t, types.StatusSubmissionFailed, records[5].Status)
	assert.Equal(t, types.StatusOK, records[6].Status)
	assert.Equal(t, types.StatusOK, records[7].Status)

	assert.Equal(t, 0, h.svc.polled("old-0"), "completed jobs are not polled again")
	assert.Equal(t, []string{"f07.mp3", "f08.mp3"}, h.svc.started["job-1"])
	assert.Equal(t, types.JobCompleted, h.store.last[3].State, "new chunks continue the index sequence")
	assert.Equal(t, types.JobSubmissionFailed, h.store.last[2].State)
	assert.Equal(t, types.JobCompleted, h.store.last[1].State)
}

func TestCollectFromDisk(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f01.mp3.json"), []byte(`{"transcript":"one"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f02.mp3.json"), []byte(`not json`), 0o644))
	exists := func(p string) bool { return p != "/audio/f04.mp3" }

	records := CollectFromDisk(makeItems(4), dir, exists)
	require.Len(t, records, 4)
	assert.Equal(t, types.StatusOK, records[0].Status)
	assert.Equal(t, types.StatusReadError, records[1].Status)
	assert.Equal(t, types.StatusPending, records[2].Status)
	assert.Equal(t, types.StatusFileMissing, records[3].Status)
}

func TestValidateCatalog(t *testing.T) {
	assert.NoError(t, ValidateCatalog(makeItems(3)))
	err := ValidateCatalog(append(makeItems(2), types.NewWorkItem("dup", "/elsewhere/f01.mp3")))
	assert.True(t, errors.Is(err, ErrDuplicateFileName))
}
