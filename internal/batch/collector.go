package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"survey-insights-go/internal/types"
)

// Collector downloads the outputs of a completed job and parses one artifact
// per submitted file.
type Collector struct {
	svc       Service
	outputDir string
	log       *logrus.Entry
}

func NewCollector(svc Service, outputDir string, log *logrus.Entry) *Collector {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Collector{svc: svc, outputDir: outputDir, log: log.WithField("component", "collector")}
}

// Collect returns one artifact per file of the job, in submission order. An
// error means the download itself failed and nothing was parsed.
func (c *Collector) Collect(ctx context.Context, job types.Job) ([]types.OutputArtifact, error) {
	if err := c.svc.DownloadOutputs(ctx, job.JobID, c.outputDir); err != nil {
		return nil, fmt.Errorf("download outputs of job %s: %w", job.JobID, err)
	}
	arts := ParseArtifacts(c.outputDir, job.Files)
	missing := 0
	for _, a := range arts {
		if a.Status != types.ArtifactOK {
			missing++
		}
	}
	c.log.WithFields(logrus.Fields{
		"chunk_index": job.ChunkIndex,
		"job_id":      job.JobID,
		"artifacts":   len(arts) - missing,
		"unusable":    missing,
	}).Info("outputs collected")
	return arts, nil
}

// ParseArtifacts reads <file_name>.json from dir for every file name.
func ParseArtifacts(dir string, fileNames []string) []types.OutputArtifact {
	out := make([]types.OutputArtifact, 0, len(fileNames))
	for _, name := range fileNames {
		out = append(out, parseArtifact(dir, name))
	}
	return out
}

func parseArtifact(dir, fileName string) types.OutputArtifact {
	a := types.OutputArtifact{FileName: fileName}
	data, err := os.ReadFile(filepath.Join(dir, types.ArtifactName(fileName)))
	if errors.Is(err, fs.ErrNotExist) {
		a.Status = types.ArtifactMissing
		a.Err = "no output artifact"
		return a
	}
	if err != nil {
		a.Status = types.ArtifactParse
		a.Err = err.Error()
		return a
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		a.Status = types.ArtifactParse
		a.Err = fmt.Sprintf("invalid json: %v", err)
		return a
	}
	raw, ok := doc["transcript"]
	if !ok {
		a.Status = types.ArtifactParse
		a.Err = "artifact has no transcript field"
		return a
	}
	var text *string
	if err := json.Unmarshal(raw, &text); err != nil || text == nil {
		a.Status = types.ArtifactParse
		a.Err = "transcript is not a string"
		return a
	}
	a.Status = types.ArtifactOK
	a.Transcript = text
	return a
}
