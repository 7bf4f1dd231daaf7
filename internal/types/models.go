package types

import (
	"path/filepath"
	"time"
)

// WorkItem is one audio file of the Work Catalog. FileName is the join key
// used to reconcile results and must be unique within a run.
type WorkItem struct {
	SampleID string            `json:"sample_id"`
	FilePath string            `json:"file_path"`
	FileName string            `json:"file_name"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// NewWorkItem derives FileName from the path.
func NewWorkItem(sampleID, path string) WorkItem {
	return WorkItem{
		SampleID: sampleID,
		FilePath: path,
		FileName: filepath.Base(path),
	}
}

type Chunk struct {
	Index int        `json:"chunk_index"`
	Items []WorkItem `json:"items"`
}

// FileNames returns the base names of the chunk's items in order.
func (c Chunk) FileNames() []string {
	out := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		out = append(out, it.FileName)
	}
	return out
}

// FilePaths returns the on-disk paths of the chunk's items in order.
func (c Chunk) FilePaths() []string {
	out := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		out = append(out, it.FilePath)
	}
	return out
}

// Job is one remote batch job created for a chunk.
type Job struct {
	RunID      string     `json:"run_id"`
	ChunkIndex int        `json:"chunk_index"`
	JobID      string     `json:"job_id"`
	State      JobState   `json:"state"`
	Files      []string   `json:"files"`
	Items      []WorkItem `json:"items"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type ArtifactStatus string

const (
	ArtifactOK      ArtifactStatus = "Ok"
	ArtifactMissing ArtifactStatus = "MissingArtifact"
	ArtifactParse   ArtifactStatus = "ParseError"
)

// OutputArtifact is the parsed per-file result of a completed job.
type OutputArtifact struct {
	FileName   string         `json:"file_name"`
	Transcript *string        `json:"transcript"`
	Status     ArtifactStatus `json:"status"`
	Err        string         `json:"error,omitempty"`
}

type RecordStatus string

const (
	StatusOK                  RecordStatus = "OK"
	StatusFileMissing         RecordStatus = "FILE_MISSING"
	StatusSubmissionFailed    RecordStatus = "SUBMISSION_FAILED"
	StatusJobFailed           RecordStatus = "JOB_FAILED"
	StatusOutputMissing       RecordStatus = "OUTPUT_MISSING"
	StatusReadError           RecordStatus = "READ_ERROR"
	StatusAbandoned           RecordStatus = "ABANDONED"
	StatusPending             RecordStatus = "PENDING"
	StatusTranscriptionFailed RecordStatus = "TRANSCRIPTION_FAILED"
)

// AggregatedRecord is the final per-sample row of the output dataset.
type AggregatedRecord struct {
	SampleID   string            `json:"sample_id"`
	FileName   string            `json:"file_name"`
	FilePath   string            `json:"file_path"`
	Transcript string            `json:"transcript"`
	Status     RecordStatus      `json:"status"`
	Detail     string            `json:"detail,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// ArtifactName is the canonical on-disk name of the output artifact for an
// input file.
func ArtifactName(fileName string) string {
	return fileName + ".json"
}
