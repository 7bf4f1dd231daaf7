package aggregator

import "survey-insights-go/internal/types"

type outcome struct {
	failure  types.RecordStatus
	detail   string
	artifact *types.OutputArtifact
}

// Outcomes is the per-file ledger the pipeline stages report into. The first
// failure recorded for a file sticks; an artifact result overrides any
// failure. Not safe for concurrent use.
type Outcomes struct {
	byFile map[string]*outcome
}

func NewOutcomes() *Outcomes {
	return &Outcomes{byFile: map[string]*outcome{}}
}

func (o *Outcomes) get(fileName string) *outcome {
	oc, ok := o.byFile[fileName]
	if !ok {
		oc = &outcome{}
		o.byFile[fileName] = oc
	}
	return oc
}

// Fail records a failure status unless an earlier one exists.
func (o *Outcomes) Fail(fileName string, status types.RecordStatus, detail string) {
	oc := o.get(fileName)
	if oc.failure != "" {
		return
	}
	oc.failure = status
	oc.detail = detail
}

// FailAll records the same failure for every item.
func (o *Outcomes) FailAll(items []types.WorkItem, status types.RecordStatus, detail string) {
	for _, it := range items {
		o.Fail(it.FileName, status, detail)
	}
}

// Artifact records the definitive result parsed from an output artifact.
func (o *Outcomes) Artifact(a types.OutputArtifact) {
	cp := a
	o.get(a.FileName).artifact = &cp
}

// Succeed records a transcript obtained outside the batch path.
func (o *Outcomes) Succeed(fileName, transcript string) {
	o.Artifact(types.OutputArtifact{
		FileName:   fileName,
		Transcript: &transcript,
		Status:     types.ArtifactOK,
	})
}

// Len returns the number of files with at least one recorded outcome.
func (o *Outcomes) Len() int {
	return len(o.byFile)
}

// Resolve returns the status, transcript and detail for one file.
func (o *Outcomes) Resolve(fileName string) (types.RecordStatus, string, string) {
	oc, ok := o.byFile[fileName]
	if !ok {
		return types.StatusPending, "", ""
	}
	if a := oc.artifact; a != nil {
		switch a.Status {
		case types.ArtifactOK:
			text := ""
			if a.Transcript != nil {
				text = *a.Transcript
			}
			return types.StatusOK, text, ""
		case types.ArtifactMissing:
			return types.StatusOutputMissing, "", a.Err
		default:
			return types.StatusReadError, "", a.Err
		}
	}
	if oc.failure != "" {
		return oc.failure, "", oc.detail
	}
	return types.StatusPending, "", ""
}

// Aggregate walks the catalog in order and emits exactly one record per item.
func Aggregate(catalog []types.WorkItem, outcomes *Outcomes) []types.AggregatedRecord {
	if outcomes == nil {
		outcomes = NewOutcomes()
	}
	out := make([]types.AggregatedRecord, 0, len(catalog))
	for _, it := range catalog {
		status, text, detail := outcomes.Resolve(it.FileName)
		out = append(out, types.AggregatedRecord{
			SampleID:   it.SampleID,
			FileName:   it.FileName,
			FilePath:   it.FilePath,
			Transcript: text,
			Status:     status,
			Detail:     detail,
			Extra:      it.Extra,
		})
	}
	return out
}
