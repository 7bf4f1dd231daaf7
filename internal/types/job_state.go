package types

type JobState string

const (
	JobCreated          JobState = "Created"
	JobUploaded         JobState = "Uploaded"
	JobStarted          JobState = "Started"
	JobCompleted        JobState = "Completed"
	JobFailed           JobState = "Failed"
	JobSubmissionFailed JobState = "SubmissionFailed"
	JobAbandoned        JobState = "Abandoned"
)

// Terminal reports whether no further transition can leave the state.
func (s JobState) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobSubmissionFailed, JobAbandoned:
		return true
	default:
		return false
	}
}

// JobConfig is passed through to the remote service when a job is created.
type JobConfig struct {
	Model        string `json:"model"`
	LanguageCode string `json:"language_code"`
	Mode         string `json:"mode"`
}

// RemoteState is the job state as reported by the transcription service.
type RemoteState string

const (
	RemotePending   RemoteState = "Pending"
	RemoteRunning   RemoteState = "Running"
	RemoteCompleted RemoteState = "Completed"
	RemoteFailed    RemoteState = "Failed"
)

func (s RemoteState) Terminal() bool {
	return s == RemoteCompleted || s == RemoteFailed
}

// FileDetail maps one submitted input to the output the service produced for it.
type FileDetail struct {
	Input   string `json:"input"`
	Output  string `json:"output,omitempty"`
	State   string `json:"state,omitempty"`
	Message string `json:"message,omitempty"`
}

type RemoteStatus struct {
	State   RemoteState  `json:"job_state"`
	Message string       `json:"message,omitempty"`
	Files   []FileDetail `json:"files,omitempty"`
}
