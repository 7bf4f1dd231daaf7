package transcription

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"survey-insights-go/internal/types"
)

type jobParameters struct {
	Model        string `json:"model,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	Mode         string `json:"mode,omitempty"`
}

type createJobResponse struct {
	JobID    string `json:"job_id"`
	JobState string `json:"job_state"`
}

type fileURL struct {
	FileURL string `json:"file_url"`
}

type uploadLinksResponse struct {
	JobID      string             `json:"job_id"`
	UploadURLs map[string]fileURL `json:"upload_urls"`
}

type downloadLinksResponse struct {
	JobID        string             `json:"job_id"`
	DownloadURLs map[string]fileURL `json:"download_urls"`
}

type fileRef struct {
	FileName string `json:"file_name"`
}

type jobDetail struct {
	Inputs       []fileRef `json:"inputs"`
	Outputs      []fileRef `json:"outputs"`
	State        string    `json:"state"`
	ErrorMessage string    `json:"error_message"`
}

type statusResponse struct {
	JobID        string      `json:"job_id"`
	JobState     string      `json:"job_state"`
	ErrorMessage string      `json:"error_message"`
	JobDetails   []jobDetail `json:"job_details"`
}

type transcribeResponse struct {
	RequestID  string `json:"request_id"`
	Transcript string `json:"transcript"`
}

// CreateJob creates an empty batch job and returns its id.
func (c *Client) CreateJob(ctx context.Context, cfg types.JobConfig) (string, error) {
	body := map[string]any{
		"job_parameters": jobParameters{Model: cfg.Model, LanguageCode: cfg.LanguageCode, Mode: cfg.Mode},
	}
	var resp createJobResponse
	err := c.doJSON(ctx, request{
		op:     "create job",
		method: http.MethodPost,
		url:    c.endpoint("speech-to-text", "job", "v1"),
		auth:   true,
		body:   jsonBody(body),
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", errors.New("create job: empty job_id in response")
	}
	return resp.JobID, nil
}

// UploadFiles asks for presigned upload links and PUTs every file to its link.
func (c *Client) UploadFiles(ctx context.Context, jobID string, paths []string) error {
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	var links uploadLinksResponse
	err := c.doJSON(ctx, request{
		op:     "upload links",
		method: http.MethodPost,
		url:    c.endpoint("speech-to-text", "job", "v1", "upload-files"),
		auth:   true,
		body:   jsonBody(map[string]any{"job_id": jobID, "files": names}),
	}, &links)
	if err != nil {
		return err
	}

	for _, p := range paths {
		name := filepath.Base(p)
		link, ok := links.UploadURLs[name]
		if !ok || link.FileURL == "" {
			return fmt.Errorf("upload: no upload url for %s", name)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("upload: read %s: %w", p, err)
		}
		_, err = c.do(ctx, request{
			op:     "upload " + name,
			method: http.MethodPut,
			url:    link.FileURL,
			header: map[string]string{"x-ms-blob-type": "BlockBlob"},
			body: func() (io.Reader, string, error) {
				return bytes.NewReader(data), "application/octet-stream", nil
			},
		})
		if err != nil {
			return err
		}
		c.log.WithField("job_id", jobID).WithField("file", name).Debug("uploaded")
	}
	return nil
}

// StartJob starts processing of exactly the named, already uploaded files.
func (c *Client) StartJob(ctx context.Context, jobID string, fileNames []string) error {
	_, err := c.do(ctx, request{
		op:     "start job",
		method: http.MethodPost,
		url:    c.endpoint("speech-to-text", "job", "v1", url.PathEscape(jobID), "start"),
		auth:   true,
		body:   jsonBody(map[string]any{"files": fileNames}),
	})
	return err
}

func (c *Client) GetStatus(ctx context.Context, jobID string) (types.RemoteStatus, error) {
	var resp statusResponse
	err := c.doJSON(ctx, request{
		op:     "job status",
		method: http.MethodGet,
		url:    c.endpoint("speech-to-text", "job", "v1", url.PathEscape(jobID), "status"),
		auth:   true,
	}, &resp)
	if err != nil {
		return types.RemoteStatus{}, err
	}
	st := types.RemoteStatus{
		State:   parseRemoteState(resp.JobState),
		Message: resp.ErrorMessage,
	}
	for _, d := range resp.JobDetails {
		if len(d.Inputs) == 0 {
			continue
		}
		fd := types.FileDetail{
			Input:   d.Inputs[0].FileName,
			State:   d.State,
			Message: d.ErrorMessage,
		}
		if len(d.Outputs) > 0 {
			fd.Output = d.Outputs[0].FileName
		}
		st.Files = append(st.Files, fd)
	}
	return st, nil
}

// DownloadOutputs fetches every output the service declared for the job and
// stores it under outputDir as <input file name>.json, whatever name the
// service gave it.
func (c *Client) DownloadOutputs(ctx context.Context, jobID, outputDir string) error {
	st, err := c.GetStatus(ctx, jobID)
	if err != nil {
		return err
	}
	inputFor := map[string]string{}
	var outputs []string
	for _, f := range st.Files {
		if f.Output == "" {
			continue
		}
		inputFor[f.Output] = f.Input
		outputs = append(outputs, f.Output)
	}
	if len(outputs) == 0 {
		c.log.WithField("job_id", jobID).Warn("job declared no outputs")
		return nil
	}

	var links downloadLinksResponse
	err = c.doJSON(ctx, request{
		op:     "download links",
		method: http.MethodPost,
		url:    c.endpoint("speech-to-text", "job", "v1", "download-files"),
		auth:   true,
		body:   jsonBody(map[string]any{"job_id": jobID, "files": outputs}),
	}, &links)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	for _, out := range outputs {
		link, ok := links.DownloadURLs[out]
		if !ok || link.FileURL == "" {
			c.log.WithField("job_id", jobID).WithField("output", out).Warn("no download url for output")
			continue
		}
		data, err := c.do(ctx, request{
			op:     "download " + out,
			method: http.MethodGet,
			url:    link.FileURL,
		})
		if err != nil {
			return err
		}
		if err := writeAtomic(filepath.Join(outputDir, types.ArtifactName(inputFor[out])), data); err != nil {
			return err
		}
	}
	return nil
}

// Transcribe sends one file to the synchronous speech-to-text endpoint.
func (c *Client) Transcribe(ctx context.Context, path string, cfg types.JobConfig) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("transcribe: read %s: %w", path, err)
	}
	name := filepath.Base(path)
	body := func() (io.Reader, string, error) {
		var b bytes.Buffer
		w := multipart.NewWriter(&b)
		fw, err := w.CreateFormFile("file", name)
		if err != nil {
			return nil, "", err
		}
		if _, err := fw.Write(data); err != nil {
			return nil, "", err
		}
		_ = w.WriteField("model", cfg.Model)
		_ = w.WriteField("language_code", cfg.LanguageCode)
		_ = w.WriteField("mode", cfg.Mode)
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return &b, w.FormDataContentType(), nil
	}
	var resp transcribeResponse
	err = c.doJSON(ctx, request{
		op:     "transcribe",
		method: http.MethodPost,
		url:    c.endpoint("speech-to-text"),
		auth:   true,
		body:   body,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Transcript, nil
}

func parseRemoteState(s string) types.RemoteState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "completed", "success", "succeeded":
		return types.RemoteCompleted
	case "failed", "error":
		return types.RemoteFailed
	case "accepted", "pending", "queued", "":
		return types.RemotePending
	default:
		return types.RemoteRunning
	}
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
