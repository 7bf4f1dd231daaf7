package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const apiKeyHeader = "api-subscription-key"

// StatusError is a non-2xx answer from the service.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Code, strings.TrimSpace(e.Body))
}

// Client talks to the Sarvam speech-to-text REST API.
type Client struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	maxRetryTime time.Duration
	log          *logrus.Entry
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxRetryTime bounds the exponential backoff applied to every request.
func WithMaxRetryTime(d time.Duration) Option {
	return func(c *Client) { c.maxRetryTime = d }
}

func WithLogger(log *logrus.Entry) Option {
	return func(c *Client) { c.log = log }
}

func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		maxRetryTime: 30 * time.Second,
		log:          logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.WithField("module", "transcription")
	return c
}

// request describes one HTTP call. body is rebuilt for every attempt.
type request struct {
	op     string
	method string
	url    string
	auth   bool
	header map[string]string
	body   func() (io.Reader, string, error)
}

func jsonBody(v any) func() (io.Reader, string, error) {
	return func() (io.Reader, string, error) {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

// do runs the request with backoff. 5xx, 429 and transport errors are
// retried; other non-2xx answers fail immediately.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	var out []byte
	op := func() error {
		var (
			body        io.Reader
			contentType string
			err         error
		)
		if r.body != nil {
			body, contentType, err = r.body()
			if err != nil {
				return backoff.Permanent(fmt.Errorf("%s: build body: %w", r.op, err))
			}
		}
		req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%s: %w", r.op, err))
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if r.auth {
			req.Header.Set(apiKeyHeader, c.apiKey)
		}
		for k, v := range r.header {
			req.Header.Set(k, v)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.log.WithError(err).WithField("op", r.op).Warn("request failed")
			return fmt.Errorf("%s: %w", r.op, err)
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%s: read body: %w", r.op, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			serr := &StatusError{Op: r.op, Code: resp.StatusCode, Body: string(data)}
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				c.log.WithField("op", r.op).WithField("http_status", resp.StatusCode).Warn("retryable status")
				return serr
			}
			return backoff.Permanent(serr)
		}
		out = data
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.maxRetryTime
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) doJSON(ctx context.Context, r request, target any) error {
	data, err := c.do(ctx, r)
	if err != nil {
		return err
	}
	if target == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%s: json decode error: %v body=%s", r.op, err, string(data))
	}
	return nil
}

func (c *Client) endpoint(parts ...string) string {
	return c.baseURL + "/" + strings.Join(parts, "/")
}
