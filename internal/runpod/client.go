// Package runpod drives asynchronous qwen-image-edit jobs on a RunPod
// serverless endpoint: one submission, then a bounded status poll loop.
package runpod

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"retouch/internal/domain"
	"retouch/internal/infra"
)

// JobStatus is the lifecycle state reported by the status endpoint. The
// service is the sole authority; the client only reads it.
type JobStatus string

const (
	StatusQueued    JobStatus = "IN_QUEUE"
	StatusRunning   JobStatus = "IN_PROGRESS"
	StatusCompleted JobStatus = "COMPLETED"
	StatusFailed    JobStatus = "FAILED"
	StatusCanceled  JobStatus = "CANCELED"
)

// Terminal reports whether no further transitions can occur.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// DefaultSeed is the sentinel submitted when the user leaves the seed empty.
const DefaultSeed = -1

// ParseSeed maps a user-supplied seed string to the wire value: empty input
// becomes DefaultSeed, anything else must be a signed integer.
func ParseSeed(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultSeed, nil
	}
	seed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("runpod: invalid seed %q", raw)
	}
	return seed, nil
}

// JobRequest captures the inputs for one edit job. Built once per pipeline
// run and not mutated afterwards.
type JobRequest struct {
	Prompt         string
	NegativePrompt string
	Seed           int64
	ImageURL       string
}

// Options configures the RunPod client.
type Options struct {
	BaseURL       string
	HTTPClient    *http.Client
	Logger        *infra.Logger
	SubmitTimeout time.Duration
	StatusTimeout time.Duration
	PollInterval  time.Duration
	MaxPolls      int
}

// Client submits jobs and polls them to a terminal state.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	logger        *infra.Logger
	submitTimeout time.Duration
	statusTimeout time.Duration
	pollInterval  time.Duration
	maxPolls      int
}

// NewClient constructs a client with sane defaults and injected dependencies.
// Per-call timeouts are applied through request contexts, so the injected
// http.Client should not carry its own Timeout.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.runpod.ai/v2/qwen-image-edit"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	submitTimeout := opts.SubmitTimeout
	if submitTimeout <= 0 {
		submitTimeout = 60 * time.Second
	}
	statusTimeout := opts.StatusTimeout
	if statusTimeout <= 0 {
		statusTimeout = 10 * time.Second
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	maxPolls := opts.MaxPolls
	if maxPolls <= 0 {
		maxPolls = 100
	}
	return &Client{
		baseURL:       baseURL,
		httpClient:    httpClient,
		logger:        logger,
		submitTimeout: submitTimeout,
		statusTimeout: statusTimeout,
		pollInterval:  pollInterval,
		maxPolls:      maxPolls,
	}
}

type submitRequest struct {
	Input submitInput `json:"input"`
}

type submitInput struct {
	Prompt              string `json:"prompt"`
	NegativePrompt      string `json:"negative_prompt"`
	Seed                int64  `json:"seed"`
	Image               string `json:"image"`
	OutputFormat        string `json:"output_format"`
	EnableSafetyChecker bool   `json:"enable_safety_checker"`
}

type submitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type statusResponse struct {
	ID     string          `json:"id"`
	Status JobStatus       `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

// errTransientPoll marks a single failed poll attempt. The loop recovers it
// locally; it never escapes this package.
var errTransientPoll = errors.New("transient poll failure")

// Run submits the job and polls until a terminal status or the poll budget
// runs out, returning the edited image URL. The api key is per-call because
// users bring their own RunPod credentials.
func (c *Client) Run(ctx context.Context, job JobRequest, apiKey string) (string, error) {
	jobID, err := c.submit(ctx, job, apiKey)
	if err != nil {
		return "", err
	}
	c.logger.Info().Str("job_id", jobID).Msg("runpod: job submitted")
	return c.poll(ctx, jobID, apiKey)
}

func (c *Client) submit(ctx context.Context, job JobRequest, apiKey string) (string, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return "", fmt.Errorf("%w: runpod api key is required", domain.ErrConfiguration)
	}
	if strings.TrimSpace(job.Prompt) == "" {
		return "", errors.New("runpod: prompt is required")
	}
	if strings.TrimSpace(job.ImageURL) == "" {
		return "", errors.New("runpod: image url is required")
	}

	payload := submitRequest{Input: submitInput{
		Prompt:              job.Prompt,
		NegativePrompt:      job.NegativePrompt,
		Seed:                job.Seed,
		Image:               job.ImageURL,
		OutputFormat:        "png",
		EnableSafetyChecker: true,
	}}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("runpod: encode request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("runpod: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: runpod submit: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read submit response: %v", domain.ErrNetwork, err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: runpod returned status %d: %s",
			domain.ErrSubmission, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded submitResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("%w: decode submit response: %v", domain.ErrProtocol, err)
	}
	// An explicitly empty id is as unusable as a missing one.
	jobID := strings.TrimSpace(decoded.ID)
	if jobID == "" {
		return "", fmt.Errorf("%w: no job id in response: %s",
			domain.ErrSubmission, strings.TrimSpace(string(raw)))
	}
	return jobID, nil
}

// poll drives the status state machine. Each iteration costs one unit of the
// budget whether the status call succeeds or not, so the loop is bounded even
// under continuous transient failures.
func (c *Client) poll(ctx context.Context, jobID, apiKey string) (string, error) {
	for attempt := 1; attempt <= c.maxPolls; attempt++ {
		if err := sleep(ctx, c.pollInterval); err != nil {
			return "", err
		}

		st, err := c.status(ctx, jobID, apiKey)
		if err != nil {
			if errors.Is(err, errTransientPoll) {
				c.logger.Warn().
					Str("job_id", jobID).
					Int("attempt", attempt).
					Err(err).
					Msg("runpod: poll attempt failed, continuing")
				continue
			}
			return "", err
		}

		c.logger.Debug().
			Str("job_id", jobID).
			Str("status", string(st.Status)).
			Int("attempt", attempt).
			Msg("runpod: job status")

		switch {
		case st.Status == StatusCompleted:
			return resultURL(st)
		case st.Status.Terminal(): // FAILED or CANCELED
			if msg := strings.TrimSpace(st.Error); msg != "" {
				return "", fmt.Errorf("%w: %s", domain.ErrJobFailed, msg)
			}
			return "", fmt.Errorf("%w: job failed with status %s", domain.ErrJobFailed, st.Status)
		default:
			// IN_QUEUE, IN_PROGRESS, or anything unrecognized: only the
			// service can advance the job, so keep polling.
		}
	}
	return "", fmt.Errorf("%w: no terminal status after %d polls", domain.ErrTimeout, c.maxPolls)
}

func (c *Client) status(ctx context.Context, jobID, apiKey string) (*statusResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.statusTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, c.baseURL+"/status/"+jobID, nil)
	if err != nil {
		return nil, fmt.Errorf("runpod: build status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errTransientPoll, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errTransientPoll, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", errTransientPoll, resp.StatusCode)
	}

	var decoded statusResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: decode status response: %v", domain.ErrProtocol, err)
	}
	return &decoded, nil
}

// resultURL extracts output.result from a COMPLETED response. A completed job
// without it is a hard error, never a silent success.
func resultURL(st *statusResponse) (string, error) {
	if len(st.Output) == 0 {
		return "", fmt.Errorf("%w: completed without output", domain.ErrMalformedResult)
	}
	var out struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(st.Output, &out); err != nil {
		return "", fmt.Errorf("%w: unexpected output shape: %v", domain.ErrMalformedResult, err)
	}
	url := strings.TrimSpace(out.Result)
	if url == "" {
		return "", fmt.Errorf("%w: completed without result url", domain.ErrMalformedResult)
	}
	return url, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
