// Package inference implements the HTTP client for the external asynchronous
// image-generation API.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pixelforge/imagesvc/internal/generation"
)

const maxErrorBodyBytes = 4 * 1024

// Config captures the parameters required to reach the inference API.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client submits generation jobs and queries their status.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *zap.Logger
}

// New creates a Client. The base URL is required; the per-call timeout
// defaults to 30s.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("inference base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		logger:     logger,
	}, nil
}

type submitInput struct {
	Prompt string `json:"prompt"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type submitRequest struct {
	Input submitInput `json:"input"`
}

type submitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// SubmitJob posts the generation payload to the run endpoint and returns the
// issued job id. An empty id is returned as-is; the poller treats it as a
// submission failure.
func (c *Client) SubmitJob(ctx context.Context, req generation.Request) (string, error) {
	body, err := json.Marshal(submitRequest{
		Input: submitInput{
			Prompt: req.Prompt,
			Width:  req.Width,
			Height: req.Height,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal submission: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build submission request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("submit job: %w", err)
	}
	defer c.closeBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("submit returned status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode submission response: %w", err)
	}
	return out.ID, nil
}

// JobStatus queries the status endpoint for the given job id.
func (c *Client) JobStatus(ctx context.Context, jobID string) (generation.JobState, error) {
	endpoint := c.baseURL + "/status/" + url.PathEscape(jobID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return generation.JobState{}, fmt.Errorf("build status request: %w", err)
	}
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return generation.JobState{}, fmt.Errorf("job status: %w", err)
	}
	defer c.closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return generation.JobState{}, fmt.Errorf("status returned %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var state generation.JobState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return generation.JobState{}, fmt.Errorf("decode status response: %w", err)
	}
	state.Status = generation.JobStatus(strings.ToUpper(string(state.Status)))
	return state, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		c.logger.Warn("close response body", zap.Error(err))
	}
}

func readErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBodyBytes))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
