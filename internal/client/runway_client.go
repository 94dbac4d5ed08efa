package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/makeasinger/motionvault/internal/config"
	"github.com/makeasinger/motionvault/internal/logger"
	"github.com/makeasinger/motionvault/internal/model"
)

// ErrJobNotFound is returned when the generation API does not know a job.
var ErrJobNotFound = errors.New("job not found")

// VideoGenerator defines the interface for external video generation jobs
type VideoGenerator interface {
	Submit(ctx context.Context, req *model.JobRequest) (string, error)
	GetStatus(ctx context.Context, jobID string) (*model.JobReport, error)
	Cancel(ctx context.Context, jobID string) error
}

// APIError is a non-2xx answer from the generation API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("runway API error (status %d): %s", e.StatusCode, e.Body)
}

// RunwayClient implements VideoGenerator for the Runway jobs API
type RunwayClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	version    string
	log        *logger.Logger
}

// NewRunwayClient creates a new Runway API client
func NewRunwayClient(cfg *config.RunwayConfig, log *logger.Logger) *RunwayClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &RunwayClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		version:    cfg.Version,
		log:        log.With("client", "runway"),
	}
}

// Submit starts a generation job and returns its external id
func (c *RunwayClient) Submit(ctx context.Context, req *model.JobRequest) (string, error) {
	var result model.JobAccepted
	if err := c.do(ctx, http.MethodPost, "/jobs", req, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", fmt.Errorf("runway API accepted job without an id")
	}
	return result.ID, nil
}

// GetStatus retrieves the current state of a job
func (c *RunwayClient) GetStatus(ctx context.Context, jobID string) (*model.JobReport, error) {
	var result model.JobReport
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(jobID), nil, &result); err != nil {
		if isNotFound(err) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &result, nil
}

// Cancel asks the API to stop a job. A job the API no longer knows is
// reported as ErrJobNotFound.
func (c *RunwayClient) Cancel(ctx context.Context, jobID string) error {
	err := c.do(ctx, http.MethodDelete, "/jobs/"+url.PathEscape(jobID), nil, nil)
	if isNotFound(err) {
		return ErrJobNotFound
	}
	return err
}

// IsConfigured returns true if the client has valid configuration
func (c *RunwayClient) IsConfigured() bool {
	return c.baseURL != ""
}

// do sends a request with an optional JSON body and decodes the JSON response into result
func (c *RunwayClient) do(ctx context.Context, method, endpoint string, body interface{}, result interface{}) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.version != "" {
		req.Header.Set("X-Runway-Version", c.version)
	}

	c.log.Debug("request", "method", method, "url", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("request failed", "method", method, "url", req.URL.String(), "error", err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.log.Debug("response", "method", method, "url", req.URL.String(), "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if result == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

func isNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
