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
	"time"

	"github.com/rs/zerolog"

	"github.com/influencerlab/api/internal/config"
	"github.com/influencerlab/api/internal/model"
)

// maxLoggedBody caps how much of a response body is written to debug logs.
const maxLoggedBody = 512

// ComputeAPI is the set of calls the orchestrator makes against the GPU
// compute backend.
type ComputeAPI interface {
	SubmitWorkflow(ctx context.Context, workflow any, clientID string) (*SubmitResponse, error)
	GetHistory(ctx context.Context, promptID string) (History, error)
	ViewURL(filename, subfolder, folderType string) string
	Download(ctx context.Context, rawURL string) (io.ReadCloser, error)
	SystemStats(ctx context.Context) (*SystemStats, error)
}

// ComputeClient implements ComputeAPI over the backend's HTTP API.
type ComputeClient struct {
	httpClient     *http.Client
	downloadClient *http.Client
	baseURL        string
	logger         zerolog.Logger
}

// APIError is returned for any non-2xx backend response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("compute API error (status %d): %s", e.StatusCode, e.Body)
}

// SubmitRequest is the envelope posted to /prompt.
type SubmitRequest struct {
	Prompt   any    `json:"prompt"`
	ClientID string `json:"client_id"`
}

// SubmitResponse is the backend's reply to a queued workflow.
type SubmitResponse struct {
	PromptID   string                     `json:"prompt_id"`
	Number     int                        `json:"number"`
	NodeErrors map[string]json.RawMessage `json:"node_errors,omitempty"`
}

// History maps prompt id to its execution record. A job that has not been
// indexed yet is simply absent.
type History map[string]HistoryEntry

// HistoryEntry is one job's execution record.
type HistoryEntry struct {
	Status  *HistoryStatus              `json:"status,omitempty"`
	Outputs map[string]model.NodeOutput `json:"outputs,omitempty"`
}

// HistoryStatus is the status block of a history entry. Messages are either
// plain strings or [event, payload] pairs depending on backend version.
type HistoryStatus struct {
	StatusStr string            `json:"status_str"`
	Completed bool              `json:"completed"`
	Messages  []json.RawMessage `json:"messages,omitempty"`
}

// SystemStats is the liveness payload of /system_stats.
type SystemStats struct {
	System struct {
		OS             string `json:"os"`
		PythonVersion  string `json:"python_version"`
		ComfyUIVersion string `json:"comfyui_version,omitempty"`
	} `json:"system"`
	Devices []Device `json:"devices"`
}

// Device is one accelerator reported by the backend.
type Device struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	VRAMTotal int64  `json:"vram_total"`
	VRAMFree  int64  `json:"vram_free"`
}

// NewComputeClient creates a client for the backend at cfg.BaseURL.
// Downloads use a separate client with cfg.DownloadTimeout since artifacts
// can be large.
func NewComputeClient(cfg *config.ComputeConfig, logger zerolog.Logger) *ComputeClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	downloadTimeout := cfg.DownloadTimeout
	if downloadTimeout <= 0 {
		downloadTimeout = 10 * time.Minute
	}
	return &ComputeClient{
		httpClient:     &http.Client{Timeout: timeout},
		downloadClient: &http.Client{Timeout: downloadTimeout},
		baseURL:        cfg.BaseURL,
		logger:         logger.With().Str("component", "compute_client").Logger(),
	}
}

// SubmitWorkflow queues workflow under clientID.
func (c *ComputeClient) SubmitWorkflow(ctx context.Context, workflow any, clientID string) (*SubmitResponse, error) {
	var result SubmitResponse
	if err := c.post(ctx, "/prompt", &SubmitRequest{Prompt: workflow, ClientID: clientID}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetHistory fetches the execution record for promptID.
func (c *ComputeClient) GetHistory(ctx context.Context, promptID string) (History, error) {
	endpoint := "/history/" + url.PathEscape(promptID)
	var result History
	if err := c.get(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ViewURL builds the download URL of a backend output file.
func (c *ComputeClient) ViewURL(filename, subfolder, folderType string) string {
	q := url.Values{}
	q.Set("filename", filename)
	q.Set("subfolder", subfolder)
	q.Set("type", folderType)
	return c.baseURL + "/view?" + q.Encode()
}

// Download streams the body at rawURL. The caller must close it.
func (c *ComputeClient) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("url", rawURL).Msg("download started")

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp.Body, nil
}

// SystemStats probes the backend. Used by the health endpoint only.
func (c *ComputeClient) SystemStats(ctx context.Context) (*SystemStats, error) {
	var result SystemStats
	if err := c.get(ctx, "/system_stats", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// IsConfigured returns true if a backend URL is set.
func (c *ComputeClient) IsConfigured() bool {
	return c.baseURL != ""
}

// post sends a POST request with JSON body
func (c *ComputeClient) post(ctx context.Context, endpoint string, body any, result any) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(req, result)
}

// get sends a GET request and parses JSON response
func (c *ComputeClient) get(ctx context.Context, endpoint string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and parses the response
func (c *ComputeClient) doRequest(req *http.Request, result any) error {
	req.Header.Set("Accept", "application/json")
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", req.Method).Str("url", req.URL.String()).Msg("request failed")
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Str("body", truncate(respBody, maxLoggedBody)).
		Msg("compute API response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: truncate(respBody, maxLoggedBody)}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// IsAPIError reports whether err carries a backend status code.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
