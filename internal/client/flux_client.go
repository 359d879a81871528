package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/nailglow/api/internal/config"
	"github.com/nailglow/api/internal/model"
)

// ArtGenerator defines the interface for nail-art rendering operations
type ArtGenerator interface {
	SubmitRender(ctx context.Context, req *RenderRequest) (*RenderSubmitResponse, error)
	GetRenderStatus(ctx context.Context, taskID string) (*RenderResult, error)
	PollRenderStatus(ctx context.Context, taskID string, interval, maxWait time.Duration) (*RenderResult, error)
	IsConfigured() bool
}

// FluxClient implements ArtGenerator against a Flux-style image API
type FluxClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// RenderRequest represents the request for a nail-art render
type RenderRequest struct {
	Model      string               `json:"model"`
	Prompt     string               `json:"prompt"`
	ImageURL   string               `json:"image_url"`
	NumOutputs int                  `json:"num_outputs"`
	Settings   model.DesignSettings `json:"settings"`
}

// RenderSubmitResponse acknowledges an accepted render task
type RenderSubmitResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// RenderResult represents the state of a render task
type RenderResult struct {
	TaskID string   `json:"task_id"`
	Status string   `json:"status"`
	Images []string `json:"images,omitempty"`
	Detail string   `json:"detail,omitempty"`
}

// NewFluxClient creates a new Flux API client
func NewFluxClient(cfg *config.FluxConfig) *FluxClient {
	return &FluxClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

// SubmitRender submits a render task and returns its task id
func (c *FluxClient) SubmitRender(ctx context.Context, req *RenderRequest) (*RenderSubmitResponse, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	var result RenderSubmitResponse
	if err := c.post(ctx, "/v1/renders", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetRenderStatus retrieves the status of a render task
func (c *FluxClient) GetRenderStatus(ctx context.Context, taskID string) (*RenderResult, error) {
	endpoint := fmt.Sprintf("/v1/renders/%s", taskID)
	var result RenderResult
	if err := c.get(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PollRenderStatus polls for render completion until the task reaches a
// terminal provider status, the context is cancelled or maxWait elapses.
func (c *FluxClient) PollRenderStatus(ctx context.Context, taskID string, interval, maxWait time.Duration) (*RenderResult, error) {
	deadline := time.Now().Add(maxWait)
	attempt := 0

	for time.Now().Before(deadline) {
		attempt++
		result, err := c.GetRenderStatus(ctx, taskID)
		if err != nil {
			log.Printf("[Flux API] Poll render #%d (task=%s) — error: %v", attempt, taskID, err)
			return nil, err
		}

		log.Printf("[Flux API] Poll render #%d (task=%s) — status: %s", attempt, taskID, result.Status)

		switch result.Status {
		case "completed", "success":
			return result, nil
		case "failed", "error", "rejected":
			return nil, fmt.Errorf("%w: provider rejected render: %s", model.ErrGenerationFailed, result.Detail)
		}

		select {
		case <-ctx.Done():
			log.Printf("[Flux API] Poll render (task=%s) — context cancelled", taskID)
			return nil, ctx.Err()
		case <-time.After(interval):
			continue
		}
	}

	return nil, fmt.Errorf("render timed out after %v", maxWait)
}

// post sends a POST request with JSON body
func (c *FluxClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// get sends a GET request and parses JSON response
func (c *FluxClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and parses the response
func (c *FluxClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("flux API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *FluxClient) IsConfigured() bool {
	return c.apiKey != ""
}
