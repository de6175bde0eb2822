package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/book-expert/voice-lab/internal/core"
)

var errUnexpectedStatus = errors.New("unexpected status")

// apiClient calls the voice-lab HTTP API.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	return &apiClient{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}
}

type generateBody struct {
	core.GenerationRequest
	SessionID string `json:"session_id,omitempty"`
}

type batchBody struct {
	core.BatchRequest
	SessionID string `json:"session_id,omitempty"`
}

// Health checks GET /health.
func (c *apiClient) Health(ctx context.Context) error {
	var status map[string]string

	err := c.do(ctx, http.MethodGet, "/health", nil, &status)
	if err != nil {
		return err
	}

	if status["status"] != "ok" {
		return fmt.Errorf("%w: status %q", errUnexpectedStatus, status["status"])
	}

	return nil
}

// Generate calls POST /generate.
func (c *apiClient) Generate(ctx context.Context, req core.GenerationRequest, sessionID string) (core.GenerationResult, error) {
	var result core.GenerationResult

	err := c.do(ctx, http.MethodPost, "/generate", generateBody{GenerationRequest: req, SessionID: sessionID}, &result)

	return result, err
}

// Batch calls POST /batch.
func (c *apiClient) Batch(ctx context.Context, req core.BatchRequest, sessionID string) ([]core.GenerationResult, error) {
	var result core.BatchResult

	err := c.do(ctx, http.MethodPost, "/batch", batchBody{BatchRequest: req, SessionID: sessionID}, &result)
	if err != nil {
		return nil, err
	}

	return result.Results, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body, target any) error {
	var payload bytes.Buffer

	if body != nil {
		err := json.NewEncoder(&payload).Encode(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &payload)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", errUnexpectedStatus, path, res.StatusCode)
	}

	err = json.NewDecoder(res.Body).Decode(target)
	if err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}

	return nil
}
