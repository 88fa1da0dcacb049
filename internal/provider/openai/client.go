package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openai/openai-go/packages/ssestream"
	"github.com/tidwall/gjson"
)

// Client wraps the HTTP client for the upstream API. It carries requests
// and responses verbatim; it never retries and never rewrites upstream
// errors, so callers see transport failures exactly as they happened.
type Client struct {
	apiKey       string
	baseURL      string
	organization string
	httpClient   *http.Client
}

// NewClient creates a new upstream HTTP client.
func NewClient(config Config) *Client {
	return &Client{
		apiKey:       config.APIKey,
		baseURL:      config.BaseURL,
		organization: config.Organization,
		httpClient: &http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
		},
	}
}

// fragmentStream is the pull-based sequence of raw chat fragments produced
// by one streaming invocation.
type fragmentStream interface {
	Next() bool
	Current() chatCompletionChunk
	Err() error
	Close() error
}

// completionFragments is the equivalent sequence for the text completion
// endpoint.
type completionFragments interface {
	Next() bool
	Current() completionChunk
	Err() error
	Close() error
}

// ChatComplete sends a non-streaming chat request.
func (c *Client) ChatComplete(ctx context.Context, req chatCompletionRequest) (*chatCompletionResponse, error) {
	resp, err := c.post(ctx, "/chat/completions", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out chatCompletionResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&out); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	return &out, nil
}

// ChatStream sends a streaming chat request and returns the raw fragment
// stream. Server-sent events are decoded lazily as the caller pulls.
func (c *Client) ChatStream(ctx context.Context, req chatCompletionRequest) (fragmentStream, error) {
	req.Stream = true

	resp, err := c.post(ctx, "/chat/completions", req)
	if err != nil {
		return nil, err
	}
	return ssestream.NewStream[chatCompletionChunk](ssestream.NewDecoder(resp), nil), nil
}

// Complete sends a non-streaming text completion request.
func (c *Client) Complete(ctx context.Context, req completionRequest) (*completionChunk, error) {
	resp, err := c.post(ctx, "/completions", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out completionChunk
	if decodeErr := json.NewDecoder(resp.Body).Decode(&out); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	return &out, nil
}

// CompleteStream sends a streaming text completion request.
func (c *Client) CompleteStream(ctx context.Context, req completionRequest) (completionFragments, error) {
	req.Stream = true

	resp, err := c.post(ctx, "/completions", req)
	if err != nil {
		return nil, err
	}
	return ssestream.NewStream[completionChunk](ssestream.NewDecoder(resp), nil), nil
}

// Respond sends a request to the alternate responses endpoint, which some
// reasoning models require instead of chat completions.
func (c *Client) Respond(ctx context.Context, req responsesRequest) (*responsesResponse, error) {
	resp, err := c.post(ctx, "/responses", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out responsesResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&out); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	return &out, nil
}

// post issues the request and returns the response with a 2xx status. Any
// other status is read, its error message sniffed out of the body, and
// returned as an error carrying the upstream text.
func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+path,
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.organization != "" {
		httpReq.Header.Set("OpenAI-Organization", c.organization)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		return nil, upstreamError(resp.StatusCode, raw)
	}

	return resp, nil
}

// upstreamError extracts the error message from an upstream failure body.
// Bodies follow the {"error": {"message": ...}} shape; anything else is
// reported raw.
func upstreamError(status int, body []byte) error {
	if message := gjson.GetBytes(body, "error.message"); message.Exists() {
		return fmt.Errorf("API returned status %d: %s", status, message.String())
	}
	return fmt.Errorf("API returned status %d: %s", status, string(body))
}
