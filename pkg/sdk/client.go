// Package sdk is a thin typed HTTP client for the hscodex API: one-shot
// classification plus the clarification conversation endpoints.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Client talks to a running hscodex server.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithAPIKey sets the Bearer token sent with every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a client for the given base URL (e.g. "http://localhost:8080").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify runs a single classification pass.
func (c *Client) Classify(ctx context.Context, req ClassifyRequest) ([]ClassificationResult, error) {
	var resp classifyResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/classify", req, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// StartConversation classifies and, if the result is ambiguous, opens a
// clarification conversation with questions to answer.
func (c *Client) StartConversation(ctx context.Context, req StartConversationRequest) (ConversationResponse, error) {
	var resp ConversationResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/conversations", req, &resp); err != nil {
		return ConversationResponse{}, err
	}
	return resp, nil
}

// Answer submits a turn of answers to an active conversation.
func (c *Client) Answer(ctx context.Context, conversationID string, answers map[string]string) (ConversationResponse, error) {
	var resp ConversationResponse
	path := "/api/v1/conversations/" + conversationID + "/answers"
	if err := c.do(ctx, http.MethodPost, path, answerRequest{Answers: answers}, &resp); err != nil {
		return ConversationResponse{}, err
	}
	return resp, nil
}

// Skip closes an active conversation and returns the best guess so far.
func (c *Client) Skip(ctx context.Context, conversationID string) (ConversationResponse, error) {
	var resp ConversationResponse
	path := "/api/v1/conversations/" + conversationID + "/answers"
	if err := c.do(ctx, http.MethodPost, path, answerRequest{Skip: true}, &resp); err != nil {
		return ConversationResponse{}, err
	}
	return resp, nil
}

// Cancel abandons an active conversation.
func (c *Client) Cancel(ctx context.Context, conversationID string) (ConversationResponse, error) {
	var resp ConversationResponse
	path := "/api/v1/conversations/" + conversationID
	if err := c.do(ctx, http.MethodDelete, path, nil, &resp); err != nil {
		return ConversationResponse{}, err
	}
	return resp, nil
}

// Health reports the server's aggregated component health.
func (c *Client) Health(ctx context.Context) (HealthReport, error) {
	var resp HealthReport
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &resp); err != nil {
		return HealthReport{}, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("sdk: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("sdk: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sdk: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// /healthz answers 503 with a valid body when the store is down
	if resp.StatusCode >= 400 && path != "/healthz" {
		return decodeAPIError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("sdk: decode response: %w", err)
		}
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{HTTPStatus: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
		apiErr.Message = resp.Status
	}
	return apiErr
}
