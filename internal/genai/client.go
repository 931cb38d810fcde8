package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL        = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel          = "gemini-2.5-flash"
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = time.Second
	defaultTimeout        = 60 * time.Second
	maxErrorBodySize      = 4 << 10
)

var (
	// ErrSafetyBlocked is returned when the service withholds content.
	ErrSafetyBlocked = errors.New("genai: response blocked by safety filters")
	// ErrEmptyResponse is returned when no generated text is present.
	ErrEmptyResponse = errors.New("genai: response has no generated text")
)

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("genai: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("genai: unexpected status %d: %s", e.Code, e.Body)
}

// Options configures a Client. Zero values select the defaults.
type Options struct {
	BaseURL        string
	Model          string
	MaxRetries     int           // zero → DefaultMaxRetries; negative → 1
	InitialBackoff time.Duration // zero → 1s; doubles after every failed attempt
	Timeout        time.Duration // per attempt; zero → 60s
}

// Client calls a hosted generateContent endpoint, retrying transient failures
// with exponential backoff.
type Client struct {
	apiKey         string
	baseURL        string
	model          string
	maxRetries     int
	initialBackoff time.Duration
	timeout        time.Duration
	httpClient     *http.Client
	sleep          func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Client authenticating with apiKey.
func NewClient(apiKey string, opts Options) *Client {
	c := &Client{
		apiKey:         apiKey,
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		model:          opts.Model,
		maxRetries:     opts.MaxRetries,
		initialBackoff: opts.InitialBackoff,
		timeout:        opts.Timeout,
		httpClient:     &http.Client{},
		sleep:          sleepContext,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	switch {
	case c.maxRetries == 0:
		c.maxRetries = DefaultMaxRetries
	case c.maxRetries < 0:
		c.maxRetries = 1
	}
	if c.initialBackoff <= 0 {
		c.initialBackoff = DefaultInitialBackoff
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	return c
}

// Model returns the model name requests are sent to.
func (c *Client) Model() string { return c.model }

// Generate performs one logical generate call using the configured retry limit.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	return c.GenerateWithRetries(ctx, req, c.maxRetries)
}

// GenerateWithRetries attempts the call up to maxRetries times. Between
// attempts it waits initialBackoff * 2^attempt. Non-2xx statuses, safety
// blocks and responses without text all count as failures; after the last
// attempt the most recent failure is returned.
func (c *Client) GenerateWithRetries(ctx context.Context, req GenerateRequest, maxRetries int) (*GenerateResponse, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	delay := c.initialBackoff
	var lastErr error
	for attempt := range maxRetries {
		resp, err := c.doGenerate(ctx, body)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// Intermediate failures are not logged.
		lastErr = err
		if attempt < maxRetries-1 {
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			delay *= 2
		}
	}

	return nil, fmt.Errorf("generate failed after %d attempts: %w", maxRetries, lastErr)
}

func (c *Client) doGenerate(ctx context.Context, body []byte) (*GenerateResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var out GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if out.Blocked() {
		return nil, ErrSafetyBlocked
	}
	if out.Text() == "" {
		return nil, ErrEmptyResponse
	}
	return &out, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
