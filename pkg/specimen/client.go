// Package specimen talks to the Ollama backends hosting the specimens. One
// client fronts one Ollama instance; tanks may override the model per
// specimen.
package specimen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/digiquarium/bouncer/pkg/httputil"
)

// ErrBusy is returned when the concurrency limit for backend calls is hit.
var ErrBusy = errors.New("specimen backend busy")

// Sampling parameters for specimen generation. Fixed: visitors never control
// sampling.
const (
	temperature = 0.8
	topP        = 0.9
)

// Client calls one Ollama instance.
type Client struct {
	baseURL      string
	defaultModel string
	timeout      time.Duration
	sem          *httputil.Semaphore
	httpClient   *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-generation timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithMaxConcurrent bounds in-flight generations.
func WithMaxConcurrent(n int) Option {
	return func(c *Client) { c.sem = httputil.NewSemaphore(n) }
}

// WithHTTPClient overrides the HTTP client (tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the Ollama instance at baseURL.
func NewClient(baseURL, defaultModel string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		defaultModel: defaultModel,
		timeout:      60 * time.Second,
		sem:          httputil.NewSemaphore(8),
		httpClient:   httputil.GenerateClient(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate produces one specimen response. The model argument may be empty,
// in which case the client's default model is used. Respects both the
// caller's context and the client's generation timeout.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	if model == "" {
		model = c.defaultModel
	}

	if !c.sem.TryAcquire() {
		return "", ErrBusy
	}
	defer c.sem.Release()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := generateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: temperature,
			TopP:        topP,
		},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/generate", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate request failed: %w", err)
	}
	defer httputil.DrainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		body, _ := httputil.ReadResponseBody(resp.Body, 4096)
		return "", fmt.Errorf("backend returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}

	return result.Response, nil
}

// HealthCheck probes the backend's /api/tags endpoint with a short timeout.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}

	resp, err := httputil.FastClient().Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	defer httputil.DrainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend health returned status %d", resp.StatusCode)
	}
	return nil
}
