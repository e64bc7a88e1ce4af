package embedding

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

// Client defaults.
const (
	DefaultEndpoint          = "http://127.0.0.1:8844/v1/embeddings"
	DefaultModel             = "text-embedding-3-small"
	DefaultCallTimeout       = 10 * time.Second
	DefaultRequestsPerSecond = 20.0
	DefaultBurst             = 5
)

// Config configures the HTTP embedding client.
type Config struct {
	Endpoint          string
	Model             string
	APIKey            string
	CallTimeout       time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxChars          int
	MaxTokens         int
}

// HTTPClient calls an OpenAI-compatible /v1/embeddings endpoint, or a plain
// /embed endpoint that accepts {"texts": [...]}.
type HTTPClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	truncator  *Truncator
	endpoint   string
	model      string
	apiKey     string
	timeout    time.Duration
	openAI     bool
}

type openAIRequest struct {
	Model string   `json:"model,omitempty"`
	Input []string `json:"input"`
}

type plainRequest struct {
	Texts     []string `json:"texts"`
	MaxLength int      `json:"max_length,omitempty"`
}

type embedResponse struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Embeddings [][]float32 `json:"embeddings"`
	Data       []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// NewHTTPClient creates an embedding client from cfg, applying defaults.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse embedding endpoint: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("embedding endpoint must be http(s): %q", endpoint)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = DefaultBurst
	}

	truncator, err := NewTruncator(cfg.MaxChars, cfg.MaxTokens)
	if err != nil {
		return nil, err
	}

	return &HTTPClient{
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		truncator:  truncator,
		endpoint:   endpoint,
		model:      model,
		apiKey:     cfg.APIKey,
		timeout:    timeout,
		openAI:     strings.HasSuffix(parsed.Path, "/embeddings"),
	}, nil
}

// Model returns the configured model name.
func (c *HTTPClient) Model() string { return c.model }

// Embed requests one embedding. A single attempt is made; no retries.
func (c *HTTPClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limiter: %w", err)
	}

	input := c.truncator.Truncate(text)

	var payload any
	if c.openAI {
		payload = openAIRequest{Model: c.model, Input: []string{input}}
	} else {
		payload = plainRequest{Texts: []string{input}, MaxLength: c.truncator.MaxTokens}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding service status %d: %s", resp.StatusCode, truncateRunes(strings.TrimSpace(string(respBody)), 200))
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("embedding provider error: %s", parsed.Error.Message)
	}

	vectors := parsed.Embeddings
	if len(vectors) == 0 && len(parsed.Data) > 0 {
		sort.Slice(parsed.Data, func(i, j int) bool {
			return parsed.Data[i].Index < parsed.Data[j].Index
		})
		for _, row := range parsed.Data {
			vectors = append(vectors, row.Embedding)
		}
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, ErrEmptyVector
	}
	return vectors[0], nil
}
