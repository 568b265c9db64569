// Package provider calls an upstream language-generation service over HTTP.
package provider

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

	"golang.org/x/time/rate"
)

var (
	ErrEmptyResponse  = errors.New("provider returned empty content")
	ErrLocalRateLimit = errors.New("provider request budget exhausted")
)

// Options tune one generation request.
type Options struct {
	System      string
	MaxTokens   int
	Temperature float64
}

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: upstream status %d: %s", e.Provider, e.Code, e.Body)
}

// Budget is a shared allowance of upstream calls.
type Budget interface {
	Allow(ctx context.Context) (bool, error)
}

type Config struct {
	Name   string
	URL    string
	APIKey string
	Model  string
	// RequestsPerSecond caps outbound calls; zero disables the cap.
	RequestsPerSecond float64
	Burst             int
	// Budget, when set, is consulted before every call. A budget that
	// cannot be read does not block the call.
	Budget Budget
}

type Client struct {
	name    string
	url     string
	apiKey  string
	model   string
	http    *http.Client
	limiter *rate.Limiter
	budget  Budget
}

func NewClient(cfg Config) *Client {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(cfg.RequestsPerSecond) + 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		name:   cfg.Name,
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		http: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: limiter,
		budget:  cfg.Budget,
	}
}

func (c *Client) Name() string { return c.name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

// Generate sends prompt upstream and returns the generated text. The call
// is bounded by ctx; callers are expected to attach a deadline.
func (c *Client) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%s: %w: %v", c.name, ErrLocalRateLimit, err)
	}
	if c.budget != nil {
		if ok, err := c.budget.Allow(ctx); err == nil && !ok {
			return "", fmt.Errorf("%s: %w: shared budget spent", c.name, ErrLocalRateLimit)
		}
	}

	req := chatRequest{
		Model:       c.model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	if opts.System != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: opts.System})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%s: build request: %w", c.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%s: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &StatusError{Provider: c.name, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%s: read body: %w", c.name, err)
	}
	content := extractContent(raw)
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%s: %w", c.name, ErrEmptyResponse)
	}
	return content, nil
}

// extractContent understands the chat-completions shape plus the flat
// "content", "text" and "response" shapes used by simpler backends.
func extractContent(raw []byte) string {
	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}

	if choices, ok := body["choices"].([]interface{}); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]interface{}); ok {
			if msg, ok := choice["message"].(map[string]interface{}); ok {
				if content, ok := msg["content"].(string); ok {
					return content
				}
			}
			if text, ok := choice["text"].(string); ok {
				return text
			}
		}
	}

	for _, key := range []string{"content", "text", "response"} {
		if s, ok := body[key].(string); ok {
			return s
		}
	}
	return ""
}
