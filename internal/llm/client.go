// Package llm talks to an OpenAI-compatible chat-completion endpoint and
// turns its JSON answers into typed rerank, decision and estimate values.
// Every failure past the transport boundary degrades to nil so callers
// fall back to heuristic-only behavior.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// retryableStatuses are the provider statuses worth another attempt.
var retryableStatuses = map[int]struct{}{
	http.StatusTooManyRequests:     {},
	http.StatusInternalServerError: {},
	http.StatusBadGateway:          {},
	http.StatusServiceUnavailable:  {},
	http.StatusGatewayTimeout:      {},
}

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client performs chat completions against an OpenAI-compatible API.
type Client interface {
	// Complete issues one chat completion requesting a JSON-object
	// response and returns the first choice's message content. An empty
	// string with nil error means the provider answered without content.
	Complete(ctx context.Context, messages []Message, temperature float64) (string, error)
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []Message      `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRetry overrides the retry bound and the per-attempt delay increment.
func WithRetry(maxRetries int, increment time.Duration) Option {
	return func(c *httpClient) {
		c.maxRetries = maxRetries
		c.retryStep = increment
	}
}

// WithRequestDelay sets the courtesy delay applied before every attempt.
func WithRequestDelay(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.limiter = rate.NewLimiter(rate.Every(d), 1)
		} else {
			c.limiter = nil
		}
	}
}

// WithDebugLog attaches a redacting debug sink.
func WithDebugLog(dl *DebugLog) Option {
	return func(c *httpClient) { c.debug = dl }
}

type httpClient struct {
	baseURL    string
	apiKey     string
	model      string
	maxRetries int
	retryStep  time.Duration
	limiter    *rate.Limiter
	debug      *DebugLog
	http       *http.Client
}

// NewClient creates a chat-completion client for the given endpoint.
// Defaults: 2 retries, 200ms retry increment, 300ms courtesy delay.
func NewClient(baseURL, apiKey, model string, opts ...Option) Client {
	c := &httpClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		model:      strings.TrimSpace(model),
		maxRetries: 2,
		retryStep:  200 * time.Millisecond,
		limiter:    rate.NewLimiter(rate.Every(300*time.Millisecond), 1),
		http: &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Complete(ctx context.Context, messages []Message, temperature float64) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:          c.model,
		Messages:       messages,
		Temperature:    temperature,
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", eris.Wrap(err, "llm: marshal request")
	}
	url := c.baseURL + "/chat/completions"

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.pace(ctx, attempt); err != nil {
			return "", err
		}
		c.debug.Log("request:init", map[string]any{"baseUrl": c.baseURL, "model": c.model, "attempt": attempt})

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return "", eris.Wrap(err, "llm: create request")
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return "", eris.Wrap(err, "llm: send request")
		}

		c.debug.Log("response:status", map[string]any{"status": resp.StatusCode, "attempt": attempt})

		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			if _, retryable := retryableStatuses[resp.StatusCode]; retryable && attempt < c.maxRetries {
				continue
			}
			return "", eris.Errorf("llm: provider status %d", resp.StatusCode)
		}

		respBody, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return "", eris.Wrap(err, "llm: read response")
		}

		var parsed chatResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return "", eris.Wrap(err, "llm: unmarshal response")
		}
		if len(parsed.Choices) == 0 {
			c.debug.Log("response:content:received", map[string]any{"hasContent": false, "attempt": attempt})
			return "", nil
		}
		content := parsed.Choices[0].Message.Content
		c.debug.Log("response:content:received", map[string]any{"hasContent": content != "", "attempt": attempt})
		if content != "" {
			c.debug.Log("response:content:text", map[string]any{"content": content})
		}
		return content, nil
	}

	return "", eris.New("llm: retries exhausted")
}

// pace applies the courtesy delay plus the linear per-attempt increment.
func (c *httpClient) pace(ctx context.Context, attempt int) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "llm: rate limiter wait")
		}
	}
	if attempt > 0 && c.retryStep > 0 {
		t := time.NewTimer(time.Duration(attempt) * c.retryStep)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return eris.Wrap(ctx.Err(), "llm: retry wait")
		case <-t.C:
		}
	}
	return nil
}
