package explain

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

	"github.com/durinhq/durin/internal/circuitbreaker"
	"github.com/durinhq/durin/internal/retry"
)

// ErrLLMUnavailable is returned when the circuit to the model API is open.
var ErrLLMUnavailable = errors.New("explain: llm unavailable")

// Message is one chat turn in the OpenAI wire format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client calls an OpenAI-compatible chat completions API. Failures trip a
// circuit breaker so a dead upstream degrades to the fallback path instead
// of adding latency to every request.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	breaker *circuitbreaker.Breaker
}

const breakerKey = "llm"

// NewClient creates an LLM client for the given OpenAI-compatible base URL.
func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{Timeout: 30 * time.Second},
		breaker: circuitbreaker.New(5, 30*time.Second),
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends a chat completion request and returns the first choice's
// content. Transient failures are retried with backoff; client errors other
// than rate limits are not.
func (c *Client) Complete(ctx context.Context, messages []Message, maxTokens int, temperature float64) (string, error) {
	if !c.breaker.Allow(breakerKey) {
		return "", ErrLLMUnavailable
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("explain: marshal request: %w", err)
	}

	var content string
	err = retry.Do(ctx, 3, 500*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("explain: llm returned %d: %s", resp.StatusCode, truncate(data, 200))
			// Rate limits and server errors are worth retrying; other
			// client errors are not.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return retry.Permanent(err)
			}
			return err
		}

		var parsed chatResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			return retry.Permanent(fmt.Errorf("explain: decode response: %w", err))
		}
		if len(parsed.Choices) == 0 {
			return retry.Permanent(errors.New("explain: llm returned no choices"))
		}
		content = strings.TrimSpace(parsed.Choices[0].Message.Content)
		return nil
	})

	if err != nil {
		c.breaker.RecordFailure(breakerKey)
		return "", err
	}
	c.breaker.RecordSuccess(breakerKey)
	return content, nil
}

func truncate(data []byte, n int) string {
	s := string(data)
	if len(s) > n {
		return s[:n]
	}
	return s
}
