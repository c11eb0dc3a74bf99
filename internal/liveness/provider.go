package liveness

import (
	"bytes"
	"context"
	"encoding/base64"
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

// ErrProviderUnavailable is returned when the circuit to the deepfake
// detection provider is open.
var ErrProviderUnavailable = errors.New("liveness: provider unavailable")

// ProviderClient calls an external deepfake-detection API. The API takes a
// base64 image and returns a confidence score from 0 (real) to 1 (fake).
type ProviderClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *circuitbreaker.Breaker
}

const providerBreakerKey = "liveness-provider"

// NewProviderClient creates a deepfake-detection client.
func NewProviderClient(baseURL, apiKey string) *ProviderClient {
	return &ProviderClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
		breaker: circuitbreaker.New(5, 30*time.Second),
	}
}

type detectRequest struct {
	Image string `json:"image"`
}

type detectResponse struct {
	Score  float64 `json:"score"`
	Status string  `json:"status"`
}

// DeepfakeConfidence submits an image and returns the provider's deepfake
// confidence in [0, 1].
func (c *ProviderClient) DeepfakeConfidence(ctx context.Context, image []byte) (float64, error) {
	if !c.breaker.Allow(providerBreakerKey) {
		return 0, ErrProviderUnavailable
	}

	body, err := json.Marshal(detectRequest{Image: base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		return 0, fmt.Errorf("liveness: marshal request: %w", err)
	}

	var score float64
	err = retry.Do(ctx, 3, 500*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/v1/detect", bytes.NewReader(body))
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
			err := fmt.Errorf("liveness: provider returned %d", resp.StatusCode)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return retry.Permanent(err)
			}
			return err
		}

		var parsed detectResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			return retry.Permanent(fmt.Errorf("liveness: decode response: %w", err))
		}
		if parsed.Score < 0 || parsed.Score > 1 {
			return retry.Permanent(fmt.Errorf("liveness: provider score %f out of range", parsed.Score))
		}
		score = parsed.Score
		return nil
	})

	if err != nil {
		c.breaker.RecordFailure(providerBreakerKey)
		return 0, err
	}
	c.breaker.RecordSuccess(providerBreakerKey)
	return score, nil
}
