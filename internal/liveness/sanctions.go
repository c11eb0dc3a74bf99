package liveness

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

// ErrSanctionsUnavailable is returned when the circuit to the screening API
// is open. Callers treat unavailability as a pass rather than blocking.
var ErrSanctionsUnavailable = errors.New("liveness: sanctions api unavailable")

// sanctionsMatchThreshold is the minimum match score that counts as a hit.
const sanctionsMatchThreshold = 0.7

// SanctionsMatch is one high-confidence screening hit.
type SanctionsMatch struct {
	Caption string  `json:"caption"`
	Score   float64 `json:"score"`
	Count   int     `json:"count"`
}

// SanctionsClient screens names against an OpenSanctions-compatible match
// API covering OFAC, UN, EU, OFSI, and PEP lists.
type SanctionsClient struct {
	matchURL string
	apiKey   string
	http     *http.Client
	breaker  *circuitbreaker.Breaker
}

const sanctionsBreakerKey = "sanctions"

// NewSanctionsClient creates a screening client for the given match URL.
func NewSanctionsClient(matchURL, apiKey string) *SanctionsClient {
	return &SanctionsClient{
		matchURL: strings.TrimSuffix(matchURL, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 10 * time.Second},
		breaker:  circuitbreaker.New(5, 30*time.Second),
	}
}

type matchRequest struct {
	Queries map[string]matchQuery `json:"queries"`
}

type matchQuery struct {
	Schema     string              `json:"schema"`
	Properties map[string][]string `json:"properties"`
}

type matchResponse struct {
	Responses map[string]struct {
		Results []struct {
			Caption string  `json:"caption"`
			Score   float64 `json:"score"`
		} `json:"results"`
	} `json:"responses"`
}

// Screen checks a name against the sanctions lists. A nil match means the
// name is clear.
func (c *SanctionsClient) Screen(ctx context.Context, name string) (*SanctionsMatch, error) {
	if !c.breaker.Allow(sanctionsBreakerKey) {
		return nil, ErrSanctionsUnavailable
	}

	body, err := json.Marshal(matchRequest{
		Queries: map[string]matchQuery{
			"q1": {
				Schema:     "Person",
				Properties: map[string][]string{"name": {name}},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("liveness: marshal query: %w", err)
	}

	var match *SanctionsMatch
	err = retry.Do(ctx, 3, 500*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.matchURL, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

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
			err := fmt.Errorf("liveness: sanctions api returned %d", resp.StatusCode)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return retry.Permanent(err)
			}
			return err
		}

		var parsed matchResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			return retry.Permanent(fmt.Errorf("liveness: decode response: %w", err))
		}

		match = nil
		for _, r := range parsed.Responses["q1"].Results {
			if r.Score <= sanctionsMatchThreshold {
				continue
			}
			if match == nil {
				match = &SanctionsMatch{Caption: r.Caption, Score: r.Score}
			}
			match.Count++
		}
		return nil
	})

	if err != nil {
		c.breaker.RecordFailure(sanctionsBreakerKey)
		return nil, err
	}
	c.breaker.RecordSuccess(sanctionsBreakerKey)
	return match, nil
}
