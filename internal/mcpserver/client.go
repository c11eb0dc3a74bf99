package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the Durin API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	APIKey string // Optional bearer token
}

// DurinClient is a pure HTTP client for the Durin risk API.
type DurinClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewDurinClient creates a new client for the Durin API.
func NewDurinClient(cfg Config) *DurinClient {
	return &DurinClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *DurinClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(req)
}

func (c *DurinClient) send(req *http.Request) (json.RawMessage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// RunAnalysis uploads CSV files and runs a fraud analysis. accountsPath may
// be empty.
func (c *DurinClient) RunAnalysis(ctx context.Context, transactionsPath, accountsPath string) (json.RawMessage, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := attachFile(mw, "transactions", transactionsPath); err != nil {
		return nil, err
	}
	if accountsPath != "" {
		if err := attachFile(mw, "accounts", accountsPath); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finalize upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL+"/v1/analyses", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.send(req)
}

func attachFile(mw *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s file: %w", field, err)
	}
	defer f.Close()

	part, err := mw.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("attach %s file: %w", field, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copy %s file: %w", field, err)
	}
	return nil
}

// GetLatestAnalysis returns the most recent analysis with its full result.
func (c *DurinClient) GetLatestAnalysis(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/analyses/latest", nil, nil)
}

// GetAnalysis returns one analysis by id.
func (c *DurinClient) GetAnalysis(ctx context.Context, analysisID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/analyses/"+analysisID, nil, nil)
}

// ListAnalyses returns analysis summaries, newest first.
func (c *DurinClient) ListAnalyses(ctx context.Context, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/analyses", q, nil)
}

// GetAccountContext returns one account's risk view within an analysis.
func (c *DurinClient) GetAccountContext(ctx context.Context, analysisID, accountID string) (json.RawMessage, error) {
	path := "/v1/analyses/" + analysisID + "/accounts/" + accountID
	return c.doRequest(ctx, http.MethodGet, path, nil, nil)
}

// ExplainAccount generates a plain-language risk explanation for an account.
func (c *DurinClient) ExplainAccount(ctx context.Context, analysisID, accountID string) (json.RawMessage, error) {
	path := "/v1/analyses/" + analysisID + "/accounts/" + accountID + "/explain"
	return c.doRequest(ctx, http.MethodPost, path, nil, nil)
}
