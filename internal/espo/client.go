package espo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client is a minimal EspoCRM REST API client. One instance per CRM
// endpoint; safe for reuse across cycles.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

// Config holds Espo client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewClient creates an Espo API client for one CRM endpoint.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// APIError reports a non-2xx response from the Espo API.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("espo: %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("espo: %s", e.Status)
}

// listEnvelope is the shape of every Espo list endpoint response.
type listEnvelope struct {
	Total int             `json:"total"`
	List  json.RawMessage `json:"list"`
}

// Request performs one API call. Query parameters go in params, a JSON body
// in body (nil for none), and the decoded response lands in out (nil to
// discard). Non-2xx responses return *APIError.
func (c *Client) Request(ctx context.Context, method, path string, params url.Values, body, out any) error {
	u := c.baseURL + "/api/v1/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("build %s %s request: %w", method, path, err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s response: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("Espo API error response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return &APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(raw)),
		}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// GetOne fetches a single record by id into out.
func (c *Client) GetOne(ctx context.Context, entity, id string, out any) error {
	return c.Request(ctx, http.MethodGet, entity+"/"+id, nil, nil, out)
}

// Create posts a new record and decodes the created entity into out.
func (c *Client) Create(ctx context.Context, entity string, body, out any) error {
	return c.Request(ctx, http.MethodPost, entity, nil, body, out)
}

// Update issues a partial update to an existing record.
func (c *Client) Update(ctx context.Context, entity, id string, body any) error {
	return c.Request(ctx, http.MethodPut, entity+"/"+id, nil, body, nil)
}
