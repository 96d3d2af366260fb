// Package resthttp provides a remote.Service implementation backed by the
// compliance backend's REST API.
package resthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/yairfalse/scandeck/remote"
	"github.com/yairfalse/scandeck/telemetry"
	"github.com/yairfalse/scandeck/types"
)

// Config holds client configuration.
type Config struct {
	// BaseURL is the backend root, e.g. "https://compliance.example.com".
	BaseURL string

	// Token is attached as a bearer token when set.
	Token string

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	// RetryMaxElapsed caps how long transient failures are retried.
	// Zero disables retries.
	RetryMaxElapsed time.Duration
}

// Client talks to the compliance backend over HTTP and fulfills the
// remote.Service interface. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	retryMax   time.Duration
	logger     *telemetry.Logger
}

var _ remote.Service = (*Client)(nil)

// New creates a client for the backend at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.Token,
		retryMax:   cfg.RetryMaxElapsed,
		logger:     telemetry.NewLogger("remote"),
	}, nil
}

// SubmitScan submits one target for scanning and blocks until the backend
// returns the finished result.
func (c *Client) SubmitScan(ctx context.Context, target types.Target) (*types.ScanResult, error) {
	type submitReq struct {
		TargetID    string            `json:"target_id"`
		Regions     []string          `json:"regions"`
		Credentials types.Credentials `json:"credentials"`
	}

	var result types.ScanResult
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/scans",
		submitReq{TargetID: target.ID, Regions: target.Regions, Credentials: target.Credentials},
		&result)
	if err != nil {
		return nil, fmt.Errorf("scan submission for %s failed: %w", target.ID, err)
	}
	return &result, nil
}

// FetchMetrics returns the metrics snapshot for a tenant or region key.
func (c *Client) FetchMetrics(ctx context.Context, key string) (*types.MetricsSnapshot, error) {
	var snapshot types.MetricsSnapshot
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/metrics/"+url.PathEscape(key), nil, &snapshot)
	if err != nil {
		return nil, fmt.Errorf("metrics fetch for %s failed: %w", key, err)
	}
	return &snapshot, nil
}

// ListTenants returns the tenant catalog in backend order.
func (c *Client) ListTenants(ctx context.Context) ([]types.Target, error) {
	var tenants []types.Target
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/tenants", nil, &tenants)
	if err != nil {
		return nil, fmt.Errorf("tenant listing failed: %w", err)
	}
	return tenants, nil
}

// doJSON performs one JSON request with exponential-backoff retries on
// transient failures. 4xx responses are permanent and fail immediately.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	operation := func() error {
		err := c.doOnce(ctx, method, path, body, out)
		if err == nil {
			return nil
		}

		var statusErr *remote.StatusError
		if errors.As(err, &statusErr) && !statusErr.Temporary() {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}

		c.logger.WithContext(ctx).Warn().
			Err(err).
			Str("method", method).
			Str("path", path).
			Msg("request failed, retrying")
		return err
	}

	if c.retryMax == 0 {
		err := c.doOnce(ctx, method, path, body, out)
		return err
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = c.retryMax

	return backoff.Retry(operation, backoff.WithContext(expBackoff, ctx))
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("could not read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &remote.StatusError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(b)),
		}
	}

	if out != nil {
		if err := json.Unmarshal(b, out); err != nil {
			return fmt.Errorf("could not decode response: %w", err)
		}
	}
	return nil
}
