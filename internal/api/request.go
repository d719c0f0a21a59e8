package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// maxErrorBody bounds how much of an error response is retained.
const maxErrorBody = 4096

// APIError represents a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("datapulse api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the backend may still be starting up.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// doRequest performs an HTTP request with the given method and path.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return body, nil
}

// Ping issues one liveness probe against the health path. Any 2xx response
// is success; network errors, timeouts and non-2xx statuses are failures.
// Ping never retries.
func (c *Client) Ping(ctx context.Context) error {
	start := time.Now()

	if _, err := c.doRequest(ctx, http.MethodGet, c.healthPath, nil); err != nil {
		attrs := []any{
			"path", c.healthPath,
			"error", err,
			"duration", time.Since(start),
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			attrs = append(attrs, "status", apiErr.StatusCode, "retryable", apiErr.IsRetryable())
		}
		c.logger.Debug("liveness probe failed", attrs...)
		return err
	}

	c.logger.Debug("liveness probe ok",
		"path", c.healthPath,
		"duration", time.Since(start),
	)
	return nil
}
