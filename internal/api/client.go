package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultHealthPath is probed when no health path is configured.
const DefaultHealthPath = "/"

// Client provides access to the DataPulse REST API.
type Client struct {
	baseURL    string
	token      string
	healthPath string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		healthPath: DefaultHealthPath,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHealthPath sets the path probed by Ping.
func WithHealthPath(path string) ClientOption {
	return func(c *Client) {
		if path != "" {
			c.healthPath = path
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}
