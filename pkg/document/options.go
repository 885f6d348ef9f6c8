package document

import (
	"log/slog"
	"net/http"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used to reach the registry.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBatchProducers sets how many goroutines CreateDocuments submits from.
func WithBatchProducers(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.producers = n
		}
	}
}
