package autopilot

import (
	"context"
	"net/http"
	"time"
)

// Checker probes one addon configuration endpoint.
type Checker interface {
	Healthy(ctx context.Context, url string) bool
}

// HTTPChecker treats any 2xx response to a GET of the transport URL within
// the timeout as healthy.
type HTTPChecker struct {
	client  *http.Client
	timeout time.Duration
}

func NewHTTPChecker(client *http.Client, timeout time.Duration) *HTTPChecker {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPChecker{client: client, timeout: timeout}
}

func (c *HTTPChecker) Healthy(ctx context.Context, url string) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
