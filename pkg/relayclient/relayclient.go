// Package relayclient provides a client for the relay network's quote and status API.
package relayclient

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

	"github.com/hashicorp/go-retryablehttp"
	"github.com/speedrun-hq/bridgerunner/pkg/circuitbreaker"
	"github.com/speedrun-hq/bridgerunner/pkg/logger"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the per-request HTTP timeout
	DefaultTimeout = 10 * time.Second

	// DefaultRetryMax is the number of transport level retries per request
	DefaultRetryMax = 2

	// DefaultRequestsPerSecond caps outgoing requests to the relay API
	DefaultRequestsPerSecond = 5.0

	maxBodyLogLength = 512
)

// ErrCircuitOpen is returned without contacting the relay while its circuit breaker is open
var ErrCircuitOpen = errors.New("relay API temporarily unavailable")

// StatusCodeError is returned when the relay answers with a non-200 status
type StatusCodeError struct {
	StatusCode int
	Body       string
}

func (e *StatusCodeError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.StatusCode, e.Body)
}

// Options configures a Client
type Options struct {
	Endpoint          string
	Timeout           time.Duration
	RetryMax          int
	RequestsPerSecond float64
	Breaker           *circuitbreaker.CircuitBreaker
}

// Client represents a relay API client
type Client struct {
	endpoint   string
	httpClient *retryablehttp.Client
	limiter    *rate.Limiter
	breaker    *circuitbreaker.CircuitBreaker
	logger     logger.Logger
}

// New creates a new relay API client
func New(opts Options, logger logger.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = DefaultRequestsPerSecond
	}

	burst := int(opts.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		endpoint:   strings.TrimRight(opts.Endpoint, "/"),
		httpClient: createHTTPClient(opts.Timeout, opts.RetryMax),
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst),
		breaker:    opts.Breaker,
		logger:     logger,
	}
}

// Breaker returns the circuit breaker guarding quote requests, if any
func (c *Client) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

// do sends a request and returns the body of a 200 response
func (c *Client) do(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Error("Failed to close response body: %v", closeErr)
		}
	}()

	// Read the response body regardless of status code
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusCodeError{StatusCode: resp.StatusCode, Body: truncate(string(bodyBytes))}
	}
	return bodyBytes, nil
}

// Helper function to create a retrying HTTP client with timeouts
func createHTTPClient(timeout time.Duration, retryMax int) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = retryMax
	c.RetryWaitMin = 250 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.Logger = nil
	// hand the final response back so non-200 bodies can be reported
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	c.HTTPClient = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	return c
}

func truncate(s string) string {
	if len(s) <= maxBodyLogLength {
		return s
	}
	return s[:maxBodyLogLength] + "..."
}
