package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/youwol/ywdash/errors"
	"github.com/youwol/ywdash/metric"
)

// RequestIDHeader carries the id of every request sent to the daemon.
const RequestIDHeader = "X-Request-ID"

// Requester issues JSON requests against the daemon admin API.
// A nil out discards the response body; a *[]byte out receives it raw.
type Requester interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
}

// ClientConfig configures an HTTPClient.
type ClientConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	// RateLimit is the sustained request rate per second, 0 disables limiting.
	RateLimit float64
	Burst     int
	// TLS overrides the default client TLS settings for https daemons.
	TLS *tls.Config
}

// HTTPClient is the Requester backed by net/http.
type HTTPClient struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	metrics *metric.Metrics
	logger  *slog.Logger
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(h *HTTPClient) {
		if c != nil {
			h.http = c
		}
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(h *HTTPClient) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithClientMetrics records request outcomes.
func WithClientMetrics(m *metric.Metrics) ClientOption {
	return func(h *HTTPClient) { h.metrics = m }
}

// NewHTTPClient creates a client for the daemon at cfg.BaseURL.
func NewHTTPClient(cfg ClientConfig, opts ...ClientOption) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "transport", "NewHTTPClient", "validate base url")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &HTTPClient{
		base:    strings.TrimSuffix(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout, Transport: httpTransport(cfg.TLS)},
		limiter: rate.NewLimiter(limit, burst),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func httpTransport(tlsCfg *tls.Config) http.RoundTripper {
	if tlsCfg == nil {
		return http.DefaultTransport
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.TLSClientConfig = tlsCfg
	return t
}

// Get issues a GET request and decodes the JSON response into out.
func (c *HTTPClient) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST request with a JSON body and decodes the response into out.
func (c *HTTPClient) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.WrapTransient(err, "transport", method, "wait for rate limiter")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.WrapInvalid(err, "transport", method, "encode request body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return errors.WrapInvalid(err, "transport", method, "build request")
	}
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordRequest(method, "error")
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrNoConnection, err), "transport", method, "send request")
	}
	defer resp.Body.Close()
	c.metrics.RecordRequest(method, strconv.Itoa(resp.StatusCode))

	if err := errors.FromStatus(resp.StatusCode, "transport", method, path); err != nil {
		c.logger.Debug("Daemon request failed",
			"method", method, "path", path, "status", resp.StatusCode, "request_id", requestID)
		_, _ = io.Copy(io.Discard, resp.Body)
		return err
	}

	switch raw := out.(type) {
	case nil:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	case *[]byte:
		if *raw, err = io.ReadAll(resp.Body); err != nil {
			return errors.WrapTransient(err, "transport", method, "read response")
		}
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err), "transport", method, "decode response")
	}
	return nil
}
