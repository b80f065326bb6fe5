// Package clients provides the Emarsys HTTP API client and the rate
// limiting primitives used around it.
package clients

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/ajitpratap0/emarsys-tap/pkg/errors"
	"github.com/ajitpratap0/emarsys-tap/pkg/metrics"
)

// APIConfig configures the Emarsys API client
type APIConfig struct {
	BaseURL  string `json:"base_url"`
	Username string `json:"username"`
	Secret   string `json:"secret"`

	// Connection settings
	MaxIdleConnsPerHost int           `json:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `json:"idle_conn_timeout"`
	EnableHTTP2         bool          `json:"enable_http2"`

	// Timeouts
	DialTimeout         time.Duration `json:"dial_timeout"`
	TLSHandshakeTimeout time.Duration `json:"tls_handshake_timeout"`
	RequestTimeout      time.Duration `json:"request_timeout"`

	UserAgent string `json:"user_agent"`
}

// DefaultAPIConfig returns default client settings for the given credentials
func DefaultAPIConfig(baseURL, username, secret string) *APIConfig {
	return &APIConfig{
		BaseURL:             baseURL,
		Username:            username,
		Secret:              secret,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		EnableHTTP2:         true,
		DialTimeout:         30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		RequestTimeout:      60 * time.Second,
		UserAgent:           "emarsys-tap/1.0",
	}
}

// APIClient issues WSSE-authenticated requests against the Emarsys REST API
// and unwraps the {replyCode, replyText, data} envelope.
type APIClient struct {
	config     *APIConfig
	logger     *zap.Logger
	httpClient *http.Client
	baseURL    *url.URL
	now        func() time.Time

	totalRequests  int64
	failedRequests int64
}

// envelope is the response wrapper every endpoint returns
type envelope struct {
	ReplyCode int             `json:"replyCode"`
	ReplyText string          `json:"replyText"`
	Data      json.RawMessage `json:"data"`
}

// NewAPIClient creates a client for config. A nil httpClient builds a
// pooled transport with HTTP/2 enabled when configured.
func NewAPIClient(config *APIConfig, httpClient *http.Client, logger *zap.Logger) (*APIClient, error) {
	if config == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "api config is required")
	}
	if config.Username == "" || config.Secret == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "api username and secret are required")
	}
	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.Newf(errors.ErrorTypeConfig, "invalid base url %q", config.BaseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "api_client"))

	if httpClient == nil {
		httpClient = newHTTPClient(config, logger)
	}

	return &APIClient{
		config:     config,
		logger:     logger,
		httpClient: httpClient,
		baseURL:    base,
		now:        time.Now,
	}, nil
}

func newHTTPClient(config *APIConfig, logger *zap.Logger) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ExpectContinueTimeout: time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	if config.EnableHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			logger.Warn("failed to configure HTTP/2", zap.Error(err))
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   config.RequestTimeout,
	}
}

// Get issues a GET request and decodes the envelope data into out.
// out may be nil when the caller only cares about success.
func (c *APIClient) Get(ctx context.Context, path string, params url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, params, nil, out)
}

// Post issues a POST request with a JSON body and decodes the envelope data into out.
func (c *APIClient) Post(ctx context.Context, path string, body interface{}, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to encode request body").
				WithDetail("path", path)
		}
	}
	return c.do(ctx, http.MethodPost, path, nil, payload, out)
}

func (c *APIClient) do(ctx context.Context, method, path string, params url.Values, payload []byte, out interface{}) error {
	endpoint := c.baseURL.JoinPath(path)
	// JoinPath drops a trailing slash that some endpoints require
	if strings.HasSuffix(path, "/") && !strings.HasSuffix(endpoint.Path, "/") {
		endpoint.Path += "/"
	}
	if len(params) > 0 {
		endpoint.RawQuery = params.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to build request").
			WithDetail("path", path)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("X-WSSE", wsseHeader(c.config.Username, c.config.Secret, newNonce(), c.now()))
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	atomic.AddInt64(&c.totalRequests, 1)
	timer := metrics.NewTimer()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		atomic.AddInt64(&c.failedRequests, 1)
		metrics.APIRequestDuration.WithLabelValues(method, endpointLabel(path), "error").Observe(timer.Stop().Seconds())
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "request cancelled").WithDetail("path", path)
		}
		return errors.Wrap(err, errors.ErrorTypeConnection, "request failed").WithDetail("path", path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	metrics.APIRequestDuration.WithLabelValues(method, endpointLabel(path), strconv.Itoa(resp.StatusCode)).Observe(timer.Stop().Seconds())
	if err != nil {
		atomic.AddInt64(&c.failedRequests, 1)
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to read response").WithDetail("path", path)
	}

	c.logger.Debug("api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(raw)))

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		atomic.AddInt64(&c.failedRequests, 1)
		return statusError(resp.StatusCode, env, decodeErr == nil, path)
	}
	if decodeErr != nil {
		atomic.AddInt64(&c.failedRequests, 1)
		return errors.Wrap(decodeErr, errors.ErrorTypeData, "failed to decode response envelope").
			WithDetail("path", path)
	}
	if env.ReplyCode != 0 {
		atomic.AddInt64(&c.failedRequests, 1)
		return errors.Newf(errors.ErrorTypeProvider, "%s (reply code %d)", env.ReplyText, env.ReplyCode).
			WithDetail("path", path)
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to decode response data").
			WithDetail("path", path)
	}
	return nil
}

// statusError maps a non-2xx response onto the error taxonomy
func statusError(status int, env envelope, decoded bool, path string) error {
	text := http.StatusText(status)
	if decoded && env.ReplyText != "" {
		text = env.ReplyText
	}

	var errType errors.ErrorType
	switch {
	case status == http.StatusTooManyRequests:
		errType = errors.ErrorTypeRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		errType = errors.ErrorTypeAuthentication
	case status >= 500:
		errType = errors.ErrorTypeConnection
	default:
		errType = errors.ErrorTypeProvider
	}

	return errors.New(errType, fmt.Sprintf("%s: HTTP %d: %s", path, status, text)).
		WithDetail("status", status).
		WithDetail("path", path)
}

var numericSegment = regexp.MustCompile(`/\d+(/|$)`)

// endpointLabel collapses ids in a path so metrics stay low cardinality
func endpointLabel(path string) string {
	return numericSegment.ReplaceAllString(path, "/:id$1")
}

// APIStats represents client statistics
type APIStats struct {
	TotalRequests  int64 `json:"total_requests"`
	FailedRequests int64 `json:"failed_requests"`
}

// Stats returns request counters
func (c *APIClient) Stats() APIStats {
	return APIStats{
		TotalRequests:  atomic.LoadInt64(&c.totalRequests),
		FailedRequests: atomic.LoadInt64(&c.failedRequests),
	}
}

// Close releases idle connections
func (c *APIClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
