// Package courier talks to the courier aggregator's external HTTP API.
//
// A Client holds one bearer token for the whole process. Every operation
// refreshes it when it is missing or older than the configured TTL, and a
// 401 from the aggregator drops it so the next call logs in again. The client
// never retries; callers decide between compensation and a soft failure.
package courier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/safar/go-fulfillment/internal/config"
	"github.com/safar/go-fulfillment/internal/metrics"
)

const (
	apiPrefix       = "/v1/external"
	maxResponseBody = 1 << 20
)

var ErrMissingCredentials = errors.New("courier credentials not configured")

// RemoteError is any failed exchange with the aggregator: transport errors,
// timeouts, non-2xx responses and undecodable bodies. StatusCode is zero
// when no response arrived.
type RemoteError struct {
	Operation  string
	StatusCode int
	Message    string
	Body       string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("courier %s: status %d: %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("courier %s: %s", e.Operation, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

type Client struct {
	root       string
	email      string
	password   string
	tokenTTL   time.Duration
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time

	mu        sync.Mutex
	token     string
	fetchedAt time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithBreakerSettings replaces the default circuit breaker. Name and
// IsSuccessful are always set by the client.
func WithBreakerSettings(settings gobreaker.Settings) Option {
	return func(c *Client) { c.breaker = c.newBreaker(settings) }
}

func NewClient(cfg config.CourierConfig, opts ...Option) *Client {
	c := &Client{
		root:       strings.TrimRight(cfg.BaseURL, "/"),
		email:      cfg.Email,
		password:   cfg.Password,
		tokenTTL:   cfg.TokenTTL,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		logger:     slog.Default(),
		now:        time.Now,
	}
	if c.tokenTTL <= 0 {
		c.tokenTTL = 25 * time.Minute
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.breaker == nil {
		c.breaker = c.newBreaker(gobreaker.Settings{
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		})
	}

	return c
}

func (c *Client) newBreaker(settings gobreaker.Settings) *gobreaker.CircuitBreaker {
	settings.Name = "courier"
	settings.IsSuccessful = func(err error) bool {
		// 4xx means the aggregator is up and rejected this request.
		var remote *RemoteError
		if errors.As(err, &remote) {
			return remote.StatusCode >= 400 && remote.StatusCode < 500
		}
		return err == nil
	}
	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		c.logger.Warn("circuit breaker state changed",
			"name", name,
			"from", from.String(),
			"to", to.String(),
		)
	}
	return gobreaker.NewCircuitBreaker(settings)
}

// EnsureToken returns a valid bearer token, logging in when none is cached or
// the cached one has outlived the TTL.
func (c *Client) EnsureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Sub(c.fetchedAt) < c.tokenTTL {
		return c.token, nil
	}

	token, err := c.login(ctx)
	if err != nil {
		return "", err
	}

	c.token = token
	c.fetchedAt = c.now()
	return token, nil
}

// InvalidateToken drops the cached token.
func (c *Client) InvalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}

func (c *Client) login(ctx context.Context) (string, error) {
	if c.email == "" || c.password == "" {
		return "", ErrMissingCredentials
	}

	body, err := json.Marshal(map[string]string{
		"email":    c.email,
		"password": c.password,
	})
	if err != nil {
		return "", fmt.Errorf("marshal login: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.root+apiPrefix+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		Token string `json:"token"`
	}
	if err := c.send(req, "login", &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", &RemoteError{Operation: "login", Message: "login response carried no token"}
	}

	c.logger.Info("courier session refreshed")
	return out.Token, nil
}

// Do sends one authenticated request to path under the external API prefix.
// GET requests carry query as URL parameters; every other method sends body
// as JSON. out, when non-nil, receives the decoded response.
func (c *Client) Do(ctx context.Context, operation, method, path string, query url.Values, body any, out any) error {
	token, err := c.EnsureToken(ctx)
	if err != nil {
		return &RemoteError{Operation: operation, Message: err.Error(), Err: err}
	}

	target := c.root + apiPrefix + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if method != http.MethodGet && body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", operation, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.send(req, operation, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &RemoteError{Operation: operation, Message: "service unavailable: " + err.Error(), Err: err}
	}

	var remote *RemoteError
	if errors.As(err, &remote) && remote.StatusCode == http.StatusUnauthorized {
		c.InvalidateToken()
	}

	return err
}

func (c *Client) send(req *http.Request, operation string, out any) error {
	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordCourierRequest(operation, 0, c.now().Sub(start))
		return &RemoteError{Operation: operation, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	c.metrics.RecordCourierRequest(operation, resp.StatusCode, c.now().Sub(start))
	if err != nil {
		return &RemoteError{Operation: operation, StatusCode: resp.StatusCode, Message: "read response: " + err.Error(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RemoteError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Message:    remoteMessage(raw, resp.Status),
			Body:       string(raw),
		}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &RemoteError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Message:    "decode response: " + err.Error(),
			Body:       string(raw),
			Err:        err,
		}
	}

	return nil
}

func remoteMessage(raw []byte, fallback string) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return fallback
}
