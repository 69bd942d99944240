package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"

	"github.com/searchmux/searchmux/internal/metrics"
	gwerrors "github.com/searchmux/searchmux/pkg/errors"
)

// Transport defaults shared by both adapters.
const (
	DefaultMaxRetries     = 2
	DefaultRetryInterval  = 50 * time.Millisecond
	maxErrorBodyBytes     = 4 << 10
	defaultRequestTimeout = 5 * time.Second
)

// Client is the retrying JSON transport both adapters are built on. A
// deadline on the caller's context always wins over the retry budget.
type Client struct {
	engine     string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries uint64
	interval   time.Duration
}

// ClientConfig configures the transport.
type ClientConfig struct {
	Engine        string
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	MaxRetries    int
	RetryInterval time.Duration
}

// NewClient builds the transport, filling zero values from defaults.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRequestTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	return &Client{
		engine:     cfg.Engine,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: uint64(cfg.MaxRetries),
		interval:   cfg.RetryInterval,
	}
}

// Engine returns the adapter name this transport serves.
func (c *Client) Engine() string { return c.engine }

// statusError marks a non-2xx engine response. 5xx and 429 are
// retryable, other 4xx are not.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("engine returned status %d: %s", e.status, e.body)
}

func (e *statusError) retryable() bool {
	return e.status >= 500 || e.status == http.StatusTooManyRequests
}

// Do posts a JSON payload and decodes the JSON reply into out. Retries
// use exponential backoff; context cancellation and deadline expiry
// abort immediately and surface unmapped so the dispatcher can tell a
// timeout from an engine failure.
func (c *Client) Do(ctx context.Context, operation, method, path string, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return gwerrors.NewEngineError(c.engine, "encoding engine request", err)
		}
	}

	start := time.Now()
	err := c.doWithRetry(ctx, method, path, body, out)
	metrics.EngineLatency.WithLabelValues(c.engine, operation).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.EngineRequests.WithLabelValues(c.engine, operation, "ok").Inc()
		return nil
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		metrics.EngineRequests.WithLabelValues(c.engine, operation, "timeout").Inc()
		return err
	default:
		metrics.EngineRequests.WithLabelValues(c.engine, operation, "error").Inc()
		return gwerrors.NewEngineError(c.engine, operation+" failed", err)
	}
}

func (c *Client) doWithRetry(ctx context.Context, method, path string, body []byte, out any) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(newBackOff(c.interval), c.maxRetries),
		ctx,
	)

	return backoff.Retry(func() error {
		err := c.doOnce(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return backoff.Permanent(err)
		}
		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

func (c *Client) doOnce(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes)) //nolint:errcheck
		return &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding engine response: %w", err)
	}
	return nil
}

func newBackOff(interval time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval
	b.MaxInterval = 10 * interval
	return b
}
