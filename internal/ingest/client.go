package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/lox/wxetl/internal/config"
	"github.com/lox/wxetl/internal/httputil"
)

const maxResponseBytes = 8 << 20

// Client talks to the OpenWeatherMap API family. Every call gets its own
// timeout and its own per-source circuit breaker; nothing is retried here.
type Client struct {
	cfg    config.Config
	http   *http.Client
	logger *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewClient(cfg config.Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = httputil.NewClient(logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &Client{
		cfg:      cfg,
		http:     httpClient,
		logger:   logger.Named("owm"),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// FetchResult describes one upstream call for the ingest audit.
type FetchResult struct {
	Source       string
	Endpoint     string
	HTTPStatus   int
	ResponseSize int
	Duration     time.Duration
	Body         []byte
}

func (c *Client) breaker(source string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	cb, ok := c.breakers[source]
	if !ok {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        source,
			MaxRequests: 1,
			Interval:    10 * time.Minute,
			Timeout:     5 * time.Minute,
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn("circuit breaker state change",
					zap.String("source", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
		c.breakers[source] = cb
	}
	return cb
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("unexpected status %d", e.code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

// get performs one GET against endpoint (relative to the base URL) and
// returns the body of a 2xx response. Any failure is an *UpstreamError.
func (c *Client) get(ctx context.Context, source, endpoint string, params url.Values) (*FetchResult, error) {
	result := &FetchResult{Source: source, Endpoint: endpoint}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	ctx = httputil.WithSource(ctx, source)

	params.Set("appid", c.cfg.APIKey)
	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + endpoint + "?" + params.Encode()

	start := time.Now()
	_, err := c.breaker(source).Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, stripURL(err, endpoint)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, stripURL(err, endpoint)
		}
		defer resp.Body.Close()

		result.HTTPStatus = resp.StatusCode
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		result.ResponseSize = len(body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &statusError{code: resp.StatusCode, body: truncate(string(body), 200)}
		}
		result.Body = body
		return nil, nil
	})
	result.Duration = time.Since(start)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("circuit open: %w", err)
		}
		return result, &UpstreamError{Source: source, Endpoint: endpoint, StatusCode: result.HTTPStatus, Err: err}
	}
	return result, nil
}

// stripURL replaces the request URL in a *url.Error with the bare endpoint.
// The full URL carries the API key and the error text ends up in logs, the
// ingest audit and the ops API.
func stripURL(err error, endpoint string) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s %s: %w", ue.Op, endpoint, ue.Err)
	}
	return err
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
