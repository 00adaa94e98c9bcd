package httputil

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lox/wxetl/internal/metrics"
)

const DefaultTimeout = 30 * time.Second

type sourceKey struct{}

// WithSource labels outgoing requests made with ctx for logging and metrics.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

func sourceFrom(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey{}).(string); ok {
		return s
	}
	return "unknown"
}

// NewClient returns an HTTP client with standard timeout configuration whose
// transport records latency and status for every upstream call.
func NewClient(logger *zap.Logger) *http.Client {
	return &http.Client{
		Timeout:   DefaultTimeout,
		Transport: NewInstrumentedTransport(http.DefaultTransport, logger),
	}
}

type instrumentedTransport struct {
	next   http.RoundTripper
	logger *zap.Logger
}

func NewInstrumentedTransport(next http.RoundTripper, logger *zap.Logger) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &instrumentedTransport{next: next, logger: logger}
}

func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	source := sourceFrom(req.Context())
	start := time.Now()

	resp, err := t.next.RoundTrip(req)
	elapsed := time.Since(start)
	metrics.UpstreamLatency.WithLabelValues(source).Observe(elapsed.Seconds())

	if err != nil {
		metrics.UpstreamCallsTotal.WithLabelValues(source, "error").Inc()
		t.logger.Warn("upstream call failed",
			zap.String("source", source),
			zap.String("path", req.URL.Path),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, err
	}

	metrics.UpstreamCallsTotal.WithLabelValues(source, strconv.Itoa(resp.StatusCode)).Inc()
	t.logger.Debug("upstream call",
		zap.String("source", source),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", elapsed))
	return resp, nil
}
