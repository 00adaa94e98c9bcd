package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/lox/wxetl/internal/metrics"
)

type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     5,
	InitialInterval: 200 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

// ConnectionError is returned once transient failures have used up the
// retry budget.
type ConnectionError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("store: %s: connection failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryError is a non-transient failure. It is never retried.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isTransient reports whether err is worth retrying: a busy or locked
// database, or a connection the pool has given up on.
func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_CANTOPEN:
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "connection refused")
}

// withRetry runs fn until it succeeds, fails permanently, or the retry
// budget runs out. Backoff is exponential with jitter.
func (s *Store) withRetry(ctx context.Context, op string, fn func() error) error {
	attempts := s.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.retry.InitialInterval
	if bo.InitialInterval <= 0 {
		bo.InitialInterval = DefaultRetryPolicy.InitialInterval
	}
	if s.retry.MaxInterval > 0 {
		bo.MaxInterval = s.retry.MaxInterval
	}
	bo.RandomizationFactor = 0.5
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx)

	tries := 0
	operation := func() error {
		tries++
		err := fn()
		if err == nil {
			return nil
		}
		if isNoRows(err) {
			return backoff.Permanent(err)
		}
		if !isTransient(err) {
			return backoff.Permanent(&QueryError{Op: op, Err: err})
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		metrics.DBRetries.WithLabelValues(op).Inc()
		s.logger.Warn("retrying database operation",
			zap.String("op", op),
			zap.Int("attempt", tries),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	err := backoff.RetryNotify(operation, policy, notify)
	if err == nil {
		return nil
	}

	var qerr *QueryError
	if errors.As(err, &qerr) || isNoRows(err) {
		return err
	}
	return &ConnectionError{Op: op, Attempts: tries, Err: err}
}
