package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// RetryBackoff is the pause before the single retry.
var RetryBackoff = 100 * time.Millisecond

// Retryable reports whether err came from a connection that failed before
// the statement could have taken effect.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	return pgconn.SafeToRetry(err)
}

// Retry runs fn and runs it once more if the first failure is Retryable.
// op names the operation in the log line.
func Retry(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if !Retryable(err) {
		return err
	}

	log.Printf("Retrying %s after transient error: %v", op, err)
	t := time.NewTimer(RetryBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	return fn()
}
