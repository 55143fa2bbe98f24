// Package retry re-issues operations that fail with transient errors.
package retry

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v5"

	nexuserrors "github.com/louisbranch/autonexus/internal/platform/errors"
)

// DefaultAttempts is the attempt budget used by the metadata facade.
const DefaultAttempts = 3

type permanentError struct {
	cause error
}

func (e permanentError) Error() string {
	if e.cause == nil {
		return "permanent error"
	}
	return e.cause.Error()
}

func (e permanentError) Unwrap() error {
	return e.cause
}

// Permanent marks an error as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{cause: err}
}

// IsPermanent reports whether err was explicitly marked as non-retryable.
func IsPermanent(err error) bool {
	var target permanentError
	return errors.As(err, &target)
}

// Do runs op up to attempts times with no delay between tries. Only errors
// carrying a retryable code are retried; everything else is surfaced at once.
// The last error is returned once attempts are exhausted.
func Do[T any](ctx context.Context, attempts int, op func(context.Context) (T, error)) (T, error) {
	if attempts <= 0 {
		attempts = 1
	}
	value, err := backoff.Retry(ctx, func() (T, error) {
		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		if IsPermanent(err) || !nexuserrors.IsRetryable(err) {
			return value, backoff.Permanent(err)
		}
		return value, err
	},
		backoff.WithBackOff(&backoff.ZeroBackOff{}),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
	)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	return value, err
}
