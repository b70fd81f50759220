package errors

import (
	"context"
	"errors"
	"time"
)

// Retry policy for transient backend failures.
const (
	retryAttempts  = 3
	retryBaseDelay = time.Second
)

// RetryableError marks its cause as worth another attempt.
type RetryableError struct{ Err error }

// Retryable wraps err so RetryWithBackoff will retry it. Nil stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

func (e *RetryableError) Error() string { return e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable reports whether an error should trigger another attempt:
// either an explicit Retryable wrapper or a transient code (NETWORK_ERROR,
// TIMEOUT) anywhere in the chain.
func IsRetryable(err error) bool {
	var re *RetryableError
	if errors.As(err, &re) {
		return true
	}
	return Is(err, ErrCodeNetwork) || Is(err, ErrCodeTimeout)
}

// RetryWithBackoff runs fn up to three times, doubling the wait between
// attempts. A non-retryable error ends the loop at once; so does context
// cancellation while waiting.
func RetryWithBackoff(ctx context.Context, fn func() error) error {
	delay := retryBaseDelay
	var lastErr error

	for i := 0; i < retryAttempts; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err

		if i < retryAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}
	}
	return lastErr
}
