package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryWithBackoffStopsOnSuccess(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := retryWithBackoff(context.Background(), 5, time.Millisecond, func() error {
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetryWithBackoffReturnsLastError(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := retryWithBackoff(context.Background(), 3, time.Millisecond, func() error {
		attempts++
		return errors.New("always")
	})
	assert.EqualError(t, err, "always")
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoffHonoursCancellationWhileWaiting(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := retryWithBackoff(ctx, 3, time.Hour, func() error {
		attempts++
		cancel()
		return errors.New("fail")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoffStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	cause := errors.New("rejected")
	attempts := 0
	err := retryWithBackoff(context.Background(), 5, time.Millisecond, func() error {
		attempts++
		return permanent(cause)
	})
	assert.Same(t, cause, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	for msg, want := range map[string]bool{
		"connection reset by peer":                                 true,
		"API returned unexpected status code: 500":                 true,
		"API returned unexpected status code: 429":                 true,
		"API returned unexpected status code: 408":                 true,
		"API returned unexpected status code: 400: bad":            false,
		"API returned unexpected status code: 403":                 false,
		"error, status code: 422, message: invalid schema":         false,
		`{"type":"error","error":{"type":"authentication_error"}}`: false,
	} {
		assert.Equal(t, want, retryable(errors.New(msg)), msg)
	}
	assert.False(t, retryable(context.Canceled))
	assert.False(t, retryable(nil))
}
