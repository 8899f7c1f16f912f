package llm

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// permanentError stops retryWithBackoff without further attempts.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// retryWithBackoff runs operation up to attempts times, doubling the delay
// between tries. It stops early when ctx is done or operation returns an
// error wrapped by permanent.
func retryWithBackoff(ctx context.Context, attempts int, baseDelay time.Duration, operation func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay := baseDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}

	return lastErr
}

var statusCodeExpr = regexp.MustCompile(`(?i)status code:?\s*(\d{3})`)

var permanentMarkers = []string{
	"invalid_api_key",
	"authentication_error",
	"permission_error",
	"model_not_found",
	"not_found_error",
	"invalid_request_error",
}

// retryable reports whether a provider error may succeed on another attempt.
// Context errors and 4xx answers other than 408 and 429 are final.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	if m := statusCodeExpr.FindStringSubmatch(msg); m != nil {
		code, _ := strconv.Atoi(m[1])
		switch {
		case code == 408 || code == 429:
			return true
		case code >= 400 && code < 500:
			return false
		}
	}
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return false
		}
	}
	return true
}
