package client

import (
	"context"
	"net/http"
	"time"
)

// RetryConfig configures retry behavior for requests that never reached the hub
type RetryConfig struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides default retry settings
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     5,
	InitialBackoff:  100 * time.Millisecond,
	MaxBackoff:      5 * time.Second,
	BackoffMultiple: 2.0,
}

// retryable reports whether a failed request may be sent again. Only reads
// are retried: a redemption that reached the hub must not be replayed.
func retryable(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// withRetry runs send until it succeeds, the attempts run out or ctx ends
func withRetry(ctx context.Context, cfg RetryConfig, method string, send func() (*http.Response, error)) (*http.Response, error) {
	attempts := cfg.MaxAttempts
	if attempts < 1 || !retryable(method) {
		attempts = 1
	}

	backoff := cfg.InitialBackoff
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := send()
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff = time.Duration(float64(backoff) * cfg.BackoffMultiple)
			if backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}
	}
	return nil, lastErr
}
