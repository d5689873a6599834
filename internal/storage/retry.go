package storage

import (
	"context"
	"time"
)

// RetryConfig bounds the reconnect attempts made for transient store
// errors. Malformed-record and constraint errors are never retried.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
}

// DefaultRetryConfig matches the behavior expected of the external
// store-connection collaborator: a small, bounded exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: 200 * time.Millisecond,
		MaxWait:     5 * time.Second,
	}
}

// Connect constructs a Repository, retrying transient connectivity
// failures with exponential backoff. Non-connectivity errors fail
// immediately.
func Connect(ctx context.Context, cfg Config, rc RetryConfig) (Repository, error) {
	if rc.MaxAttempts <= 0 {
		rc = DefaultRetryConfig()
	}

	wait := rc.InitialWait
	var lastErr error

	for attempt := 1; attempt <= rc.MaxAttempts; attempt++ {
		repo, err := New(ctx, cfg)
		if err == nil {
			return repo, nil
		}
		lastErr = err

		classified := Classify(err)
		if !IsConnectivity(classified) {
			return nil, err
		}
		if attempt == rc.MaxAttempts {
			break
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		wait *= 2
		if wait > rc.MaxWait {
			wait = rc.MaxWait
		}
	}

	return nil, &ConnectivityError{Err: lastErr}
}
