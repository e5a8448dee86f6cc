// Package util provides shared helpers for the flatfs CLI and daemon:
// process control, readiness polling, and retry policies.
package util

import (
	"context"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// IPCRetryOptions returns retry options for talking to the daemon socket.
// Uses linear backoff (100ms, 200ms, 300ms) to ride out the window where the
// daemon process exists but its IPC server is not accepting yet.
func IPCRetryOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Attempts(3),
		retry.Delay(100 * time.Millisecond),
		retry.MaxDelay(300 * time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsSocketUnready),
		retry.Context(ctx),
	}
}

// DefaultRetryOptions is the fallback policy when a caller passes no
// options: three attempts with backoff capped at one second.
func DefaultRetryOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Attempts(3),
		retry.Delay(100 * time.Millisecond),
		retry.MaxDelay(1 * time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
	}
}

// RetryWithResult runs fn under the given retry policy and returns its
// value. The last error is returned when every attempt fails.
func RetryWithResult[T any](ctx context.Context, fn func() (T, error), opts ...retry.Option) (T, error) {
	if len(opts) == 0 {
		opts = DefaultRetryOptions(ctx)
	}
	return retry.DoWithData(fn, opts...)
}

// IsSocketUnready returns true for errors a daemon socket produces while the
// daemon is still starting up or has just removed a stale socket file.
func IsSocketUnready(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such file or directory")
}
