package testutil

import (
	"context"
	"testing"
	"time"
)

// ContextWithTimeout returns a context that expires after d.
// Cancelled on test cleanup at the latest.
func ContextWithTimeout(tb testing.TB, d time.Duration) context.Context {
	tb.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), d)
	tb.Cleanup(cancel)
	return ctx
}

// ContextWithDeadline returns a context that expires at deadline.
func ContextWithDeadline(tb testing.TB, deadline time.Time) context.Context {
	tb.Helper()

	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	tb.Cleanup(cancel)
	return ctx
}

// ContextWithCancel returns a cancellable context; the test may cancel it
// early, cleanup cancels it otherwise.
func ContextWithCancel(tb testing.TB) (context.Context, context.CancelFunc) {
	tb.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	tb.Cleanup(cancel)
	return ctx, cancel
}
