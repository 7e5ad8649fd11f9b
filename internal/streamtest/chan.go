// Package streamtest holds helpers shared by the tests of the streaming packages.
package streamtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// DefaultTimeout bounds every helper that waits on a channel.
const DefaultTimeout = 5 * time.Second

// Context returns a context that is cancelled after DefaultTimeout or when
// the test ends.
func Context(t testing.TB) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	t.Cleanup(cancel)
	return ctx
}

// ReadItem reads one value from c or fails the test when ctx is done.
func ReadItem[T any](t testing.TB, ctx context.Context, c <-chan T) T {
	t.Helper()

	select {
	case val, more := <-c:
		require.True(t, more, "channel closed unexpectedly")
		return val
	case <-ctx.Done():
		t.Fatal("timeout reading item")
		return *new(T)
	}
}

// AssertClosed fails the test if c carries another value instead of being
// closed, or if ctx is done first.
func AssertClosed[T any](t testing.TB, ctx context.Context, c <-chan T) {
	t.Helper()

	select {
	case _, more := <-c:
		assert.False(t, more)
	case <-ctx.Done():
		t.Fatal("timeout closing channel")
	}
}

// AssertPending fails the test if c is already readable or closed.
func AssertPending[T any](t testing.TB, c <-chan T) {
	t.Helper()

	select {
	case <-c:
		t.Fatal("channel unexpectedly ready")
	default:
	}
}
