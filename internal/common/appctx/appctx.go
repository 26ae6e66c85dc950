// Package appctx provides context utilities for background operations that
// must outlive the caller that started them, such as the plain-text
// executor's session-id discovery poll (§9: "fire-and-forget concurrent task
// tied to the lifetime of the child process").
package appctx

import (
	"context"
	"time"
)

// Detached returns a context independent of the parent's cancellation,
// bounded by timeout and by stopCh. Cancelling stopCh or the timeout elapsing
// both cancel the returned context; the parent's own cancellation does not.
func Detached(parent context.Context, stopCh <-chan struct{}, timeout time.Duration) (context.Context, context.CancelFunc) {
	_ = parent
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
