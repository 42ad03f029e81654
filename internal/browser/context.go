// internal/browser/context.go
package browser

import (
	"context"
	"time"
)

// CombineContext derives a context from ctx1 that is additionally canceled
// whenever ctx2 is. Values come from ctx1 only; chromedp stores the CDP
// target there, so ctx1 must be the session context and ctx2 the caller's
// deadline or cancellation.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(ctx1)

	go func() {
		select {
		case <-ctx2.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}

// valueOnlyContext keeps a parent's values, including the CDP target,
// while dropping its deadline and cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }

func (valueOnlyContext) Done() <-chan struct{} { return nil }

func (valueOnlyContext) Err() error { return nil }

// Detach returns a context that inherits values from ctx but is not canceled
// when ctx is. Used for cleanup work that must outlive the operation that
// triggered it.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
