package starlark

import (
	"context"

	"go.starlark.net/starlark"
)

// DefaultMaxSteps bounds the work a single expression evaluation may do.
const DefaultMaxSteps = 1_000_000

// newThread creates a thread that is cancelled together with ctx.
// The returned stop function must be called once the thread is no longer used.
func newThread(ctx context.Context, name string, maxSteps uint64) (*starlark.Thread, func() bool) {
	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, _ string) {
			// Expressions have no output channel
		},
	}
	if maxSteps > 0 {
		thread.SetMaxExecutionSteps(maxSteps)
	}
	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(context.Cause(ctx).Error())
	})
	return thread, stop
}
