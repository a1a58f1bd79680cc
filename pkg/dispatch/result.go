package dispatch

import "context"

// ActionFunc is a registered action implementation. It receives the store's
// current snapshot and the dispatch payload, and returns the result to be
// normalized. A non-nil error terminates the execution immediately, before
// any value is delivered.
type ActionFunc func(snapshot, payload any) (Result, error)

// Result is what an action implementation hands back to the Dispatcher.
// It is a closed set: Value, Deferred, or Stream. The Dispatcher normalizes
// every kind into the same Execution shape.
type Result interface {
	isResult()
}

type valueResult struct {
	v any
}

type deferredResult struct {
	fn func(ctx context.Context) (any, error)
}

type streamResult struct {
	fn func(ctx context.Context, emit func(any)) error
}

func (valueResult) isResult()    {}
func (deferredResult) isResult() {}
func (streamResult) isResult()   {}

// Value wraps a plain value into a single-element result. The execution
// completes synchronously, before Dispatch returns.
func Value(v any) Result {
	return valueResult{v: v}
}

// Deferred wraps a computation that runs off the dispatching goroutine.
// Its result becomes a single-element stream; its error terminates the
// execution. The context is cancelled when the execution is cancelled.
func Deferred(fn func(ctx context.Context) (any, error)) Result {
	return deferredResult{fn: fn}
}

// Stream wraps a lazily-produced sequence of values. fn calls emit for each
// value and returns when the sequence is exhausted; a non-nil return error
// terminates the execution. fn must stop emitting once ctx is done.
func Stream(fn func(ctx context.Context, emit func(any)) error) Result {
	return streamResult{fn: fn}
}
