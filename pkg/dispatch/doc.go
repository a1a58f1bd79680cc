// Package dispatch turns heterogeneous action results into a uniform,
// replayable, cancellable asynchronous pipeline.
//
// An action implementation returns a Result: a plain value, a deferred
// computation, or a lazily-produced multi-value stream. The Dispatcher
// normalizes every kind into an Execution — a multicast stream with replay,
// so late observers of the same dispatch see the values already delivered
// instead of re-running the implementation.
//
// Every dispatch is recorded in a process-scoped table keyed by the owning
// store instance, so it can be cancelled by an observer who never
// subscribed:
//
//	exec := d.Dispatch("Cart", "addItem", impl, snap, item)
//	exec.Subscribe(dispatch.Observer{Next: apply})
//	d.Cancel("Cart", dispatch.ScopeStore) // or ScopeAll
//
// Cancellation is cooperative: the producer's context is cancelled and it
// must treat that as "stop producing." A cancelled execution completes
// cleanly for its observers; it is never reported as an error.
package dispatch
