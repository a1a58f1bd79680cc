// Package store provides a reactive state-container runtime.
//
// A Store holds a versioned, observable snapshot of application state and
// exposes mutation through named, registered actions. Around the container
// sit two coordination services: an instance registry that assigns each
// store a globally unique, stable id under a bounded-cardinality policy,
// and a dispatcher that normalizes action results (plain values, deferred
// computations, streams) into a uniform, replayable, cancellable pipeline.
//
// # Defining a store type
//
// Actions are declared once at type-definition time, then invoked by name:
//
//	type Cart struct {
//	    Items []string
//	    Total int
//	}
//
//	func init() {
//	    store.RegisterAction("Cart", "checkout", store.Typed(
//	        func(snap Cart, payload any) (dispatch.Result, error) {
//	            return dispatch.Deferred(func(ctx context.Context) (any, error) {
//	                return api.Checkout(ctx, snap.Items)
//	            }), nil
//	        }))
//	}
//
//	cart, err := store.New(Cart{}, store.WithName("Cart"))
//	exec, err := cart.Dispatch("checkout", nil)
//
// # Reading state
//
// Snapshot returns the current value synchronously. Select builds a
// distinct-until-changed projection:
//
//	totals := store.Select(cart, func(c Cart) int { return c.Total })
//	stop := totals.Subscribe(func(total int) { render(total) })
//
// # Runtimes
//
// The registries and the dispatcher are process-scoped services bundled in
// a Runtime. Package-level functions use Default; tests isolate by passing
// WithRuntime(store.NewRuntime()).
package store
