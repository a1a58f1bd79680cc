package store

// DevMode enables diagnostics-time strictness. When true:
//   - Constructing a store past its type's instance cap fails with
//     ErrInstanceLimit instead of degrading.
//   - Patch panics on an unknown or unassignable field instead of only
//     returning the error.
//
// When false (production), the runtime must not crash: instance-cap
// exhaustion reuses suffix 0 (a documented correctness trade-off — the two
// stores then share dispatch bookkeeping) and Patch reports errors to the
// caller.
//
// Set this once at application startup:
//
//	func main() {
//	    store.DevMode = os.Getenv("STORE_DEV") == "1"
//	    // ...
//	}
var DevMode = false
