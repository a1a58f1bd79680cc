package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Scope is the breadth of a cancellation request.
type Scope int

const (
	// ScopeStore cancels only executions owned by the targeted store instance.
	ScopeStore Scope = iota

	// ScopeAll cancels every live execution in the process, regardless of owner.
	ScopeAll
)

// String returns a human-readable name for the scope.
func (s Scope) String() string {
	switch s {
	case ScopeStore:
		return "store"
	case ScopeAll:
		return "all"
	default:
		return "unknown"
	}
}

// InitAction is the action name recorded for the implicit dispatch performed
// once per store construction. It exists purely for uniform bookkeeping and
// observability; it mutates nothing and its result is discarded.
const InitAction = "@@INIT"

// Info identifies one dispatch to interceptors.
type Info struct {
	StoreID string
	Action  string
	Token   uint64
}

// Interceptor observes dispatch lifecycle. Implementations must be safe for
// concurrent use; Settled may run on a producer goroutine.
type Interceptor interface {
	// DispatchStarted is called after the execution handle is recorded,
	// before the implementation runs.
	DispatchStarted(info Info)

	// DispatchSettled is called once, when the execution reaches a terminal
	// outcome. err is non-nil only for Errored.
	DispatchSettled(info Info, outcome Outcome, err error, elapsed time.Duration)
}

// Dispatcher is the process-scoped table of in-flight executions, keyed by
// (store instance id, execution token). It normalizes every Result kind into
// an Execution and supports targeted or global cancellation.
//
// The zero value is not usable; construct with New. Inject one Dispatcher
// per runtime rather than sharing ambient global state, so tests can
// isolate.
type Dispatcher struct {
	mu      sync.Mutex
	handles map[string]map[uint64]*Execution

	interceptors []Interceptor
	intMu        sync.RWMutex

	tokens atomic.Uint64
}

// New creates an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{
		handles: make(map[string]map[uint64]*Execution),
	}
}

// Use registers an interceptor for all subsequent dispatches.
func (d *Dispatcher) Use(i Interceptor) {
	if i == nil {
		return
	}
	d.intMu.Lock()
	d.interceptors = append(d.interceptors, i)
	d.intMu.Unlock()
}

// Dispatch invokes impl with (snapshot, payload), normalizes its result, and
// records the execution under storeID so it can be targeted by Cancel.
//
// Normalization: a Value result completes synchronously as a single-element
// stream; a Deferred result runs on its own goroutine and completes with one
// element; a Stream result is passed through unchanged. If impl returns an
// error, the execution terminates immediately with that error.
func (d *Dispatcher) Dispatch(storeID, action string, impl ActionFunc, snapshot, payload any) *Execution {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Execution{
		storeID: storeID,
		action:  action,
		token:   d.tokens.Add(1),
		cancel:  cancel,
	}
	started := time.Now()
	e.onSettle = func(outcome Outcome, err error) {
		d.remove(e)
		d.notifySettled(Info{StoreID: e.storeID, Action: e.action, Token: e.token}, outcome, err, time.Since(started))
	}

	d.record(e)
	d.notifyStarted(Info{StoreID: e.storeID, Action: e.action, Token: e.token})

	res, err := impl(snapshot, payload)
	if err != nil {
		e.settle(Errored, err)
		return e
	}

	switch r := res.(type) {
	case valueResult:
		e.emit(r.v)
		e.settle(Completed, nil)

	case deferredResult:
		go func() {
			v, err := r.fn(ctx)
			switch {
			case ctx.Err() != nil:
				e.settle(Cancelled, nil)
			case err != nil:
				e.settle(Errored, err)
			default:
				e.emit(v)
				e.settle(Completed, nil)
			}
		}()

	case streamResult:
		go func() {
			err := r.fn(ctx, e.emit)
			switch {
			case ctx.Err() != nil:
				e.settle(Cancelled, nil)
			case err != nil:
				e.settle(Errored, err)
			default:
				e.settle(Completed, nil)
			}
		}()

	default:
		// A nil Result means the action had nothing to deliver.
		e.settle(Completed, nil)
	}

	return e
}

// Init records the implicit construction-time dispatch for a store instance.
func (d *Dispatcher) Init(storeID string) {
	d.Dispatch(storeID, InitAction, func(any, any) (Result, error) {
		return Value(nil), nil
	}, nil, nil)
}

// Cancel cancels pending executions. ScopeStore targets only handles owned
// by storeID; ScopeAll cancels every handle in the table regardless of
// owner. Cancelling an already-settled handle is a no-op. Already-delivered
// values and already-mutated state are not undone.
func (d *Dispatcher) Cancel(storeID string, scope Scope) {
	d.mu.Lock()
	var targets []*Execution
	if scope == ScopeAll {
		for _, byToken := range d.handles {
			for _, e := range byToken {
				targets = append(targets, e)
			}
		}
	} else {
		for _, e := range d.handles[storeID] {
			targets = append(targets, e)
		}
	}
	d.mu.Unlock()

	for _, e := range targets {
		e.Cancel()
	}
}

// Pending returns the number of in-flight executions owned by storeID.
func (d *Dispatcher) Pending(storeID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handles[storeID])
}

func (d *Dispatcher) record(e *Execution) {
	d.mu.Lock()
	defer d.mu.Unlock()
	byToken := d.handles[e.storeID]
	if byToken == nil {
		byToken = make(map[uint64]*Execution)
		d.handles[e.storeID] = byToken
	}
	byToken[e.token] = e
}

func (d *Dispatcher) remove(e *Execution) {
	d.mu.Lock()
	defer d.mu.Unlock()
	byToken := d.handles[e.storeID]
	delete(byToken, e.token)
	if len(byToken) == 0 {
		delete(d.handles, e.storeID)
	}
}

func (d *Dispatcher) notifyStarted(info Info) {
	d.intMu.RLock()
	ints := d.interceptors
	d.intMu.RUnlock()
	for _, i := range ints {
		i.DispatchStarted(info)
	}
}

func (d *Dispatcher) notifySettled(info Info, outcome Outcome, err error, elapsed time.Duration) {
	d.intMu.RLock()
	ints := d.interceptors
	d.intMu.RUnlock()
	for _, i := range ints {
		i.DispatchSettled(info, outcome, err, elapsed)
	}
}
