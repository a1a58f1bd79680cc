package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
)

// Outcome is the terminal state of an Execution. Zero value is Pending.
type Outcome int

const (
	// Pending indicates the execution has not settled yet.
	Pending Outcome = iota

	// Completed indicates the producer finished normally.
	Completed

	// Errored indicates the producer failed; Err returns the cause.
	Errored

	// Cancelled indicates the execution was cancelled before completing.
	// Cancellation is not an error: observers see a clean completion.
	Cancelled
)

// String returns a human-readable name for the outcome.
func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Completed:
		return "completed"
	case Errored:
		return "errored"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Observer receives values and the terminal event of one execution.
// Any field may be nil. Done is called on normal completion and on
// cancellation; Err is called only on a genuine execution error.
type Observer struct {
	Next func(v any)
	Err  func(err error)
	Done func()
}

// Execution is the bookkeeping for one dispatch: the in-flight computation,
// its replay buffer, and its observers. It is multicast with replay — every
// observer sees the same delivered values in production order, and the
// implementation runs at most once per dispatch.
type Execution struct {
	storeID string
	action  string
	token   uint64

	cancel context.CancelFunc

	mu      sync.Mutex
	buffer  []any
	outcome Outcome
	err     error
	subs    []*subscriber

	// onSettle removes this handle from the dispatcher table and notifies
	// interceptors. Called exactly once.
	onSettle func(outcome Outcome, err error)

	subID atomic.Uint64
}

// subscriber tracks one observer's delivery cursor into the replay buffer.
// Its mutex serializes delivery so values arrive in production order even
// when emits race.
type subscriber struct {
	id     uint64
	obs    Observer
	mu     sync.Mutex
	cursor int
	done   bool
}

// StoreID returns the id of the store instance that owns this execution.
func (e *Execution) StoreID() string { return e.storeID }

// Action returns the dispatched action name.
func (e *Execution) Action() string { return e.action }

// Token returns the execution token, unique per dispatch within the process.
func (e *Execution) Token() uint64 { return e.token }

// Outcome returns the execution's current state.
func (e *Execution) Outcome() Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outcome
}

// Err returns the execution error, or nil if the execution is pending,
// completed, or cancelled.
func (e *Execution) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Subscribe attaches an observer. Values already delivered are replayed
// immediately; the implementation is never re-invoked. If the execution has
// settled, the observer receives the replay followed by the terminal event.
// The returned function detaches the observer.
func (e *Execution) Subscribe(obs Observer) (unsubscribe func()) {
	s := &subscriber{
		id:  e.subID.Add(1),
		obs: obs,
	}

	e.mu.Lock()
	e.subs = append(e.subs, s)
	e.mu.Unlock()

	e.pump(s)

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, existing := range e.subs {
			if existing.id == s.id {
				e.subs[i] = e.subs[len(e.subs)-1]
				e.subs = e.subs[:len(e.subs)-1]
				return
			}
		}
	}
}

// Cancel cancels this execution. Cancelling a settled execution is a no-op.
// The producer's context is cancelled (cooperative: already-scheduled work
// may run one more step) and observers see a clean completion.
func (e *Execution) Cancel() {
	if e.cancel != nil {
		e.cancel()
	}
	e.settle(Cancelled, nil)
}

// emit appends a value to the replay buffer and delivers it to current
// observers. Values emitted after settlement are dropped; a cancelled
// producer may still attempt one late emit.
func (e *Execution) emit(v any) {
	e.mu.Lock()
	if e.outcome != Pending {
		e.mu.Unlock()
		return
	}
	e.buffer = append(e.buffer, v)
	subs := make([]*subscriber, len(e.subs))
	copy(subs, e.subs)
	e.mu.Unlock()

	for _, s := range subs {
		e.pump(s)
	}
}

// settle transitions the execution to a terminal outcome. The first settle
// wins; later calls are no-ops.
func (e *Execution) settle(outcome Outcome, err error) {
	e.mu.Lock()
	if e.outcome != Pending {
		e.mu.Unlock()
		return
	}
	e.outcome = outcome
	e.err = err
	subs := make([]*subscriber, len(e.subs))
	copy(subs, e.subs)
	e.mu.Unlock()

	for _, s := range subs {
		e.pump(s)
	}

	if e.onSettle != nil {
		e.onSettle(outcome, err)
	}
}

// pump drains the replay buffer into one subscriber and, once the execution
// has settled, delivers its terminal event. The subscriber mutex keeps
// delivery ordered under concurrent emits.
func (e *Execution) pump(s *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		e.mu.Lock()
		if s.cursor < len(e.buffer) {
			v := e.buffer[s.cursor]
			s.cursor++
			e.mu.Unlock()
			if s.obs.Next != nil {
				s.obs.Next(v)
			}
			continue
		}
		outcome := e.outcome
		err := e.err
		e.mu.Unlock()

		if outcome == Pending || s.done {
			return
		}
		s.done = true
		if outcome == Errored {
			if s.obs.Err != nil {
				s.obs.Err(err)
			}
		} else if s.obs.Done != nil {
			s.obs.Done()
		}
		return
	}
}
