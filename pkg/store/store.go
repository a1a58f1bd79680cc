package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/tethys-org/store/pkg/dispatch"
)

// ClearAction is the built-in action name recorded when ClearState restores
// the construction-time baseline.
const ClearAction = "@@CLEAR_STATE"

// ErrNotStruct is returned by Patch when the state type is not a struct.
var ErrNotStruct = errors.New("store: Patch requires a struct state type")

// Store is the façade an application holds: one state container plus its
// identity in the instance registry and its in-flight executions in the
// dispatcher. Construct with New; release with Close.
//
// Readers always observe a whole snapshot — every publish replaces the
// value atomically, so a partial merge is never visible.
type Store[T any] struct {
	id       string
	typeName string
	rt       *Runtime

	mu      sync.RWMutex
	value   T
	version uint64

	// baseline is the construction-time state after a JSON round trip,
	// kept as raw bytes so every ClearState produces a fresh deep copy.
	// nil when the state type does not round-trip; initial is the
	// fallback then.
	baseline []byte
	initial  T

	subMu sync.RWMutex
	subs  []listener[T]

	listenerID atomic.Uint64
}

// listener is one subscriber to snapshot changes. The version lets a
// subscriber discard a delivery that arrives after a newer one.
type listener[T any] struct {
	id uint64
	fn func(T, uint64)
}

// New constructs a store seeded with initial. Construction registers the
// instance (assigning "Name" or "Name-<n>"), captures the reset baseline,
// and records the implicit INIT dispatch.
//
// When the type's instance cap is exhausted, construction fails with
// registry.ErrInstanceLimit under DevMode; in production it degrades by
// reusing suffix 0, accepting that the two stores then share dispatch
// bookkeeping.
func New[T any](initial T, opts ...Option) (*Store[T], error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	rt := cfg.runtime
	if rt == nil {
		rt = Default
	}
	name := cfg.name
	if name == "" {
		name = typeNameOf[T]()
	}

	id, err := rt.instances.Register(name, cfg.maxInstances)
	if err != nil {
		if DevMode {
			return nil, err
		}
		id = rt.instances.Reuse(name)
	}

	s := &Store[T]{
		id:       id,
		typeName: name,
		rt:       rt,
		value:    initial,
		initial:  initial,
	}
	// Values that cannot round-trip (funcs, channels, non-finite floats)
	// leave the baseline nil; ClearState then falls back to a shallow copy
	// of the construction-time value.
	if raw, err := json.Marshal(initial); err == nil {
		s.baseline = raw
	}

	rt.dispatcher.Init(id)
	rt.events.Publish(Event{Kind: EventStoreRegistered, StoreID: id, Snapshot: initial})

	return s, nil
}

// ID returns the instance id assigned at construction.
func (s *Store[T]) ID() string { return s.id }

// TypeName returns the store's type name, shared by all instances of the
// same logical store type.
func (s *Store[T]) TypeName() string { return s.typeName }

// Runtime returns the runtime this store is wired to.
func (s *Store[T]) Runtime() *Runtime { return s.rt }

// Snapshot returns the current state. It is synchronous and never blocks on
// in-flight dispatches.
func (s *Store[T]) Snapshot() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set replaces the snapshot wholesale and notifies subscribers.
func (s *Store[T]) Set(next T) {
	s.mu.Lock()
	s.value = next
	s.version++
	ver := s.version
	s.mu.Unlock()

	s.notify(next, ver)
}

// Update applies fn to the current snapshot and publishes the result. The
// read-modify-write is atomic with respect to other writers.
func (s *Store[T]) Update(fn func(T) T) {
	s.mu.Lock()
	next := fn(s.value)
	s.value = next
	s.version++
	ver := s.version
	s.mu.Unlock()

	s.notify(next, ver)
}

// Patch shallow-merges fields over the current snapshot by exported struct
// field name and publishes the merged result as one new snapshot. Nested
// values are replaced, never deep-merged. An unknown field or unassignable
// value leaves the snapshot untouched and returns an error; under DevMode
// it panics instead.
func (s *Store[T]) Patch(fields map[string]any) error {
	s.mu.Lock()
	next := s.value
	rv := reflect.ValueOf(&next).Elem()
	if rv.Kind() != reflect.Struct {
		s.mu.Unlock()
		return s.patchErr(fmt.Errorf("%w: %s", ErrNotStruct, rv.Kind()))
	}

	for name, val := range fields {
		f := rv.FieldByName(name)
		if !f.IsValid() || !f.CanSet() {
			s.mu.Unlock()
			return s.patchErr(fmt.Errorf("store: %q has no assignable field %q", s.typeName, name))
		}
		if val == nil {
			f.Set(reflect.Zero(f.Type()))
			continue
		}
		v := reflect.ValueOf(val)
		switch {
		case v.Type().AssignableTo(f.Type()):
			f.Set(v)
		case v.Type().ConvertibleTo(f.Type()):
			f.Set(v.Convert(f.Type()))
		default:
			s.mu.Unlock()
			return s.patchErr(fmt.Errorf("store: cannot assign %s to field %q of %q", v.Type(), name, s.typeName))
		}
	}

	s.value = next
	s.version++
	ver := s.version
	s.mu.Unlock()

	s.notify(next, ver)
	return nil
}

// Dispatch resolves actionName against the type's registered actions and
// runs it through the dispatcher with this instance's id as the target, so
// cancellation defaults to this store unless the caller widens the scope.
//
// An unregistered name fails with registry.ErrActionNotFound and leaves the
// snapshot unchanged.
//
// Deprecated direct form: prefer wrapping Dispatch in a method on your own
// store type, keeping action names in one place.
func (s *Store[T]) Dispatch(actionName string, payload any) (*dispatch.Execution, error) {
	impl, err := s.rt.actions.Resolve(s.typeName, actionName)
	if err != nil {
		return nil, err
	}
	return s.rt.dispatcher.Dispatch(s.id, actionName, impl, s.Snapshot(), payload), nil
}

// Cancel cancels this store's pending executions (ScopeStore) or every
// pending execution in the runtime (ScopeAll).
func (s *Store[T]) Cancel(scope dispatch.Scope) {
	s.rt.dispatcher.Cancel(s.id, scope)
}

// ClearState restores the snapshot to a deep copy of the construction-time
// state, recorded through the dispatcher as the built-in ClearAction. The
// baseline was captured once, via a JSON round trip; values that did not
// survive it are reset to their zero values. The baseline is a reset
// target, not a general clone utility.
func (s *Store[T]) ClearState() {
	s.rt.dispatcher.Dispatch(s.id, ClearAction, func(any, any) (dispatch.Result, error) {
		base := s.initial
		if s.baseline != nil {
			var decoded T
			if err := json.Unmarshal(s.baseline, &decoded); err == nil {
				base = decoded
			}
		}
		s.Set(base)
		return dispatch.Value(nil), nil
	}, s.Snapshot(), nil)
}

// Close tears the store down: cancels every pending execution owned by this
// instance and releases its id for reuse. Behavior of Dispatch or Set after
// Close is undefined; callers guard their own lifecycles.
func (s *Store[T]) Close() {
	s.rt.dispatcher.Cancel(s.id, dispatch.ScopeStore)
	s.rt.instances.Release(s.id)
	s.rt.events.Publish(Event{Kind: EventStoreReleased, StoreID: s.id})
}

// snapshotVersion returns the current state together with its publish
// version. Version 0 is the construction-time value.
func (s *Store[T]) snapshotVersion() (T, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, s.version
}

// subscribe registers fn for every published snapshot. Used by Select.
func (s *Store[T]) subscribe(fn func(T, uint64)) (unsubscribe func()) {
	l := listener[T]{id: s.listenerID.Add(1), fn: fn}

	s.subMu.Lock()
	s.subs = append(s.subs, l)
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, existing := range s.subs {
			if existing.id == l.id {
				s.subs[i] = s.subs[len(s.subs)-1]
				s.subs = s.subs[:len(s.subs)-1]
				return
			}
		}
	}
}

// notify delivers a published snapshot to subscribers and the event hub.
// Copy-before-notify keeps the subscriber lock out of user callbacks.
func (s *Store[T]) notify(next T, ver uint64) {
	s.subMu.RLock()
	subs := make([]listener[T], len(s.subs))
	copy(subs, s.subs)
	s.subMu.RUnlock()

	for _, l := range subs {
		l.fn(next, ver)
	}

	s.rt.events.Publish(Event{Kind: EventSnapshot, StoreID: s.id, Snapshot: next})
}

func (s *Store[T]) patchErr(err error) error {
	if DevMode {
		panic(err)
	}
	return err
}

// typeNameOf derives the default type name for T. Anonymous types fall back
// to their full string form.
func typeNameOf[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name := t.Name(); name != "" {
		return name
	}
	return t.String()
}
