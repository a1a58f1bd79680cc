package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/tethys-org/store/pkg/dispatch"
	"github.com/tethys-org/store/pkg/registry"
)

type cart struct {
	Items []string
	Total int
	Note  string
}

func newCart(t *testing.T, rt *Runtime, opts ...Option) *Store[cart] {
	t.Helper()
	opts = append([]Option{WithRuntime(rt), WithName("Cart")}, opts...)
	s, err := New(cart{Items: []string{"seed"}, Total: 10}, opts...)
	if err != nil {
		t.Fatalf("unexpected construction error: %v", err)
	}
	return s
}

func TestNewAssignsSequentialIds(t *testing.T) {
	rt := NewRuntime()

	first := newCart(t, rt)
	second := newCart(t, rt)

	if first.ID() != "Cart" {
		t.Errorf("expected first id Cart, got %q", first.ID())
	}
	if second.ID() != "Cart-1" {
		t.Errorf("expected second id Cart-1, got %q", second.ID())
	}
	if first.TypeName() != "Cart" || second.TypeName() != "Cart" {
		t.Error("expected instances to share the type name")
	}
}

func TestNewDerivesTypeNameFromState(t *testing.T) {
	rt := NewRuntime()

	s, err := New(cart{}, WithRuntime(rt))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.TypeName() != "cart" {
		t.Errorf("expected generated name cart, got %q", s.TypeName())
	}
}

func TestInstanceLimitDevModeFailsConstruction(t *testing.T) {
	DevMode = true
	defer func() { DevMode = false }()

	rt := NewRuntime()
	for i := 0; i < 3; i++ {
		newCart(t, rt, WithInstanceMaxCount(3))
	}

	_, err := New(cart{}, WithRuntime(rt), WithName("Cart"), WithInstanceMaxCount(3))
	if !errors.Is(err, registry.ErrInstanceLimit) {
		t.Errorf("expected ErrInstanceLimit, got %v", err)
	}
}

func TestInstanceLimitProductionReusesSuffixZero(t *testing.T) {
	rt := NewRuntime()
	for i := 0; i < 3; i++ {
		newCart(t, rt, WithInstanceMaxCount(3))
	}

	s, err := New(cart{}, WithRuntime(rt), WithName("Cart"), WithInstanceMaxCount(3))
	if err != nil {
		t.Fatalf("expected degraded construction to succeed, got %v", err)
	}
	if s.ID() != "Cart" {
		t.Errorf("expected reused suffix-0 id Cart, got %q", s.ID())
	}
}

func TestSetReplacesSnapshot(t *testing.T) {
	rt := NewRuntime()
	s := newCart(t, rt)

	s.Set(cart{Total: 99})
	if got := s.Snapshot(); got.Total != 99 || got.Items != nil {
		t.Errorf("expected wholesale replace, got %+v", got)
	}
}

func TestUpdateAppliesFunction(t *testing.T) {
	rt := NewRuntime()
	s := newCart(t, rt)

	s.Update(func(c cart) cart {
		c.Total += 5
		return c
	})
	if got := s.Snapshot().Total; got != 15 {
		t.Errorf("expected 15, got %d", got)
	}
}

func TestPatchShallowMerge(t *testing.T) {
	rt := NewRuntime()
	s, err := New(struct {
		A int
		B int
	}{A: 0, B: 2}, WithRuntime(rt), WithName("AB"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.Patch(map[string]any{"A": 1}); err != nil {
		t.Fatalf("unexpected patch error: %v", err)
	}

	got := s.Snapshot()
	if got.A != 1 || got.B != 2 {
		t.Errorf("expected {A:1 B:2}, got %+v", got)
	}
}

func TestPatchUnknownFieldFails(t *testing.T) {
	rt := NewRuntime()
	s := newCart(t, rt)
	before := s.Snapshot()

	if err := s.Patch(map[string]any{"Missing": 1}); err == nil {
		t.Error("expected an error for an unknown field")
	}
	if !reflect.DeepEqual(s.Snapshot(), before) {
		t.Error("expected snapshot untouched after failed patch")
	}
}

func TestPatchNonStructStateFails(t *testing.T) {
	rt := NewRuntime()
	s, err := New(7, WithRuntime(rt), WithName("Counter"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.Patch(map[string]any{"A": 1}); !errors.Is(err, ErrNotStruct) {
		t.Errorf("expected ErrNotStruct, got %v", err)
	}
}

func TestPatchConvertsNumericValues(t *testing.T) {
	rt := NewRuntime()
	s := newCart(t, rt)

	if err := s.Patch(map[string]any{"Total": int64(30)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := s.Snapshot().Total; got != 30 {
		t.Errorf("expected 30, got %d", got)
	}
}

func TestPatchDevModePanics(t *testing.T) {
	DevMode = true
	defer func() { DevMode = false }()

	rt := NewRuntime()
	s := newCart(t, rt)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on unknown field under DevMode")
		}
	}()
	s.Patch(map[string]any{"Missing": 1})
}

func TestClearStateRestoresBaseline(t *testing.T) {
	rt := NewRuntime()
	initial := cart{Items: []string{"a", "b"}, Total: 3, Note: "hello"}
	s, err := New(initial, WithRuntime(rt), WithName("Cart"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.Set(cart{Total: 100})
	s.Patch(map[string]any{"Note": "changed"})

	s.ClearState()

	if got := s.Snapshot(); !reflect.DeepEqual(got, initial) {
		t.Errorf("expected baseline %+v, got %+v", initial, got)
	}
}

func TestClearStateYieldsFreshDeepCopy(t *testing.T) {
	rt := NewRuntime()
	s, err := New(cart{Items: []string{"a"}}, WithRuntime(rt), WithName("Cart"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.ClearState()
	first := s.Snapshot()
	first.Items[0] = "mutated"

	s.ClearState()
	if got := s.Snapshot().Items[0]; got != "a" {
		t.Errorf("expected baseline isolated from snapshot mutation, got %q", got)
	}
}

func TestClearStateWithoutBaselineFallsBack(t *testing.T) {
	rt := NewRuntime()
	// Channels do not survive a JSON round trip, so the baseline stays nil
	// and ClearState falls back to the construction-time value.
	type odd struct {
		C chan int
		N int
	}
	initial := odd{C: make(chan int), N: 7}
	s, err := New(initial, WithRuntime(rt), WithName("Odd"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.Set(odd{N: 99})
	s.ClearState()
	if got := s.Snapshot().N; got != 7 {
		t.Errorf("expected 7, got %d", got)
	}
}

func TestDispatchUnknownActionFails(t *testing.T) {
	rt := NewRuntime()
	s := newCart(t, rt)
	before := s.Snapshot()

	_, err := s.Dispatch("nope", nil)
	if !errors.Is(err, registry.ErrActionNotFound) {
		t.Errorf("expected ErrActionNotFound, got %v", err)
	}
	if !reflect.DeepEqual(s.Snapshot(), before) {
		t.Error("expected snapshot unchanged after failed dispatch")
	}
}

func TestDispatchRunsRegisteredAction(t *testing.T) {
	rt := NewRuntime()
	rt.Actions().Register("Cart", "total", Typed(func(snap cart, payload any) (dispatch.Result, error) {
		return dispatch.Value(snap.Total + payload.(int)), nil
	}))
	s := newCart(t, rt)

	exec, err := s.Dispatch("total", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got any
	done := make(chan struct{})
	exec.Subscribe(dispatch.Observer{
		Next: func(v any) { got = v },
		Done: func() { close(done) },
	})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
	if got != 15 {
		t.Errorf("expected 15, got %v", got)
	}
	if exec.StoreID() != s.ID() {
		t.Errorf("expected execution owned by %q, got %q", s.ID(), exec.StoreID())
	}
}

func TestCloseCancelsPendingAndReleasesId(t *testing.T) {
	rt := NewRuntime()
	rt.Actions().Register("Cart", "hang", func(any, any) (dispatch.Result, error) {
		return dispatch.Deferred(func(ctx context.Context) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}), nil
	})
	s := newCart(t, rt)

	exec, err := s.Dispatch("hang", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.Close()

	if exec.Outcome() != dispatch.Cancelled {
		t.Errorf("expected pending execution Cancelled on close, got %v", exec.Outcome())
	}
	if rt.Dispatcher().Pending(s.ID()) != 0 {
		t.Error("expected no pending handles after close")
	}

	// The id must be free for the next construction.
	next := newCart(t, rt)
	if next.ID() != "Cart" {
		t.Errorf("expected released id reused, got %q", next.ID())
	}
}

func TestCloseScopeDoesNotTouchOtherStores(t *testing.T) {
	rt := NewRuntime()
	rt.Actions().Register("Cart", "hang", func(any, any) (dispatch.Result, error) {
		return dispatch.Deferred(func(ctx context.Context) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}), nil
	})
	a := newCart(t, rt)
	b := newCart(t, rt)

	execB, err := b.Dispatch("hang", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a.Close()

	if execB.Outcome() != dispatch.Pending {
		t.Errorf("expected b's execution untouched, got %v", execB.Outcome())
	}
	b.Close()
}

func TestTypedWrongSnapshotTypeYieldsZero(t *testing.T) {
	impl := Typed(func(snap cart, payload any) (dispatch.Result, error) {
		return dispatch.Value(snap.Total), nil
	})

	res, err := impl("not a cart", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil {
		t.Fatal("expected a result")
	}
}
