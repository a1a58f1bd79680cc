package store

import (
	"sync"
	"testing"
)

func TestSelectDeliversInitialValueImmediately(t *testing.T) {
	rt := NewRuntime()
	s := newCart(t, rt)

	totals := Select(s, func(c cart) int { return c.Total })

	var got []int
	totals.Subscribe(func(v int) { got = append(got, v) })

	if len(got) != 1 || got[0] != 10 {
		t.Errorf("expected immediate [10], got %v", got)
	}
}

func TestSelectEmitsOnlyOnChange(t *testing.T) {
	rt := NewRuntime()
	s := newCart(t, rt)

	totals := Select(s, func(c cart) int { return c.Total })

	var got []int
	totals.Subscribe(func(v int) { got = append(got, v) })

	// Change an unrelated field: the projection is value-equal, so the
	// emission is suppressed.
	s.Patch(map[string]any{"Note": "unrelated"})
	if len(got) != 1 {
		t.Fatalf("expected no emission for unrelated change, got %v", got)
	}

	s.Patch(map[string]any{"Total": 20})
	s.Patch(map[string]any{"Total": 20}) // equal again, suppressed
	s.Patch(map[string]any{"Total": 30})

	want := []int{10, 20, 30}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("emission %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestSelectDeepEqualityForSliceProjections(t *testing.T) {
	rt := NewRuntime()
	s := newCart(t, rt)

	items := Select(s, func(c cart) []string { return c.Items })

	count := 0
	items.Subscribe(func([]string) { count++ })

	// A fresh but equal slice must not re-emit.
	s.Update(func(c cart) cart {
		c.Items = append([]string(nil), c.Items...)
		return c
	})
	if count != 1 {
		t.Errorf("expected deep-equal slices suppressed, got %d emissions", count)
	}

	s.Update(func(c cart) cart {
		c.Items = append(c.Items, "new")
		return c
	})
	if count != 2 {
		t.Errorf("expected emission on real change, got %d", count)
	}
}

func TestSelectGetWithoutSubscription(t *testing.T) {
	rt := NewRuntime()
	s := newCart(t, rt)

	notes := Select(s, func(c cart) string { return c.Note })
	if notes.Get() != "" {
		t.Errorf("expected empty note, got %q", notes.Get())
	}

	s.Patch(map[string]any{"Note": "hi"})
	if notes.Get() != "hi" {
		t.Errorf("expected hi, got %q", notes.Get())
	}
}

func TestSelectUnsubscribeStopsEmissions(t *testing.T) {
	rt := NewRuntime()
	s := newCart(t, rt)

	totals := Select(s, func(c cart) int { return c.Total })

	count := 0
	stop := totals.Subscribe(func(int) { count++ })
	stop()

	s.Patch(map[string]any{"Total": 42})
	if count != 1 {
		t.Errorf("expected only the initial emission, got %d", count)
	}
}

func TestSelectIndependentSubscribers(t *testing.T) {
	rt := NewRuntime()
	s := newCart(t, rt)

	totals := Select(s, func(c cart) int { return c.Total })

	var a, b []int
	totals.Subscribe(func(v int) { a = append(a, v) })
	stopB := totals.Subscribe(func(v int) { b = append(b, v) })

	s.Patch(map[string]any{"Total": 20})
	stopB()
	s.Patch(map[string]any{"Total": 30})

	if len(a) != 3 {
		t.Errorf("expected a to see 3 emissions, got %v", a)
	}
	if len(b) != 2 {
		t.Errorf("expected b to see 2 emissions, got %v", b)
	}
}

// A Set that lands between the start of Subscribe and the initial delivery
// must still reach the subscriber. The projection signals its first
// evaluation, which by then can only happen with the listener already
// registered; a writer squeezes a publish into exactly that window.
func TestSelectObservesSetDuringSubscribe(t *testing.T) {
	rt := NewRuntime()
	s := newCart(t, rt)

	firstProj := make(chan struct{}, 1)
	totals := Select(s, func(c cart) int {
		select {
		case firstProj <- struct{}{}:
		default:
		}
		return c.Total
	})

	published := make(chan struct{})
	go func() {
		<-firstProj
		s.Patch(map[string]any{"Total": 99})
		close(published)
	}()

	var mu sync.Mutex
	var got []int
	unsub := totals.Subscribe(func(v int) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	})
	defer unsub()
	<-published

	mu.Lock()
	defer mu.Unlock()
	if len(got) == 0 || got[len(got)-1] != 99 {
		t.Errorf("expected final emission 99, got %v", got)
	}
}
