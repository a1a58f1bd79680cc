package store

import (
	"reflect"
	"sync"
)

// Selection is a derived, read-only projection of a store's state. It is a
// free-standing handle rather than a method because Go methods cannot
// introduce the projected type parameter.
type Selection[U any] struct {
	get       func() U
	subscribe func(fn func(U)) func()
}

// Select builds a distinct-until-changed projection of s. Each Subscribe
// delivers the current projected value immediately, then again only when
// the projection actually changes — publishes that leave it value-equal are
// suppressed.
func Select[T, U any](s *Store[T], proj func(T) U) *Selection[U] {
	return &Selection[U]{
		get: func() U {
			return proj(s.Snapshot())
		},
		subscribe: func(fn func(U)) func() {
			var mu sync.Mutex
			var last U
			var lastVer uint64
			primed := false

			deliver := func(next U, ver uint64) {
				mu.Lock()
				if primed && ver <= lastVer {
					mu.Unlock()
					return
				}
				changed := !primed || !equalValues(last, next)
				lastVer = ver
				if changed {
					last = next
				}
				primed = true
				mu.Unlock()
				if changed {
					fn(next)
				}
			}

			// Register before the initial delivery so a publish racing the
			// subscription is observed; the version guard discards the
			// initial read if a newer snapshot already arrived through the
			// listener.
			unsub := s.subscribe(func(snap T, ver uint64) {
				deliver(proj(snap), ver)
			})
			snap, ver := s.snapshotVersion()
			deliver(proj(snap), ver)
			return unsub
		},
	}
}

// Get returns the current projected value without subscribing.
func (sel *Selection[U]) Get() U {
	return sel.get()
}

// Subscribe registers fn, invoking it once immediately with the current
// projection and then on every change. Delivery is synchronous on the
// publisher's goroutine; fn must not block. The returned function stops the
// subscription.
func (sel *Selection[U]) Subscribe(fn func(U)) (unsubscribe func()) {
	return sel.subscribe(fn)
}

// equalValues reports value equality for deduplication: == when the dynamic
// type is comparable, reflect.DeepEqual otherwise (slices, maps, structs
// holding them).
func equalValues(a, b any) bool {
	ta := reflect.TypeOf(a)
	if ta != nil && ta == reflect.TypeOf(b) && ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
