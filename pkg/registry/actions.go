package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tethys-org/store/pkg/dispatch"
)

// ErrActionNotFound is returned by Resolve for an unregistered action name.
// Dispatching an unknown action never silently no-ops: silent failure would
// hide wiring mistakes between callers and their stores.
var ErrActionNotFound = errors.New("store: action not found")

// Actions maps (store type, action name) to the registered implementation.
// Registration happens once at store-type definition time; every instance
// of a type shares one action set. Safe for concurrent use.
type Actions struct {
	mu     sync.RWMutex
	byType map[string]map[string]dispatch.ActionFunc
}

// NewActions creates an empty action registry.
func NewActions() *Actions {
	return &Actions{
		byType: make(map[string]map[string]dispatch.ActionFunc),
	}
}

// Register records impl under (typeName, actionName). Registration is
// idempotent per key; re-registering replaces the previous implementation,
// so declaration order at load time wins.
func (a *Actions) Register(typeName, actionName string, impl dispatch.ActionFunc) {
	if impl == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	byName := a.byType[typeName]
	if byName == nil {
		byName = make(map[string]dispatch.ActionFunc)
		a.byType[typeName] = byName
	}
	byName[actionName] = impl
}

// Resolve returns the implementation registered under (typeName,
// actionName), or an error wrapping ErrActionNotFound.
func (a *Actions) Resolve(typeName, actionName string) (dispatch.ActionFunc, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	impl := a.byType[typeName][actionName]
	if impl == nil {
		return nil, fmt.Errorf("%w: %q has no action %q", ErrActionNotFound, typeName, actionName)
	}
	return impl, nil
}
