package store

import (
	"time"

	"github.com/tethys-org/store/pkg/dispatch"
	"github.com/tethys-org/store/pkg/registry"
)

// Runtime bundles the process-scoped services a store depends on: the
// instance registry, the action registry, the dispatcher, and the event
// hub. Stores are wired to a Runtime at construction rather than to ambient
// globals, so tests isolate by constructing their own.
type Runtime struct {
	instances  *registry.Instances
	actions    *registry.Actions
	dispatcher *dispatch.Dispatcher
	events     *Hub
}

// Default is the process-wide runtime used when construction does not
// override it with WithRuntime.
var Default = NewRuntime()

// NewRuntime creates an isolated runtime. Dispatch lifecycle events are
// bridged onto the runtime's event hub.
func NewRuntime() *Runtime {
	rt := &Runtime{
		instances:  registry.NewInstances(),
		actions:    registry.NewActions(),
		dispatcher: dispatch.New(),
		events:     NewHub(),
	}
	rt.dispatcher.Use(hubBridge{hub: rt.events})
	return rt
}

// Instances returns the runtime's instance registry.
func (rt *Runtime) Instances() *registry.Instances { return rt.instances }

// Actions returns the runtime's action registry.
func (rt *Runtime) Actions() *registry.Actions { return rt.actions }

// Dispatcher returns the runtime's dispatcher.
func (rt *Runtime) Dispatcher() *dispatch.Dispatcher { return rt.dispatcher }

// Events returns the runtime's event hub.
func (rt *Runtime) Events() *Hub { return rt.events }

// RegisterAction declares an action on the Default runtime at store-type
// definition time. Invocation happens separately, through Store.Dispatch.
func RegisterAction(typeName, actionName string, impl dispatch.ActionFunc) {
	Default.actions.Register(typeName, actionName, impl)
}

// Typed adapts a snapshot-typed implementation to the registry's
// type-erased ActionFunc. A snapshot of the wrong dynamic type yields the
// zero value.
func Typed[T any](impl func(snapshot T, payload any) (dispatch.Result, error)) dispatch.ActionFunc {
	return func(snapshot, payload any) (dispatch.Result, error) {
		snap, _ := snapshot.(T)
		return impl(snap, payload)
	}
}

// hubBridge republishes dispatcher lifecycle onto the event hub.
type hubBridge struct {
	hub *Hub
}

func (b hubBridge) DispatchStarted(info dispatch.Info) {
	b.hub.Publish(Event{
		Kind:    EventDispatchStarted,
		StoreID: info.StoreID,
		Action:  info.Action,
		Token:   info.Token,
	})
}

func (b hubBridge) DispatchSettled(info dispatch.Info, outcome dispatch.Outcome, err error, _ time.Duration) {
	ev := Event{
		Kind:    EventDispatchSettled,
		StoreID: info.StoreID,
		Action:  info.Action,
		Token:   info.Token,
		Outcome: outcome.String(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	b.hub.Publish(ev)
}
