// Package hooking lets observers attach to the instrumentation points of the
// actors without the actors knowing who listens.
package hooking

import "reflect"

// HookPos names a point in an actor's life where hooks are invoked.
type HookPos struct {
	Name string
}

// HookCtx describes the site that triggered a hook.
type HookCtx struct {
	// Domain is the object invoking the hook.
	Domain Hookable

	// Pos is where in the domain's lifecycle the hook fires.
	Pos *HookPos

	// Item is the primary subject of the hook, usually a progress or
	// statistics value owned by the domain at the time of the call.
	Item any

	// Detail is optional auxiliary data and may be nil.
	Detail any
}

// Hookable is an object that accepts hooks.
type Hookable interface {
	// Name identifies the domain in hook contexts.
	Name() string

	// AcceptHook registers a hook. Hooks must be registered before the
	// domain starts running and cannot be removed.
	AcceptHook(hook Hook)

	// NumHooks returns the number of hooks registered.
	NumHooks() int
}

// A Hook is invoked by a Hookable at its instrumentation points. Hooks run on
// the actor's goroutine and must return quickly.
type Hook interface {
	Func(ctx HookCtx)
}

// HookFunc adapts a plain function to the Hook interface.
type HookFunc func(ctx HookCtx)

// Func calls f(ctx).
func (f HookFunc) Func(ctx HookCtx) {
	f(ctx)
}

// HookableBase provides the hook bookkeeping for Hookable implementations.
type HookableBase struct {
	hookList []Hook
}

// NewHookableBase creates a HookableBase with no hooks.
func NewHookableBase() *HookableBase {
	return &HookableBase{hookList: make([]Hook, 0)}
}

// AcceptHook registers a hook. Registering the same hook twice panics.
// HookFunc values cannot be compared and are never treated as duplicates.
func (h *HookableBase) AcceptHook(hook Hook) {
	if reflect.TypeOf(hook).Comparable() {
		for _, existing := range h.hookList {
			if existing == hook {
				panic("duplicated hook")
			}
		}
	}

	h.hookList = append(h.hookList, hook)
}

// NumHooks returns the number of hooks registered.
func (h *HookableBase) NumHooks() int {
	return len(h.hookList)
}

// InvokeHook triggers all the registered hooks in registration order.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.hookList {
		hook.Func(ctx)
	}
}
