// Package hooking lets observers attach to the bridge and its devices without
// the observed code knowing about them.
package hooking

import "log"

// A HookPos names a site where hooks are invoked.
type HookPos struct {
	Name string
}

// HookCtx describes one invocation.
type HookCtx struct {
	// Domain is the object that invokes the hook.
	Domain Hookable

	// Pos is the site.
	Pos *HookPos

	// Item is what the site is about, for example a command.
	Item any

	// Detail carries extra information, for example a result.
	Detail any
}

// Hookable is an object that accepts hooks.
type Hookable interface {
	AcceptHook(hook Hook)
	NumHooks() int
	Hooks() []Hook
}

// A Hook is invoked by a hookable object.
type Hook interface {
	Func(ctx HookCtx)
}

// HookFunc turns a function into a Hook. Values of HookFunc cannot be
// compared, so the same function may be attached twice through two
// conversions.
type HookFunc func(ctx HookCtx)

// Func calls f.
func (f HookFunc) Func(ctx HookCtx) {
	f(ctx)
}

// HookableBase implements Hookable. Embed it by value.
type HookableBase struct {
	hooks []Hook
}

// NumHooks returns the number of hooks.
func (h *HookableBase) NumHooks() int {
	return len(h.hooks)
}

// Hooks returns the hooks in attachment order.
func (h *HookableBase) Hooks() []Hook {
	return h.hooks
}

// AcceptHook attaches a hook. Attaching the same hook twice is a programming
// error.
func (h *HookableBase) AcceptHook(hook Hook) {
	if _, isFunc := hook.(HookFunc); !isFunc {
		for _, existing := range h.hooks {
			if _, existingIsFunc := existing.(HookFunc); existingIsFunc {
				continue
			}

			if existing == hook {
				log.Panicf("hook %T attached twice", hook)
			}
		}
	}

	h.hooks = append(h.hooks, hook)
}

// InvokeHook calls every hook with ctx.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.hooks {
		hook.Func(ctx)
	}
}
