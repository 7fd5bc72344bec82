package module

import (
	"context"

	"github.com/wiretap-proxy/wiretap/internal/command"
	"github.com/wiretap-proxy/wiretap/internal/hook"
)

// Handle is a registry's bookkeeping record for one named module slot. It
// tracks what the currently-loaded Module instance owns (hooks, commands)
// and the version chain left behind by reloads (current/previous).
type Handle struct {
	name       string
	modulePath string
	module     Module
	loaded     bool

	hooks    []*hook.Hook
	commands []*command.Command

	// current points forward to the Handle that replaced this one across
	// a reload; previous points back. Only the two most recent versions
	// are ever linked at once — see Registry.Reload step 7, which
	// collapses the chain so a version older than "previous" is never
	// kept reachable (spec.md §4.D, §9: avoids unbounded retention of
	// superseded module instances).
	current  *Handle
	previous *Handle
}

// Name returns the handle's registry name.
func (h *Handle) Name() string { return h.name }

// Loaded reports whether OnLoad has run and OnUnload has not yet.
func (h *Handle) Loaded() bool { return h.loaded }

// Module returns the currently-held Module instance.
func (h *Handle) Module() Module { return h.module }

// BindCallback returns a callback that forwards to the latest version of
// this module's CallbackProvider.Callback(key), walking the current chain
// to its end at call time rather than at bind time. This is how a
// long-lived timer registered by module version N keeps firing against
// module version N+2's logic after two reloads (spec.md §9: "bind_callback
// forwards to the latest loaded version").
func (h *Handle) BindCallback(key string) func(ctx context.Context) {
	return func(ctx context.Context) {
		latest := h.latest()
		cp, ok := latest.module.(CallbackProvider)
		if !ok {
			return
		}
		if cb := cp.Callback(key); cb != nil {
			cb(ctx)
		}
	}
}

// latest walks the current chain to the handle's newest surviving version.
func (h *Handle) latest() *Handle {
	cur := h
	for cur.current != nil {
		cur = cur.current
	}
	return cur
}
