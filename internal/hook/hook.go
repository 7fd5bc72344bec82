// Package hook implements the proxy's per-packet interception pipeline:
// an ordered, priority-sorted chain of handlers attached to a
// (Direction, packet type) pair, executed sequentially and able to
// mutate, suppress, or let through the packet under inspection.
package hook

import (
	"container/list"
	"context"

	"github.com/wiretap-proxy/wiretap/pkg/packet"
)

// Direction identifies which hook table a hook is attached to.
type Direction string

// The three directions a hook may scope to.
const (
	ClientToServer Direction = "client_to_server"
	ServerToClient Direction = "server_to_client"
	Local          Direction = "local"
)

// Action is returned by a handler to control pipeline continuation and
// whether the packet under inspection is forwarded.
type Action int

const (
	// Continue proceeds to the next hook in the list.
	Continue Action = iota
	// CancelHooks stops the traversal but still forwards the packet.
	CancelHooks
	// Cancel stops the traversal and suppresses forwarding.
	Cancel
)

// Event is the mutable context passed through a single pipeline traversal.
// Handlers may mutate Data in place; the mutation is what gets forwarded.
type Event struct {
	Type      string
	Direction Direction
	Data      packet.Value
}

// HandlerFunc is a hook's interception logic. The returned Action tells
// the pipeline how to proceed; an error aborts the traversal (the packet
// is not forwarded) and propagates to the caller of Execute.
type HandlerFunc func(ctx context.Context, ev *Event) (Action, error)

const defaultPriority = 100

// Hook is a single registered interceptor. Hooks are created by
// Pipeline.Register and destroyed by Pipeline.Unregister (or by the
// owning module's unload, which calls Unregister for each of its hooks).
type Hook struct {
	scope    Direction
	typ      string
	priority int
	handler  HandlerFunc
	owner    string

	pipeline *Pipeline
	elem     *list.Element // position within its ordered list; nil once unregistered
}

// Scope returns the direction this hook is attached to.
func (h *Hook) Scope() Direction { return h.scope }

// Type returns the packet type this hook is attached to.
func (h *Hook) Type() string { return h.typ }

// Priority returns the hook's ordering key. Lower runs first.
func (h *Hook) Priority() int { return h.priority }

// Owner returns the name of the module that registered this hook, or ""
// if it was registered outside a module's helper.
func (h *Hook) Owner() string { return h.owner }
