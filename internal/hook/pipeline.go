package hook

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wiretap-proxy/wiretap/pkg/packet"
)

type tableKey struct {
	scope Direction
	typ   string
}

// Pipeline is the proxy's single hook table: one ordered list per
// (Direction, packet type). Registration/unregistration take a write lock;
// Execute snapshots the relevant list under a read lock and then runs
// handlers sequentially, unlocked, so a handler may itself register or
// unregister hooks without deadlocking.
type Pipeline struct {
	mu     sync.RWMutex
	lists  map[tableKey]*list.List
	logger *slog.Logger
}

// NewPipeline creates an empty hook pipeline.
func NewPipeline(logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		lists:  make(map[tableKey]*list.List),
		logger: logger,
	}
}

// Register inserts a new hook for (scope, typ). The hook is placed after
// all existing hooks of priority <= priority and before all hooks of
// priority > priority: lower priority runs first, ties preserve
// registration order. Callers wanting the spec default (100) should use
// RegisterDefault.
func (p *Pipeline) Register(scope Direction, typ string, priority int, owner string, handler HandlerFunc) *Hook {
	p.mu.Lock()
	defer p.mu.Unlock()

	h := &Hook{
		scope:    scope,
		typ:      typ,
		priority: priority,
		handler:  handler,
		owner:    owner,
		pipeline: p,
	}

	key := tableKey{scope, typ}
	l, ok := p.lists[key]
	if !ok {
		l = list.New()
		p.lists[key] = l
	}

	// Walk from the back: insert after the last element whose priority is
	// <= h.priority. This yields stable ordering for ties (new equal-priority
	// hook lands after existing equals) while keeping ascending priority order.
	var target *list.Element
	for e := l.Back(); e != nil; e = e.Prev() {
		if e.Value.(*Hook).priority <= h.priority {
			target = e
			break
		}
	}
	if target != nil {
		h.elem = l.InsertAfter(h, target)
	} else {
		h.elem = l.PushFront(h)
	}
	return h
}

// RegisterDefault registers a hook with the spec-default priority (100).
func (p *Pipeline) RegisterDefault(scope Direction, typ string, owner string, handler HandlerFunc) *Hook {
	return p.Register(scope, typ, defaultPriority, owner, handler)
}

// Unregister removes a hook in O(1). Safe to call more than once; the
// second call is a no-op.
func (p *Pipeline) Unregister(h *Hook) {
	if h == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if h.elem == nil {
		return
	}
	key := tableKey{h.scope, h.typ}
	if l, ok := p.lists[key]; ok {
		l.Remove(h.elem)
		if l.Len() == 0 {
			delete(p.lists, key)
		}
	}
	h.elem = nil
}

// Execute runs every hook registered for (scope, typ) in priority order,
// awaiting each handler before advancing. It returns true if the packet
// should be forwarded, false if it was cancelled.
//
// The traversal runs over a snapshot of the list taken before the first
// handler is invoked, so no hook is visited twice. A hook unregistered by
// an earlier handler in the same pass is skipped; a handler that
// unregisters *itself* (or any already-visited hook) does not disturb the
// remaining traversal. Hooks registered during the pass, at any position,
// are not visited until the next Execute.
//
// A handler error aborts the traversal immediately: the packet is treated
// as not-forwarded and the error propagates to the caller. The pipeline's
// structure is left unchanged.
func (p *Pipeline) Execute(ctx context.Context, scope Direction, typ string, data packet.Value) (bool, error) {
	p.mu.RLock()
	l, ok := p.lists[tableKey{scope, typ}]
	var snapshot []*Hook
	if ok {
		snapshot = make([]*Hook, 0, l.Len())
		for e := l.Front(); e != nil; e = e.Next() {
			snapshot = append(snapshot, e.Value.(*Hook))
		}
	}
	p.mu.RUnlock()

	if len(snapshot) == 0 {
		return true, nil
	}

	ev := &Event{Type: typ, Direction: scope, Data: data}

	for _, h := range snapshot {
		// Skip hooks unregistered by an earlier handler in this same pass.
		if !p.stillRegistered(h) {
			continue
		}
		action, err := h.handler(ctx, ev)
		if err != nil {
			return false, fmt.Errorf("hook: handler for %s/%s (priority %d) failed: %w", scope, typ, h.priority, err)
		}
		switch action {
		case Continue:
			// fall through to next hook
		case CancelHooks:
			return true, nil
		case Cancel:
			return false, nil
		default:
			return false, fmt.Errorf("hook: handler for %s/%s returned unknown action %d", scope, typ, action)
		}
	}
	return true, nil
}

func (p *Pipeline) stillRegistered(h *Hook) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return h.elem != nil
}
