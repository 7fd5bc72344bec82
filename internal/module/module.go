// Package module implements the proxy's runtime-extensible module system:
// import, load, unload and hot-reload of units of behavior that register
// hooks into the pipeline and commands into the registry, per spec.md §4.D.
//
// Go cannot evict and reload arbitrary compiled code from a running
// process the way a dynamic-language runtime can. This package realizes
// spec.md §9's suggested strategy instead: modules are registered as named
// factories (a "plug-in ABI"), and "re-importing from the same origin
// path" means re-invoking the factory the origin path resolves to. This
// is sufficient to exercise the full state-migration and
// version-chain machinery the spec actually tests (§8, scenarios S4/S7).
package module

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wiretap-proxy/wiretap/internal/command"
	"github.com/wiretap-proxy/wiretap/internal/hook"
)

// Module is a unit of dynamically-loadable proxy behavior.
type Module interface {
	// Name returns the module's self-declared, registry-unique name.
	Name() string

	// OnLoad is called when the module transitions into the loaded state.
	// reloading is true when this call is part of a Reload rather than a
	// fresh Load. rt exposes the helpers used to register hooks/commands
	// so the registry can track (and later release) what this module owns.
	OnLoad(ctx context.Context, rt *Runtime, reloading bool) error

	// OnUnload is called before a module's owned hooks/commands are
	// released, either by an explicit Unload or as the first step of a
	// Reload (reloading=true).
	OnUnload(ctx context.Context, reloading bool) error
}

// Configurable is implemented by modules that accept per-module
// configuration (spec.md §6: proxy.config.module_config[name]).
type Configurable interface {
	Configure(raw []byte) error
}

// StatePreserver is implemented by modules that carry state across a
// reload. StatePreserveKeys names the attributes that transfer verbatim
// from the old instance to the new one (spec.md §3, §4.D step 5); it is
// the module's responsibility to list only keys whose values remain
// meaningful across versions.
type StatePreserver interface {
	StatePreserveKeys() []string
	GetState(key string) (any, bool)
	SetState(key string, value any) error
}

// CallbackProvider is implemented by modules that expose long-lived named
// callbacks (e.g. timer bodies) that must keep working, redirected to the
// latest version, across a reload. See Handle.BindCallback.
type CallbackProvider interface {
	Callback(key string) func(ctx context.Context)
}

// Factory instantiates a fresh Module value.
type Factory func() Module

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register adds a named factory to the process-wide factory table. It
// panics on a duplicate name; intended to be called from init().
func Register(name string, f Factory) {
	if name == "" {
		panic("module: factory name must not be empty")
	}
	if f == nil {
		panic(fmt.Sprintf("module: factory %q must not be nil", name))
	}

	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("module: factory already registered: %s", name))
	}
	factories[name] = f
}

func lookupFactory(name string) (Factory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

// Factories returns the names of all statically-registered factories,
// sorted.
func Factories() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resetFactories clears the factory table. Only for testing.
func resetFactories() {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories = make(map[string]Factory)
}

// Runtime is handed to Module.OnLoad so the module can register hooks and
// commands that the owning Handle tracks for release on unload.
type Runtime struct {
	handle   *Handle
	Hooks    *hook.Pipeline
	Commands *command.Registry
}

// RegisterHook registers a hook and records it as owned by this module.
func (rt *Runtime) RegisterHook(scope hook.Direction, typ string, priority int, fn hook.HandlerFunc) *hook.Hook {
	h := rt.Hooks.Register(scope, typ, priority, rt.handle.name, fn)
	rt.handle.hooks = append(rt.handle.hooks, h)
	return h
}

// RegisterCommand registers a command and records it as owned by this
// module.
func (rt *Runtime) RegisterCommand(desc command.Descriptor) (*command.Command, error) {
	cmd, err := rt.Commands.Register(desc)
	if err != nil {
		return nil, err
	}
	rt.handle.commands = append(rt.handle.commands, cmd)
	return cmd, nil
}

// Handle returns the Handle this Runtime is bound to, for modules that
// need bind_callback-style forwarding (see Handle.BindCallback).
func (rt *Runtime) Handle() *Handle { return rt.handle }
