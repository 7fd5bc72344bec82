package module

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/wiretap-proxy/wiretap/internal/command"
	"github.com/wiretap-proxy/wiretap/internal/hook"
)

// Registry is the proxy-wide module lifecycle manager: it owns the set of
// imported Handles and drives Import/Load/Unload/Reload per spec.md §4.D.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*Handle

	hooks    *hook.Pipeline
	commands *command.Registry
	logger   *slog.Logger
}

// NewRegistry creates an empty module registry wired to the proxy's shared
// hook pipeline and command registry.
func NewRegistry(hooks *hook.Pipeline, commands *command.Registry, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handles:  make(map[string]*Handle),
		hooks:    hooks,
		commands: commands,
		logger:   logger,
	}
}

// Import resolves modulePath to a registered factory and instantiates it,
// creating (but not loading) a new Handle. Since a Go process cannot dlopen
// arbitrary code, modulePath is a logical key into the static factory table
// populated by Register/init(), not a filesystem path to compiled code
// (spec.md §9's documented plugin-ABI substitution). raw, if non-nil, is
// passed to the module's Configure method when it implements Configurable.
func (reg *Registry) Import(name, modulePath string, raw []byte) (*Handle, error) {
	factory, ok := lookupFactory(modulePath)
	if !ok {
		return nil, fmt.Errorf("%w: no factory registered for path %q", ErrUnknownName, modulePath)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.handles[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}

	mod := factory()
	if raw != nil {
		if cfg, ok := mod.(Configurable); ok {
			if err := cfg.Configure(raw); err != nil {
				return nil, fmt.Errorf("module %s: configure: %w", name, err)
			}
		}
	}

	h := &Handle{name: name, modulePath: modulePath, module: mod}
	reg.handles[name] = h
	return h, nil
}

// Get returns the Handle registered under name.
func (reg *Registry) Get(name string) (*Handle, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	h, ok := reg.handles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownName, name)
	}
	return h, nil
}

// Names returns all currently-imported handle names.
func (reg *Registry) Names() []string {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	names := make([]string, 0, len(reg.handles))
	for n := range reg.handles {
		names = append(names, n)
	}
	return names
}

// Load transitions an imported-but-unloaded module into the loaded state,
// registering its hooks and commands via OnLoad.
func (reg *Registry) Load(ctx context.Context, name string) error {
	h, err := reg.Get(name)
	if err != nil {
		return err
	}
	if h.loaded {
		return fmt.Errorf("%w: %s already loaded", ErrInvalidState, name)
	}

	rt := &Runtime{handle: h, Hooks: reg.hooks, Commands: reg.commands}
	if err := h.module.OnLoad(ctx, rt, false); err != nil {
		return fmt.Errorf("module %s: OnLoad: %w", name, err)
	}
	h.loaded = true
	reg.logger.Info("module loaded", "module", name)
	return nil
}

// Unload reverses Load: it calls OnUnload and releases every hook and
// command the module registered through its Runtime. Unloading the core
// module with reloading=false is refused (spec.md §7): the core module
// wires the baseline connection lifecycle and chat-command dispatch, so an
// explicit unload of it outside a reload would leave the proxy without a
// working command path.
func (reg *Registry) Unload(ctx context.Context, name string, reloading bool) error {
	h, err := reg.Get(name)
	if err != nil {
		return err
	}
	if !h.loaded {
		return fmt.Errorf("%w: %s not loaded", ErrInvalidState, name)
	}
	if name == CoreModuleName && !reloading {
		return fmt.Errorf("%w: cannot unload core module outside of a reload", ErrInvalidState)
	}

	if err := h.module.OnUnload(ctx, reloading); err != nil {
		return fmt.Errorf("module %s: OnUnload: %w", name, err)
	}
	reg.releaseOwned(h)
	h.loaded = false
	reg.logger.Info("module unloaded", "module", name, "reloading", reloading)
	return nil
}

func (reg *Registry) releaseOwned(h *Handle) {
	for _, hk := range h.hooks {
		reg.hooks.Unregister(hk)
	}
	h.hooks = nil
	for _, cmd := range h.commands {
		_ = cmd.Unregister()
	}
	h.commands = nil
}

// Reload re-imports name from its original module path, migrates state
// from the old instance, and splices the new Handle into the registry,
// implementing spec.md §4.D's eight-step reload algorithm:
//
//  1. Locate the existing handle and its origin module path.
//  2. Re-import a fresh module instance from that same path.
//  3. Unload the old instance (OnUnload(ctx, reloading=true)); its hooks
//     and commands are released.
//  4. Migrate state: for every key the old module's StatePreserver
//     declares, read it from the old instance and write it into the new
//     one, when both implement StatePreserver.
//  5. Load the new instance (OnLoad(ctx, rt, reloading=true)), registering
//     its hooks/commands under the *new* Handle.
//  6. Splice the version chain: old.current = new.
//  7. Collapse the chain: if old.previous is non-nil, clear it, so the
//     handle two generations back drops out of the chain entirely; at
//     most two versions (new and its immediate predecessor) are ever
//     mutually linked. BindCallback still reaches the latest version from
//     any older handle by walking the unbroken current chain.
//  8. Record new.previous = old, and replace the registry's name -> handle
//     mapping with the new handle.
func (reg *Registry) Reload(ctx context.Context, name string) error {
	old, err := reg.Get(name)
	if err != nil {
		return err
	}
	if !old.loaded {
		return fmt.Errorf("%w: %s not loaded", ErrInvalidState, name)
	}

	originPath := old.modulePath
	factory, ok := lookupFactory(originPath)
	if !ok {
		return fmt.Errorf("%w: no factory registered for path %q", ErrReloadFailure, originPath)
	}
	newMod := factory()

	if err := old.module.OnUnload(ctx, true); err != nil {
		return fmt.Errorf("%w: module %s: OnUnload: %w", ErrReloadFailure, name, err)
	}
	reg.releaseOwned(old)
	old.loaded = false

	if preserver, ok := old.module.(StatePreserver); ok {
		if newPreserver, ok := newMod.(StatePreserver); ok {
			for _, key := range preserver.StatePreserveKeys() {
				if v, found := preserver.GetState(key); found {
					if err := newPreserver.SetState(key, v); err != nil {
						return fmt.Errorf("%w: module %s: migrate state key %q: %w", ErrReloadFailure, name, key, err)
					}
				}
			}
		}
	}

	newHandle := &Handle{name: name, modulePath: originPath, module: newMod}
	rt := &Runtime{handle: newHandle, Hooks: reg.hooks, Commands: reg.commands}
	if err := newMod.OnLoad(ctx, rt, true); err != nil {
		return fmt.Errorf("%w: module %s: OnLoad: %w", ErrReloadFailure, name, err)
	}
	newHandle.loaded = true

	old.current = newHandle
	if old.previous != nil {
		// old is itself a reload survivor: drop its own link to its
		// predecessor so that predecessor becomes unreachable from the
		// chain (only new and old stay mutually linked after this).
		old.previous = nil
	}
	newHandle.previous = old

	reg.mu.Lock()
	reg.handles[name] = newHandle
	reg.mu.Unlock()

	reg.logger.Info("module reloaded", "module", name)
	return nil
}

// ChainViolations reports the names of handles whose previous-version
// chain is longer than the single link Reload's step 7 is supposed to
// maintain (old.previous.previous must always be nil). It exists as a
// defensive sanity sweep (SPEC_FULL.md §4.H's cron-driven GC job) — under
// the single-execution-context model (spec.md §5) Reload's collapse
// should make a violation unreachable, so finding one here indicates a
// bug rather than an expected runtime condition.
func (reg *Registry) ChainViolations() []string {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	var bad []string
	for name, h := range reg.handles {
		if h.previous != nil && h.previous.previous != nil {
			bad = append(bad, name)
		}
	}
	sort.Strings(bad)
	return bad
}
