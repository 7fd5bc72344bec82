package coremodule

import (
	"context"
	"fmt"

	"github.com/wiretap-proxy/wiretap/internal/command"
	"github.com/wiretap-proxy/wiretap/internal/module"
)

// ModuleRegistry is the subset of module.Registry the built-in "module"
// command needs. Declared as an interface so this package doesn't force a
// hard dependency on module.Registry's concrete type from the core module
// instance, which is constructed before the full registry wiring is known.
type ModuleRegistry interface {
	Import(name, modulePath string, raw []byte) (*module.Handle, error)
	Load(ctx context.Context, name string) error
	Unload(ctx context.Context, name string, reloading bool) error
	Reload(ctx context.Context, name string) error
}

// SetModuleRegistry wires the module.Registry the "module" command
// controls. It may be called before or after OnLoad: the registry is read
// each time a module command runs, and a core module with no registry set
// reports module commands as unavailable rather than panicking.
func (m *Module) SetModuleRegistry(reg ModuleRegistry) {
	m.moduleRegistry = reg
}

// handleModuleCommand implements the built-in "module" command's
// load/unload/reload/import subcommands (spec.md §4.F).
func (m *Module) handleModuleCommand(ctx context.Context, cctx *command.Context) error {
	if m.moduleRegistry == nil {
		return cctx.Reply(ctx, "module management is not available")
	}
	if len(cctx.Args) < 2 {
		return cctx.Reply(ctx, "usage: module <load|unload|reload|import> <name> [path]")
	}

	sub := cctx.Args[1]
	switch sub {
	case "load":
		if len(cctx.Args) < 3 {
			return cctx.Reply(ctx, "usage: module load <name>")
		}
		if err := m.moduleRegistry.Load(ctx, cctx.Args[2]); err != nil {
			return cctx.Reply(ctx, fmt.Sprintf("load failed: %v", err))
		}
		return cctx.Reply(ctx, "loaded "+cctx.Args[2])

	case "unload":
		if len(cctx.Args) < 3 {
			return cctx.Reply(ctx, "usage: module unload <name>")
		}
		if err := m.moduleRegistry.Unload(ctx, cctx.Args[2], false); err != nil {
			return cctx.Reply(ctx, fmt.Sprintf("unload failed: %v", err))
		}
		return cctx.Reply(ctx, "unloaded "+cctx.Args[2])

	case "reload":
		if len(cctx.Args) < 3 {
			return cctx.Reply(ctx, "usage: module reload <name>")
		}
		if err := m.moduleRegistry.Reload(ctx, cctx.Args[2]); err != nil {
			return cctx.Reply(ctx, fmt.Sprintf("reload failed: %v", err))
		}
		return cctx.Reply(ctx, "reloaded "+cctx.Args[2])

	case "import":
		if len(cctx.Args) < 4 {
			return cctx.Reply(ctx, "usage: module import <name> <path>")
		}
		if _, err := m.moduleRegistry.Import(cctx.Args[2], cctx.Args[3], nil); err != nil {
			return cctx.Reply(ctx, fmt.Sprintf("import failed: %v", err))
		}
		return cctx.Reply(ctx, "imported "+cctx.Args[2])

	default:
		return cctx.Reply(ctx, "unknown subcommand: "+sub)
	}
}
