// Package coremodule implements the always-loaded built-in module
// (spec.md §4.F): chat-command dispatch, the four connection lifecycle
// hooks, keepalive round-trip handling, and merging locally-registered
// commands into the server's declared command graph.
package coremodule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wiretap-proxy/wiretap/internal/command"
	"github.com/wiretap-proxy/wiretap/internal/hook"
	"github.com/wiretap-proxy/wiretap/internal/module"
	"github.com/wiretap-proxy/wiretap/internal/proxy"
	"github.com/wiretap-proxy/wiretap/pkg/packet"
)

// FactoryKey is the name the core module is registered under in the
// module factory table (module.Register), and conventionally also the
// handle name it is imported as (module.CoreModuleName).
const FactoryKey = "core"

const (
	clientKeepAliveCheckInterval = 15 * time.Second
	clientKeepAliveTimeout       = 20 * time.Second
	serverKeepAliveTimeout       = 30 * time.Second
)

// Dependencies are the shared services the core module wires into, owned
// by whatever assembles the proxy process (spec.md's "Proxy owns all
// registries").
type Dependencies struct {
	Commands *command.Registry
	Conn     *proxy.Connection
	Logger   *slog.Logger
}

// NewFactory returns a module.Factory that builds a *Module bound to deps.
// Registered once per process against module.Register(FactoryKey, ...).
func NewFactory(deps Dependencies) module.Factory {
	return func() module.Module {
		logger := deps.Logger
		if logger == nil {
			logger = slog.Default()
		}
		return &Module{deps: deps, logger: logger, localCommandNodes: make(map[*command.Node]struct{})}
	}
}

// Module is the core module instance.
type Module struct {
	deps   Dependencies
	logger *slog.Logger
	rt     *module.Runtime

	clientKeepAliveTicker  *time.Ticker
	clientKeepAliveStop    chan struct{}
	clientKeepAliveTimer   *time.Timer
	serverKeepAliveTimer   *time.Timer
	lastSentHigh, lastSentLow uint32
	hasSentKeepAlive       bool

	commandGraph      *command.Graph
	localCommandNodes map[*command.Node]struct{}

	moduleRegistry ModuleRegistry

	// boundKeepAliveCheck forwards to the latest reloaded version's
	// fireClientKeepAliveCheck, so a ticker goroutine started by an older
	// version keeps calling into whichever version is current.
	boundKeepAliveCheck func(ctx context.Context)
}

func (m *Module) Name() string { return module.CoreModuleName }

// OnLoad registers every hook and command described in spec.md §4.F.
func (m *Module) OnLoad(_ context.Context, rt *module.Runtime, _ bool) error {
	m.rt = rt
	m.boundKeepAliveCheck = rt.Handle().BindCallback("clientKeepAliveCheck")

	rt.RegisterHook(hook.ClientToServer, "chat", 100, m.handleClientChat)

	rt.RegisterHook(hook.Local, proxy.HookClientConnected, 100, m.handleClientConnected)
	rt.RegisterHook(hook.Local, proxy.HookClientDisconnected, 100, m.handleClientDisconnected)
	rt.RegisterHook(hook.Local, proxy.HookServerConnected, 100, m.handleServerConnected)
	rt.RegisterHook(hook.Local, proxy.HookServerDisconnected, 100, m.handleServerDisconnected)

	rt.RegisterHook(hook.ClientToServer, "keep_alive", 100, m.handleClientKeepAlive)
	rt.RegisterHook(hook.ServerToClient, "keep_alive", 100, m.handleServerKeepAlive)

	rt.RegisterHook(hook.ServerToClient, "declare_commands", 100, m.handleDeclareCommands)

	_, err := rt.RegisterCommand(command.Descriptor{
		Name:         "module",
		Description:  "Manage proxy modules: load, unload, reload, import.",
		Autocomplete: moduleCommandAutocomplete(),
		Handler:      m.handleModuleCommand,
	})
	return err
}

// moduleCommandAutocomplete builds the "module" command's autocomplete
// subtree: a literal per subcommand, each taking a name argument (import
// additionally takes a path argument), per spec.md §4.F.
func moduleCommandAutocomplete() *command.Node {
	root := command.NewLiteral("module")

	nameArg := func(executable bool) *command.Node {
		n := command.NewArgument("name", "brigadier:string")
		n.Executable = executable
		return n
	}

	for _, sub := range []string{"load", "unload", "reload"} {
		lit := command.NewLiteral(sub)
		lit.AddChild(nameArg(true))
		root.AddChild(lit)
	}

	importLit := command.NewLiteral("import")
	importName := nameArg(false)
	importPath := command.NewArgument("path", "brigadier:string")
	importPath.Executable = true
	importName.AddChild(importPath)
	importLit.AddChild(importName)
	root.AddChild(importLit)

	return root
}

// OnUnload clears any outstanding timers. During a reload it leaves them
// running: Reload migrates their handles via StatePreserver after this
// returns, and the ticker goroutine reaches the new version through its
// bound callback.
func (m *Module) OnUnload(_ context.Context, reloading bool) error {
	if reloading {
		return nil
	}
	m.clearClientKeepAlive()
	m.clearServerKeepAliveTimeout()
	return nil
}

func (m *Module) clearClientKeepAlive() {
	if m.clientKeepAliveTicker != nil {
		m.clientKeepAliveTicker.Stop()
		m.clientKeepAliveTicker = nil
	}
	if m.clientKeepAliveStop != nil {
		close(m.clientKeepAliveStop)
		m.clientKeepAliveStop = nil
	}
	if m.clientKeepAliveTimer != nil {
		m.clientKeepAliveTimer.Stop()
		m.clientKeepAliveTimer = nil
	}
}

func (m *Module) clearServerKeepAliveTimeout() {
	if m.serverKeepAliveTimer != nil {
		m.serverKeepAliveTimer.Stop()
		m.serverKeepAliveTimer = nil
	}
}

// handleClientChat cancels forwarding of any chat message the command
// registry claims as a command invocation.
func (m *Module) handleClientChat(ctx context.Context, ev *hook.Event) (hook.Action, error) {
	message, _ := ev.Data.String()
	handled, err := m.deps.Commands.Execute(ctx, message)
	if err != nil {
		return hook.Continue, fmt.Errorf("core: command dispatch: %w", err)
	}
	if handled {
		return hook.Cancel, nil
	}
	return hook.Continue, nil
}

// handleClientConnected starts the 15s client keepalive ticker.
func (m *Module) handleClientConnected(ctx context.Context, _ *hook.Event) (hook.Action, error) {
	m.clearClientKeepAlive()
	m.clientKeepAliveTicker = time.NewTicker(clientKeepAliveCheckInterval)
	m.clientKeepAliveStop = make(chan struct{})
	go m.runClientKeepAliveLoop(m.clientKeepAliveTicker, m.clientKeepAliveStop)

	if m.commandGraph != nil {
		if err := m.sendCommandGraph(ctx); err != nil {
			m.logger.Warn("core: failed to resend cached command graph", "error", err)
		}
	}
	return hook.Continue, nil
}

func (m *Module) runClientKeepAliveLoop(ticker *time.Ticker, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.boundKeepAliveCheck(context.Background())
		}
	}
}

func (m *Module) fireClientKeepAliveCheck(ctx context.Context) {
	high, low := proxy.SplitTimestamp(time.Now().UnixMilli())
	m.lastSentHigh, m.lastSentLow = high, low
	m.hasSentKeepAlive = true

	id := packet.Map(map[string]packet.Value{
		"high": packet.Int64(int64(high)),
		"low":  packet.Int64(int64(low)),
	})
	if err := m.deps.Conn.InjectClient(ctx, "keep_alive", id); err != nil {
		m.logger.Warn("core: failed to send client keep_alive", "error", err)
		return
	}

	if m.clientKeepAliveTimer != nil {
		m.clientKeepAliveTimer.Stop()
	}
	m.clientKeepAliveTimer = time.AfterFunc(clientKeepAliveTimeout, func() {
		m.logger.Warn("core: client keep_alive timed out")
	})
}

// handleClientKeepAlive compares the echoed id against the last sent
// value, clears the timeout, and always cancels forwarding (spec.md
// §4.E).
func (m *Module) handleClientKeepAlive(_ context.Context, ev *hook.Event) (hook.Action, error) {
	if !m.hasSentKeepAlive {
		m.logger.Warn("core: client keep_alive echo with none outstanding")
		return hook.Cancel, nil
	}
	highVal, _ := ev.Data.Get("high")
	lowVal, _ := ev.Data.Get("low")
	highRaw, _ := highVal.Int64()
	lowRaw, _ := lowVal.Int64()
	high, low := uint32(highRaw), uint32(lowRaw)
	if high != m.lastSentHigh || low != m.lastSentLow {
		m.logger.Warn("core: client keep_alive mismatch", "want_high", m.lastSentHigh, "want_low", m.lastSentLow, "got_high", high, "got_low", low)
	}
	if m.clientKeepAliveTimer != nil {
		m.clientKeepAliveTimer.Stop()
		m.clientKeepAliveTimer = nil
	}
	m.hasSentKeepAlive = false
	return hook.Cancel, nil
}

// handleServerConnected starts the 30s server keepalive timeout.
func (m *Module) handleServerConnected(_ context.Context, _ *hook.Event) (hook.Action, error) {
	m.resetServerKeepAliveTimeout()
	return hook.Continue, nil
}

func (m *Module) resetServerKeepAliveTimeout() {
	m.clearServerKeepAliveTimeout()
	m.serverKeepAliveTimer = time.AfterFunc(serverKeepAliveTimeout, func() {
		m.logger.Warn("core: server keep_alive timed out, tearing down upstream")
		m.deps.Conn.CloseServer()
	})
}

// handleServerKeepAlive echoes the payload back to the server and
// refreshes the timeout, always cancelling forwarding.
func (m *Module) handleServerKeepAlive(ctx context.Context, ev *hook.Event) (hook.Action, error) {
	if err := m.deps.Conn.InjectServer(ctx, "keep_alive", ev.Data); err != nil {
		return hook.Continue, fmt.Errorf("core: echo server keep_alive: %w", err)
	}
	m.resetServerKeepAliveTimeout()
	return hook.Cancel, nil
}

// handleClientDisconnected clears the client keepalive state.
func (m *Module) handleClientDisconnected(_ context.Context, _ *hook.Event) (hook.Action, error) {
	m.clearClientKeepAlive()
	m.hasSentKeepAlive = false
	return hook.Continue, nil
}

// handleServerDisconnected clears the server keepalive timeout and, per
// spec.md §4.F, nulls the cached command graph and local command node set.
func (m *Module) handleServerDisconnected(_ context.Context, _ *hook.Event) (hook.Action, error) {
	m.clearServerKeepAliveTimeout()
	m.commandGraph = nil
	m.localCommandNodes = make(map[*command.Node]struct{})
	return hook.Continue, nil
}

func (m *Module) sendCommandGraph(ctx context.Context) error {
	nodes, rootIdx, err := command.Serialize(m.commandGraph)
	if err != nil {
		return err
	}
	return m.deps.Conn.InjectClient(ctx, "declare_commands", encodeDeclareCommands(nodes, rootIdx))
}
