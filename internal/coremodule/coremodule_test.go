package coremodule

import (
	"context"
	"log/slog"
	"testing"

	"github.com/wiretap-proxy/wiretap/internal/command"
	"github.com/wiretap-proxy/wiretap/internal/hook"
	"github.com/wiretap-proxy/wiretap/internal/module"
	"github.com/wiretap-proxy/wiretap/internal/proxy"
	"github.com/wiretap-proxy/wiretap/internal/proxy/proxytest"
	"github.com/wiretap-proxy/wiretap/pkg/packet"
)

type noopReplier struct{ replies []string }

func (r *noopReplier) ReplyChat(_ context.Context, message string) error {
	r.replies = append(r.replies, message)
	return nil
}
func (r *noopReplier) SendServerChat(context.Context, string) error { return nil }

func newTestModule(t *testing.T) (*Module, *module.Runtime, *noopReplier, *proxytest.FakeTransport) {
	t.Helper()
	hooks := hook.NewPipeline(slog.Default())
	replier := &noopReplier{}
	cmds := command.NewRegistry("/p:", replier)
	conn := proxy.NewConnection(hooks, slog.Default())
	client := proxytest.New()
	if err := conn.AcceptClient(context.Background(), client); err != nil {
		t.Fatalf("AcceptClient() error = %v", err)
	}

	deps := Dependencies{Commands: cmds, Conn: conn, Logger: slog.Default()}

	factoryKey := "coremodule-test-core-" + t.Name()
	reg := module.NewRegistry(hooks, cmds, nil)
	module.Register(factoryKey, NewFactory(deps))

	if _, err := reg.Import(module.CoreModuleName, factoryKey, nil); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if err := reg.Load(context.Background(), module.CoreModuleName); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	h, _ := reg.Get(module.CoreModuleName)
	mod := h.Module().(*Module)

	return mod, nil, replier, client
}

func TestModule_ChatCommandCancelsForward(t *testing.T) {
	t.Parallel()

	mod, _, replier, _ := newTestModule(t)
	_ = mod

	ev := &hook.Event{Type: "chat", Direction: hook.ClientToServer, Data: packet.String("/p:module")}
	action, err := mod.handleClientChat(context.Background(), ev)
	if err != nil {
		t.Fatalf("handleClientChat() error = %v", err)
	}
	if action != hook.Cancel {
		t.Fatalf("action = %v, want Cancel", action)
	}
	if len(replier.replies) != 1 {
		t.Fatalf("replies = %v, want one reply (module management unavailable)", replier.replies)
	}
}

func TestModule_ChatPassthroughForUnprefixedMessage(t *testing.T) {
	t.Parallel()

	mod, _, _, _ := newTestModule(t)

	ev := &hook.Event{Type: "chat", Direction: hook.ClientToServer, Data: packet.String("hello world")}
	action, err := mod.handleClientChat(context.Background(), ev)
	if err != nil {
		t.Fatalf("handleClientChat() error = %v", err)
	}
	if action != hook.Continue {
		t.Fatalf("action = %v, want Continue", action)
	}
}

func TestModule_ClientKeepAliveMismatchWarnsButAlwaysCancels(t *testing.T) {
	t.Parallel()

	mod, _, _, _ := newTestModule(t)
	mod.lastSentHigh, mod.lastSentLow = 7, 9
	mod.hasSentKeepAlive = true

	ev := &hook.Event{
		Type:      "keep_alive",
		Direction: hook.ClientToServer,
		Data: packet.Map(map[string]packet.Value{
			"high": packet.Int64(7),
			"low":  packet.Int64(10), // mismatched
		}),
	}
	action, err := mod.handleClientKeepAlive(context.Background(), ev)
	if err != nil {
		t.Fatalf("handleClientKeepAlive() error = %v", err)
	}
	if action != hook.Cancel {
		t.Fatalf("action = %v, want Cancel", action)
	}
	if mod.hasSentKeepAlive {
		t.Fatal("hasSentKeepAlive should be cleared after handling the echo")
	}
}

// TestModule_DeclareCommandsMergesLocalCommands exercises S3: a server
// declare_commands packet naming one command ("say") must come back to
// the client merged with the locally-registered "foo" command's
// autocomplete root (namespaced to "p:foo" under the "/p:" prefix), and
// the original packet must not be forwarded.
func TestModule_DeclareCommandsMergesLocalCommands(t *testing.T) {
	t.Parallel()

	hooks := hook.NewPipeline(nil)
	replier := &noopReplier{}
	cmds := command.NewRegistry("/p:", replier)
	conn := proxy.NewConnection(hooks, nil)
	client := proxytest.New()
	server := proxytest.New()
	ctx := context.Background()
	_ = conn.AcceptClient(ctx, client)
	_ = conn.BeginUpstreamConnect(ctx)
	_ = conn.CompleteUpstreamConnect(ctx, server, nil)

	if _, err := cmds.Register(command.Descriptor{
		Name:         "foo",
		Autocomplete: command.NewLiteral("foo"),
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	deps := Dependencies{Commands: cmds, Conn: conn}
	mod := NewFactory(deps)().(*Module)

	serverGraph := command.NewGraph()
	serverGraph.Root.AddChild(command.NewLiteral("say"))
	nodes, rootIdx, err := command.Serialize(serverGraph)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	ev := &hook.Event{
		Type:      "declare_commands",
		Direction: hook.ServerToClient,
		Data:      encodeDeclareCommands(nodes, rootIdx),
	}
	action, err := mod.handleDeclareCommands(ctx, ev)
	if err != nil {
		t.Fatalf("handleDeclareCommands() error = %v", err)
	}
	if action != hook.Cancel {
		t.Fatalf("action = %v, want Cancel (original packet must not forward)", action)
	}

	if len(client.Written) != 1 || client.Written[0].Name != "declare_commands" {
		t.Fatalf("client.Written = %+v, want one merged declare_commands", client.Written)
	}

	sentNodes, sentRoot, err := decodeDeclareCommands(client.Written[0].Data)
	if err != nil {
		t.Fatalf("decodeDeclareCommands() error = %v", err)
	}
	merged, err := command.Deserialize(sentNodes, sentRoot)
	if err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}

	names := make(map[string]bool, len(merged.Root.Children))
	for _, c := range merged.Root.Children {
		names[c.Name] = true
	}
	if !names["say"] {
		t.Fatalf("merged root children = %v, want to include server's \"say\"", names)
	}
	if !names["p:foo"] {
		t.Fatalf("merged root children = %v, want to include namespaced \"p:foo\"", names)
	}
	if len(names) != 2 {
		t.Fatalf("merged root children = %v, want exactly {say, p:foo}", names)
	}
}

func TestModule_ServerKeepAliveEchoesAndCancels(t *testing.T) {
	t.Parallel()

	hooks := hook.NewPipeline(nil)
	cmds := command.NewRegistry("/p:", &noopReplier{})
	conn := proxy.NewConnection(hooks, nil)
	client := proxytest.New()
	server := proxytest.New()
	ctx := context.Background()
	_ = conn.AcceptClient(ctx, client)
	_ = conn.BeginUpstreamConnect(ctx)
	_ = conn.CompleteUpstreamConnect(ctx, server, nil)

	deps := Dependencies{Commands: cmds, Conn: conn}
	mod := NewFactory(deps)().(*Module)

	ev := &hook.Event{Type: "keep_alive", Direction: hook.ServerToClient, Data: packet.Int64(99)}
	action, err := mod.handleServerKeepAlive(ctx, ev)
	if err != nil {
		t.Fatalf("handleServerKeepAlive() error = %v", err)
	}
	if action != hook.Cancel {
		t.Fatalf("action = %v, want Cancel", action)
	}
	if len(server.Written) != 1 || server.Written[0].Name != "keep_alive" {
		t.Fatalf("server.Written = %+v, want one echoed keep_alive", server.Written)
	}
	mod.clearServerKeepAliveTimeout()
}
