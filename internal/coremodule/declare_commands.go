package coremodule

import (
	"context"
	"fmt"

	"github.com/wiretap-proxy/wiretap/internal/command"
	"github.com/wiretap-proxy/wiretap/internal/hook"
	"github.com/wiretap-proxy/wiretap/pkg/packet"
)

// encodeDeclareCommands builds the structured packet.Value form of a
// declare_commands payload from a flat serialized node list. Exact varint
// and byte-level wire framing is the codec's job (spec.md §6); this only
// shapes the tree the codec encodes from.
func encodeDeclareCommands(nodes []command.SerializedNode, rootIndex int) packet.Value {
	wireNodes := make([]packet.Value, len(nodes))
	for i, n := range nodes {
		children := make([]packet.Value, len(n.Children))
		for j, c := range n.Children {
			children[j] = packet.Int64(int64(c))
		}
		wireNodes[i] = packet.Map(map[string]packet.Value{
			"flags":      packet.Int64(int64(n.Flags)),
			"children":   packet.List(children...),
			"redirect":   packet.Int64(int64(n.Redirect)),
			"name":       packet.String(n.Name),
			"parser":     packet.String(n.Parser),
			"properties": packet.Bytes(n.ParserProperties),
			"suggests":   packet.String(string(n.Suggests)),
		})
	}
	return packet.Map(map[string]packet.Value{
		"nodes":     packet.List(wireNodes...),
		"rootIndex": packet.Int64(int64(rootIndex)),
	})
}

// decodeDeclareCommands is the inverse of encodeDeclareCommands, used to
// parse the server's declare_commands payload back into a node list.
func decodeDeclareCommands(v packet.Value) ([]command.SerializedNode, int, error) {
	nodesVal, ok := v.Get("nodes")
	if !ok {
		return nil, 0, fmt.Errorf("declare_commands: missing nodes")
	}
	rootVal, ok := v.Get("rootIndex")
	if !ok {
		return nil, 0, fmt.Errorf("declare_commands: missing rootIndex")
	}
	rootIndex, _ := rootVal.Int64()

	wireNodes, _ := nodesVal.List()
	out := make([]command.SerializedNode, len(wireNodes))
	for i, wn := range wireNodes {
		flagsVal, _ := wn.Get("flags")
		flags, _ := flagsVal.Int64()

		childrenVal, _ := wn.Get("children")
		childrenList, _ := childrenVal.List()
		children := make([]int, len(childrenList))
		for j, c := range childrenList {
			cv, _ := c.Int64()
			children[j] = int(cv)
		}

		redirectVal, _ := wn.Get("redirect")
		redirect, _ := redirectVal.Int64()

		nameVal, _ := wn.Get("name")
		name, _ := nameVal.String()

		parserVal, _ := wn.Get("parser")
		parser, _ := parserVal.String()

		propsVal, _ := wn.Get("properties")
		props, _ := propsVal.Bytes()

		suggestsVal, _ := wn.Get("suggests")
		suggests, _ := suggestsVal.String()

		out[i] = command.SerializedNode{
			Flags:            byte(flags),
			Children:         children,
			Redirect:         int(redirect),
			Name:             name,
			Parser:           parser,
			ParserProperties: props,
			Suggests:         command.SuggestionProvider(suggests),
		}
	}
	return out, int(rootIndex), nil
}

// handleDeclareCommands deserializes the server's graph, merges in the
// locally-registered commands (spec.md §4.B), cancels the original
// packet, and injects the merged graph to the client.
func (m *Module) handleDeclareCommands(ctx context.Context, ev *hook.Event) (hook.Action, error) {
	nodes, rootIdx, err := decodeDeclareCommands(ev.Data)
	if err != nil {
		return hook.Continue, fmt.Errorf("core: decode declare_commands: %w", err)
	}
	graph, err := command.Deserialize(nodes, rootIdx)
	if err != nil {
		return hook.Continue, fmt.Errorf("core: deserialize declare_commands: %w", err)
	}

	m.mergeLocalCommands(graph)
	m.commandGraph = graph

	if err := m.sendCommandGraph(ctx); err != nil {
		return hook.Continue, fmt.Errorf("core: resend declare_commands: %w", err)
	}
	return hook.Cancel, nil
}

// mergeLocalCommands implements spec.md §4.B's merge: remove every
// previously-tracked local node from graph.Root.Children, recompute the
// set from the command registry's autocomplete roots, and add each back.
// The identity-keyed set makes repeated merges idempotent.
func (m *Module) mergeLocalCommands(graph *command.Graph) {
	for n := range m.localCommandNodes {
		graph.Root.RemoveChild(n)
	}

	fresh := m.deps.Commands.AutocompleteNodes()
	m.localCommandNodes = make(map[*command.Node]struct{}, len(fresh))
	for _, n := range fresh {
		if !graph.Root.HasChild(n) {
			graph.Root.AddChild(n)
		}
		m.localCommandNodes[n] = struct{}{}
	}
}
