package command

import "fmt"

// Graph owns a Root node of Kind Root and provides serialize/deserialize
// round-trips to the flat wire representation described in spec.md §6
// (the declare_commands packet's node list).
type Graph struct {
	Root *Node
}

// NewGraph creates a graph with a fresh Root.
func NewGraph() *Graph {
	return &Graph{Root: NewRoot()}
}

// flag bit layout, per spec.md §6:
//
//	bits [0:2] node_type (0=Root, 1=Literal, 2=Argument)
//	bit  2     has_command (Executable)
//	bit  3     has_redirect
//	bit  4     has_custom_suggestions
//	bits [5:7] reserved
const (
	flagNodeTypeMask     = 0x03
	flagHasCommand       = 1 << 2
	flagHasRedirect      = 1 << 3
	flagHasCustomSuggest = 1 << 4
)

func encodeFlags(n *Node, hasRedirect bool) byte {
	var f byte
	f |= byte(n.Kind) & flagNodeTypeMask
	if n.Executable {
		f |= flagHasCommand
	}
	if hasRedirect {
		f |= flagHasRedirect
	}
	if n.HasSuggests {
		f |= flagHasCustomSuggest
	}
	return f
}

func decodeFlags(f byte) (kind Kind, executable, hasRedirect, hasCustomSuggest bool) {
	kind = Kind(f & flagNodeTypeMask)
	executable = f&flagHasCommand != 0
	hasRedirect = f&flagHasRedirect != 0
	hasCustomSuggest = f&flagHasCustomSuggest != 0
	return
}

// SerializedNode is the flat, index-based wire representation of one
// Node, matching spec.md §6's SerializedCommandNode.
type SerializedNode struct {
	Flags            byte
	Children         []int
	Redirect         int // meaningful only when Flags has flagHasRedirect set
	Name             string
	Parser           string
	ParserProperties []byte
	Suggests         SuggestionProvider
}

// Serialize flattens g into an indexed node list plus the index of the
// root. Traversal is breadth-first from Root: each node is visited once
// (identity-keyed), children and redirect targets are enqueued
// unconditionally, and nodes are numbered in dequeue order — any such
// order is valid per spec.md §6 as long as it is deterministic for a
// given graph and every reachable node is numbered.
//
// Returns ErrMalformedGraph if a Literal is missing Name or an Argument is
// missing Name or Parser.
func Serialize(g *Graph) ([]SerializedNode, int, error) {
	if g == nil || g.Root == nil {
		return nil, 0, fmt.Errorf("%w: nil graph or root", ErrMalformedGraph)
	}

	index := make(map[*Node]int)
	order := []*Node{g.Root}
	index[g.Root] = 0

	queue := []*Node{g.Root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, c := range n.Children {
			if _, seen := index[c]; !seen {
				index[c] = len(order)
				order = append(order, c)
				queue = append(queue, c)
			}
		}
		if n.Redirect != nil {
			if _, seen := index[n.Redirect]; !seen {
				index[n.Redirect] = len(order)
				order = append(order, n.Redirect)
				queue = append(queue, n.Redirect)
			}
		}
	}

	out := make([]SerializedNode, len(order))
	for i, n := range order {
		if n.Kind == KindLiteral && n.Name == "" {
			return nil, 0, fmt.Errorf("%w: literal node at index %d missing name", ErrMalformedGraph, i)
		}
		if n.Kind == KindArgument && (n.Name == "" || n.Parser == "") {
			return nil, 0, fmt.Errorf("%w: argument node at index %d missing name/parser", ErrMalformedGraph, i)
		}

		children := make([]int, len(n.Children))
		for j, c := range n.Children {
			children[j] = index[c]
		}

		hasRedirect := n.Redirect != nil
		sn := SerializedNode{
			Flags:    encodeFlags(n, hasRedirect),
			Children: children,
		}
		if hasRedirect {
			sn.Redirect = index[n.Redirect]
		}
		switch n.Kind {
		case KindLiteral:
			sn.Name = n.Name
		case KindArgument:
			sn.Name = n.Name
			sn.Parser = n.Parser
			sn.ParserProperties = n.ParserProperties
			if n.HasSuggests {
				sn.Suggests = n.Suggests
			}
		}
		out[i] = sn
	}

	return out, index[g.Root], nil
}

// Deserialize materializes nodes from their flat wire form and wires up
// children/redirect references, returning a Graph rooted at rootIndex.
//
// Returns ErrMalformedGraph if rootIndex or any children/redirect index is
// out of bounds.
func Deserialize(nodes []SerializedNode, rootIndex int) (*Graph, error) {
	if rootIndex < 0 || rootIndex >= len(nodes) {
		return nil, fmt.Errorf("%w: root index %d out of range (len=%d)", ErrMalformedGraph, rootIndex, len(nodes))
	}

	materialized := make([]*Node, len(nodes))
	hasRedirects := make([]bool, len(nodes))
	for i, sn := range nodes {
		kind, executable, hasRedirect, hasCustomSuggest := decodeFlags(sn.Flags)
		hasRedirects[i] = hasRedirect
		n := &Node{
			Kind:        kind,
			Executable:  executable,
			HasSuggests: hasCustomSuggest,
		}
		switch kind {
		case KindLiteral:
			n.Name = sn.Name
		case KindArgument:
			n.Name = sn.Name
			n.Parser = sn.Parser
			n.ParserProperties = sn.ParserProperties
			if hasCustomSuggest {
				n.Suggests = sn.Suggests
			}
		}
		materialized[i] = n
	}

	for i, sn := range nodes {
		n := materialized[i]
		for _, ci := range sn.Children {
			if ci < 0 || ci >= len(materialized) {
				return nil, fmt.Errorf("%w: node %d references out-of-range child %d", ErrMalformedGraph, i, ci)
			}
			n.Children = append(n.Children, materialized[ci])
		}
		if hasRedirects[i] {
			if sn.Redirect < 0 || sn.Redirect >= len(materialized) {
				return nil, fmt.Errorf("%w: node %d has out-of-range redirect %d", ErrMalformedGraph, i, sn.Redirect)
			}
			n.Redirect = materialized[sn.Redirect]
		}
	}

	return &Graph{Root: materialized[rootIndex]}, nil
}
