// Package command implements the client-facing command system: a
// recursive, redirect-capable autocomplete graph (CommandNode/CommandGraph)
// that round-trips through a flat wire format, and a prefix-matched
// registry that dispatches chat-originated commands to handlers.
package command

// Kind discriminates the three node kinds in a CommandNode graph.
type Kind int

const (
	// KindRoot begins a graph. A Root node has no name.
	KindRoot Kind = iota
	// KindLiteral matches a fixed token and requires Name.
	KindLiteral
	// KindArgument consumes a typed user input via a named parser and
	// requires Name and Parser.
	KindArgument
)

// SuggestionProvider names a client-side suggestion source for an
// Argument node's custom suggestions, as advertised over the wire.
type SuggestionProvider string

// Known suggestion providers (CommandNodeSuggestions identifiers).
const (
	SuggestAskServer SuggestionProvider = "ask_server"
	SuggestRecipes   SuggestionProvider = "recipes"
	SuggestSounds    SuggestionProvider = "sounds"
	SuggestEntities  SuggestionProvider = "entities"
)

// Node is one node of a CommandGraph. Nodes are held by pointer and may be
// shared by multiple parents (a DAG); a Redirect target may reintroduce a
// cycle. Identity (pointer equality) is the unit of "set" membership used
// throughout this package (children lists, merge bookkeeping).
type Node struct {
	Kind   Kind
	Name   string // required for Literal/Argument
	Parser string // required for Argument: parser identifier, e.g. "brigadier:string"

	// ParserProperties is an opaque parser-specific blob (exact encoding is
	// the wire codec's concern, out of scope here).
	ParserProperties []byte

	// Suggests is set only when the node declares custom client-side
	// suggestions; HasSuggests distinguishes "no custom suggestions" from
	// SuggestAskServer (both are representable on the wire).
	Suggests    SuggestionProvider
	HasSuggests bool

	Executable bool
	Redirect   *Node
	Children   []*Node
}

// NewRoot creates a fresh Root node.
func NewRoot() *Node {
	return &Node{Kind: KindRoot}
}

// NewLiteral creates a Literal node matching the fixed token name.
func NewLiteral(name string) *Node {
	return &Node{Kind: KindLiteral, Name: name}
}

// NewArgument creates an Argument node named name, parsed by parser.
func NewArgument(name, parser string) *Node {
	return &Node{Kind: KindArgument, Name: name, Parser: parser}
}

// AddChild appends child to n's children if it is not already present
// (identity-based set semantics — adding the same node twice is a no-op).
func (n *Node) AddChild(child *Node) {
	for _, c := range n.Children {
		if c == child {
			return
		}
	}
	n.Children = append(n.Children, child)
}

// RemoveChild removes child from n's children by identity. A no-op if
// child is not present.
func (n *Node) RemoveChild(child *Node) {
	for i, c := range n.Children {
		if c == child {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return
		}
	}
}

// HasChild reports whether child is present in n's children by identity.
func (n *Node) HasChild(child *Node) bool {
	for _, c := range n.Children {
		if c == child {
			return true
		}
	}
	return false
}
