package command

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Replier is the subset of the proxy connection core a CommandContext
// needs to talk back to the client/server — injecting chat packets
// directly, bypassing the hook pipeline (spec.md §4.E: inject_client /
// inject_server are outputs, not inputs).
type Replier interface {
	ReplyChat(ctx context.Context, message string) error
	SendServerChat(ctx context.Context, message string) error
}

// Context carries the parsed command invocation to a handler.
type Context struct {
	Args    []string // Args[0] is the lowercased command name
	replier Replier
}

// Reply injects a chat packet toward the client.
func (c *Context) Reply(ctx context.Context, message string) error {
	return c.replier.ReplyChat(ctx, message)
}

// SendServer injects a chat packet toward the upstream server.
func (c *Context) SendServer(ctx context.Context, message string) error {
	return c.replier.SendServerChat(ctx, message)
}

// HandlerFunc is a command's implementation.
type HandlerFunc func(ctx context.Context, cctx *Context) error

// Descriptor declares a command to be registered.
type Descriptor struct {
	Name         string
	Description  string
	Autocomplete *Node // optional; nil means no autocomplete contribution
	Handler      HandlerFunc
}

// Command is a registered Descriptor, usable to unregister itself.
type Command struct {
	Descriptor Descriptor
	registry   *Registry
}

// Unregister removes this command from its registry.
func (c *Command) Unregister() error {
	return c.registry.Unregister(c)
}

// Registry is a prefix-matched dispatcher for chat-originated commands,
// per spec.md §4.C.
type Registry struct {
	mu       sync.RWMutex
	prefix   string
	commands map[string]*Command
	replier  Replier
}

// NewRegistry creates a Registry for the given command prefix (default
// "/p:" per spec.md §6), talking back to the client/server through replier.
func NewRegistry(prefix string, replier Replier) *Registry {
	return &Registry{
		prefix:   prefix,
		commands: make(map[string]*Command),
		replier:  replier,
	}
}

// Register lowercases desc.Name and adds it to the registry. If the
// configured prefix begins with '/' and desc.Autocomplete.Name is set and
// does not already begin with prefix[1:], that prefix fragment is
// prepended to the autocomplete node's name (e.g. "p:module" for a "/p:"
// prefix), so the server/client advertises the namespaced literal.
func (r *Registry) Register(desc Descriptor) (*Command, error) {
	name := strings.ToLower(desc.Name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateCommand, name)
	}

	desc.Name = name
	if strings.HasPrefix(r.prefix, "/") && desc.Autocomplete != nil && desc.Autocomplete.Name != "" {
		frag := r.prefix[1:]
		if !strings.HasPrefix(desc.Autocomplete.Name, frag) {
			desc.Autocomplete.Name = frag + desc.Autocomplete.Name
		}
	}

	cmd := &Command{Descriptor: desc, registry: r}
	r.commands[name] = cmd
	return cmd, nil
}

// Unregister removes cmd from the registry. Returns ErrUnknownCommand if
// it is not currently registered (e.g. already unregistered).
func (r *Registry) Unregister(cmd *Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := cmd.Descriptor.Name
	existing, ok := r.commands[name]
	if !ok || existing != cmd {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	delete(r.commands, name)
	return nil
}

// localizedNotFound is the reply sent when a command name doesn't match
// any registered command. Kept as a single constant so it is easy for a
// future localization pass to replace with a message-catalog lookup.
const localizedNotFound = "Command not found"

// Execute dispatches message if it begins with the configured prefix. It
// returns false (and does nothing) if message does not start with the
// prefix. Otherwise it returns true: either the matching handler ran, or
// — if no command matched — an error reply was sent to the client. The
// bool return lets the chat hook decide whether to cancel forwarding of
// the client's raw chat packet to the upstream server.
func (r *Registry) Execute(ctx context.Context, message string) (bool, error) {
	if !strings.HasPrefix(message, r.prefix) {
		return false, nil
	}

	args := strings.Split(message, " ")
	args[0] = strings.ToLower(strings.TrimPrefix(args[0], r.prefix))

	r.mu.RLock()
	cmd, ok := r.commands[args[0]]
	r.mu.RUnlock()

	if !ok {
		if err := r.replier.ReplyChat(ctx, localizedNotFound); err != nil {
			return true, err
		}
		return true, nil
	}

	cctx := &Context{Args: args, replier: r.replier}
	return true, cmd.Descriptor.Handler(ctx, cctx)
}

// AutocompleteNodes returns the autocomplete roots of all registered
// commands that declare one. If the prefix does not begin with '/', the
// client's autocomplete never fires on slash input for this proxy, so an
// empty set is returned.
func (r *Registry) AutocompleteNodes() []*Node {
	if !strings.HasPrefix(r.prefix, "/") {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	nodes := make([]*Node, 0, len(r.commands))
	for _, cmd := range r.commands {
		if cmd.Descriptor.Autocomplete != nil {
			nodes = append(nodes, cmd.Descriptor.Autocomplete)
		}
	}
	return nodes
}
