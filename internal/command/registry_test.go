package command

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeReplier struct {
	replies []string
	server  []string
}

func (f *fakeReplier) ReplyChat(_ context.Context, message string) error {
	f.replies = append(f.replies, message)
	return nil
}

func (f *fakeReplier) SendServerChat(_ context.Context, message string) error {
	f.server = append(f.server, message)
	return nil
}

func TestRegistry_PrefixHandling(t *testing.T) {
	t.Parallel()

	// S8: with prefix "/p:", registering a command whose autocomplete root
	// name is "foo" yields stored autocomplete-name "p:foo".
	r := NewRegistry("/p:", &fakeReplier{})
	node := NewLiteral("foo")
	cmd, err := r.Register(Descriptor{Name: "test", Autocomplete: node})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if cmd.Descriptor.Autocomplete.Name != "p:foo" {
		t.Fatalf("autocomplete name = %q, want %q", cmd.Descriptor.Autocomplete.Name, "p:foo")
	}

	// with prefix "!", autocomplete set is empty.
	r2 := NewRegistry("!", &fakeReplier{})
	if _, err := r2.Register(Descriptor{Name: "test2", Autocomplete: NewLiteral("bar")}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if nodes := r2.AutocompleteNodes(); len(nodes) != 0 {
		t.Fatalf("AutocompleteNodes() = %v, want empty", nodes)
	}
}

func TestRegistry_DuplicateCommand(t *testing.T) {
	t.Parallel()

	r := NewRegistry("/p:", &fakeReplier{})
	if _, err := r.Register(Descriptor{Name: "test"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := r.Register(Descriptor{Name: "TEST"}); !errors.Is(err, ErrDuplicateCommand) {
		t.Fatalf("Register() error = %v, want ErrDuplicateCommand", err)
	}
}

func TestRegistry_UnregisterUnknown(t *testing.T) {
	t.Parallel()

	r := NewRegistry("/p:", &fakeReplier{})
	cmd, err := r.Register(Descriptor{Name: "test"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := cmd.Unregister(); err != nil {
		t.Fatalf("Unregister() error = %v", err)
	}
	if err := cmd.Unregister(); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("second Unregister() error = %v, want ErrUnknownCommand", err)
	}
}

func TestRegistry_ExecuteSuppressesAndReplies(t *testing.T) {
	t.Parallel()

	// S1: register command test, reply "HI"; execute("/p:test") dispatches
	// the handler and returns true (so the caller can cancel the raw chat).
	replier := &fakeReplier{}
	r := NewRegistry("/p:", replier)
	var gotArgs []string
	_, err := r.Register(Descriptor{
		Name: "test",
		Handler: func(ctx context.Context, cctx *Context) error {
			gotArgs = cctx.Args
			return cctx.Reply(ctx, "HI")
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	handled, err := r.Execute(context.Background(), "/p:test")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !handled {
		t.Fatal("Execute() = false, want true")
	}
	if len(replier.replies) != 1 || replier.replies[0] != "HI" {
		t.Fatalf("replies = %v, want [HI]", replier.replies)
	}
	if len(gotArgs) == 0 || gotArgs[0] != "test" {
		t.Fatalf("gotArgs = %v, want [test ...]", gotArgs)
	}
}

func TestRegistry_ExecuteUnknownCommand(t *testing.T) {
	t.Parallel()

	replier := &fakeReplier{}
	r := NewRegistry("/p:", replier)

	handled, err := r.Execute(context.Background(), "/p:bogus")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !handled {
		t.Fatal("Execute() = false, want true (prefix matched)")
	}
	if len(replier.replies) != 1 || !strings.Contains(replier.replies[0], "not found") {
		t.Fatalf("replies = %v, want a not-found message", replier.replies)
	}
}

func TestRegistry_ExecuteIgnoresNonPrefixed(t *testing.T) {
	t.Parallel()

	replier := &fakeReplier{}
	r := NewRegistry("/p:", replier)

	handled, err := r.Execute(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if handled {
		t.Fatal("Execute() = true, want false for non-prefixed message")
	}
}
