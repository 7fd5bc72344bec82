package proxy_test

import (
	"context"
	"testing"
	"time"

	"github.com/wiretap-proxy/wiretap/internal/hook"
	"github.com/wiretap-proxy/wiretap/internal/proxy"
	"github.com/wiretap-proxy/wiretap/internal/proxy/proxytest"
	"github.com/wiretap-proxy/wiretap/pkg/packet"
)

func TestConnection_AcceptClientRejectsSecond(t *testing.T) {
	t.Parallel()

	hooks := hook.NewPipeline(nil)
	c := proxy.NewConnection(hooks, nil)
	ctx := context.Background()

	if err := c.AcceptClient(ctx, proxytest.New()); err != nil {
		t.Fatalf("AcceptClient() error = %v", err)
	}
	if err := c.AcceptClient(ctx, proxytest.New()); err != proxy.ErrAlreadyConnected {
		t.Fatalf("second AcceptClient() error = %v, want proxy.ErrAlreadyConnected", err)
	}
}

func TestConnection_PacketPumpForwardsAndCancels(t *testing.T) {
	t.Parallel()

	hooks := hook.NewPipeline(nil)
	// Cancel every "blocked" packet client->server.
	hooks.RegisterDefault(hook.ClientToServer, "blocked", "test", func(_ context.Context, _ *hook.Event) (hook.Action, error) {
		return hook.Cancel, nil
	})

	c := proxy.NewConnection(hooks, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := proxytest.New()
	server := proxytest.New()

	if err := c.AcceptClient(ctx, client); err != nil {
		t.Fatalf("AcceptClient() error = %v", err)
	}
	if err := c.BeginUpstreamConnect(ctx); err != nil {
		t.Fatalf("BeginUpstreamConnect() error = %v", err)
	}
	if err := c.CompleteUpstreamConnect(ctx, server, nil); err != nil {
		t.Fatalf("CompleteUpstreamConnect() error = %v", err)
	}
	c.EnterProxying()

	if got, want := c.State(), proxy.StateProxying; got != want {
		t.Fatalf("State() = %v, want %v", got, want)
	}

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	client.Deliver("say", packet.String("hi"))
	client.Deliver("blocked", packet.String("nope"))

	deadline := time.After(time.Second)
	for len(server.Written) < 1 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for forwarded packet")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if len(server.Written) != 1 || server.Written[0].Name != "say" {
		t.Fatalf("server.Written = %+v, want exactly the forwarded 'say' packet", server.Written)
	}

	client.End(nil)
	<-done
	if got, want := c.State(), proxy.StateIdle; got != want {
		t.Fatalf("State() after teardown = %v, want %v", got, want)
	}
}

func TestConnection_InjectRequiresAttachedTransport(t *testing.T) {
	t.Parallel()

	c := proxy.NewConnection(hook.NewPipeline(nil), nil)
	if err := c.InjectClient(context.Background(), "keep_alive", packet.Null()); err == nil {
		t.Fatal("InjectClient() error = nil, want error with no client attached")
	}
}
