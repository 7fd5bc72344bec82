package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wiretap-proxy/wiretap/pkg/packet"
)

func newLoopback(t *testing.T) (server, client *WSTransport, teardown func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	serverCh := make(chan *WSTransport, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Accept(ctx, w, r, nil)
		if err != nil {
			t.Errorf("Accept: %v", err)
			return
		}
		serverCh <- conn
	}))

	wsURL := "ws" + srv.URL[len("http"):]
	cli, err := Dial(ctx, wsURL, nil, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	var srvConn *WSTransport
	select {
	case srvConn = <-serverCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server accept")
	}

	return srvConn, cli, func() {
		_ = cli.Close("")
		_ = srvConn.Close("")
		cancel()
		srv.Close()
	}
}

func TestWSTransport_WriteAndReceivePacket(t *testing.T) {
	t.Parallel()

	srv, cli, teardown := newLoopback(t)
	defer teardown()

	ctx := context.Background()
	payload := packet.Map(map[string]packet.Value{"text": packet.String("hi")})
	if err := srv.Write(ctx, "chat", payload); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case p := <-cli.Packets():
		if p.Meta.Name != "chat" {
			t.Errorf("Meta.Name = %q, want chat", p.Meta.Name)
		}
		text, ok := p.Data.Get("text")
		if !ok {
			t.Fatal("missing text field")
		}
		if s, _ := text.String(); s != "hi" {
			t.Errorf("text = %q, want hi", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for packet")
	}
}

func TestWSTransport_StateNotificationTagsSubsequentPackets(t *testing.T) {
	t.Parallel()

	srv, cli, teardown := newLoopback(t)
	defer teardown()

	ctx := context.Background()
	if err := srv.WriteState(ctx, "play"); err != nil {
		t.Fatalf("WriteState: %v", err)
	}
	select {
	case s := <-cli.States():
		if s != "play" {
			t.Errorf("state = %q, want play", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for state")
	}

	if err := srv.Write(ctx, "keep_alive", packet.Int64(42)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	select {
	case p := <-cli.Packets():
		if p.Meta.State != "play" {
			t.Errorf("Meta.State = %q, want play", p.Meta.State)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for packet")
	}
}

func TestWSTransport_CloseSignalsClosed(t *testing.T) {
	t.Parallel()

	srv, cli, teardown := newLoopback(t)
	defer teardown()

	_ = srv.Close("")

	select {
	case <-cli.Closed():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Closed()")
	}
}
