// Package transport provides the reference websocket-framed JSON
// implementation of proxy.Transport (spec.md §6). It generalizes the
// teacher's internal/node device-connection pattern — a *websocket.Conn
// plus a read loop that decodes an envelope and dispatches it — into a
// bidirectional Transport usable for either side of a proxied connection
// (client-facing, accepted over HTTP; server-facing, dialed outbound).
//
// A real Minecraft-style binary codec (framing, varints, compression,
// encryption, per-packet schemas) is an external collaborator per
// spec.md §1; this implementation exists so the proxy core, hook
// pipeline and command system can be exercised end-to-end over a real
// network socket in integration tests and in any deployment that fronts
// the eventual binary codec with a websocket bridge.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/wiretap-proxy/wiretap/internal/proxy"
	"github.com/wiretap-proxy/wiretap/internal/security"
	"github.com/wiretap-proxy/wiretap/pkg/packet"
)

// envelope is the flat JSON frame carried over the websocket connection.
// kind distinguishes the three event classes the wire codec contract
// (spec.md §6) describes: an ordinary packet, a protocol-state change,
// and (client->server only, synthetic) nothing — state/packet cover it.
type envelope struct {
	Kind  string        `json:"kind"` // "packet" | "state"
	Name  string        `json:"name,omitempty"`
	State string        `json:"state,omitempty"`
	Data  packet.Value  `json:"data,omitempty"`
}

// WSTransport is a websocket-backed proxy.Transport. One instance wraps
// one side (client-facing or server-facing) of a proxied connection.
type WSTransport struct {
	conn   *websocket.Conn
	logger *slog.Logger

	packets chan proxy.Packet
	states  chan string
	closed  chan error

	mu    sync.Mutex
	state string

	closeOnce sync.Once
}

var _ proxy.Transport = (*WSTransport)(nil)

// New wraps an already-established *websocket.Conn (either accepted via
// Accept or dialed via Dial) and starts its read loop.
func New(ctx context.Context, conn *websocket.Conn, logger *slog.Logger) *WSTransport {
	if logger == nil {
		logger = slog.Default()
	}
	t := &WSTransport{
		conn:    conn,
		logger:  logger,
		packets: make(chan proxy.Packet, 64),
		states:  make(chan string, 4),
		closed:  make(chan error, 1),
	}
	go t.readLoop(ctx)
	return t
}

// Accept upgrades an inbound HTTP request to a websocket connection and
// wraps it as a client-facing Transport, mirroring
// internal/node/manager.go's handleWebSocket accept step.
func Accept(ctx context.Context, w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*WSTransport, error) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: accept: %w", err)
	}
	return New(ctx, conn, logger), nil
}

// Dial opens a server-facing Transport to the upstream address. headers,
// if non-nil, is attached to the handshake request — the authentication
// provider's session material (spec.md §1, §6) rides along this way,
// since the underlying wire codec has no separate credential-exchange
// step of its own.
func Dial(ctx context.Context, url string, headers http.Header, logger *slog.Logger) (*WSTransport, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}
	return New(ctx, conn, logger), nil
}

func (t *WSTransport) readLoop(ctx context.Context) {
	for {
		_, data, err := t.conn.Read(ctx)
		if err != nil {
			t.finish(err)
			return
		}

		if err := security.ValidateMessageSize(data, 0); err != nil {
			t.logger.Warn("transport: oversized frame, dropping", "error", err)
			continue
		}
		if err := security.ValidateJSONDepth(data, 0); err != nil {
			t.logger.Warn("transport: rejecting frame, excessive JSON nesting", "error", err)
			continue
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.logger.Warn("transport: malformed frame, dropping", "error", err)
			continue
		}

		switch env.Kind {
		case "state":
			t.mu.Lock()
			t.state = env.State
			t.mu.Unlock()
			select {
			case t.states <- env.State:
			case <-ctx.Done():
				return
			}
		case "packet":
			t.mu.Lock()
			state := t.state
			t.mu.Unlock()
			select {
			case t.packets <- proxy.Packet{Meta: proxy.PacketMeta{Name: env.Name, State: state}, Data: env.Data}:
			case <-ctx.Done():
				return
			}
		default:
			t.logger.Warn("transport: unknown envelope kind, dropping", "kind", env.Kind)
		}
	}
}

func (t *WSTransport) finish(err error) {
	t.closeOnce.Do(func() {
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		t.closed <- err
		close(t.packets)
		close(t.states)
	})
}

// Packets implements proxy.Transport.
func (t *WSTransport) Packets() <-chan proxy.Packet { return t.packets }

// States implements proxy.Transport.
func (t *WSTransport) States() <-chan string { return t.states }

// Closed implements proxy.Transport.
func (t *WSTransport) Closed() <-chan error { return t.closed }

// Write implements proxy.Transport, sending (name, data) as a "packet"
// envelope directly to the peer — both ordinary forwarded packets and
// the inject_client/inject_server primitives (spec.md §4.E) go through
// this same path, since injection only bypasses the hook pipeline, not
// the wire.
func (t *WSTransport) Write(ctx context.Context, name string, data packet.Value) error {
	env := envelope{Kind: "packet", Name: name, Data: data}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("transport: marshal %s: %w", name, err)
	}
	return t.conn.Write(ctx, websocket.MessageText, raw)
}

// WriteState sends a protocol-state notification, mirroring the wire
// codec's 'state' event (spec.md §6) in the other direction — used by a
// test harness or bridge server driving the handshake/login/play
// transitions this Transport's peer observes via States().
func (t *WSTransport) WriteState(ctx context.Context, state string) error {
	env := envelope{Kind: "state", State: state}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("transport: marshal state %s: %w", state, err)
	}
	return t.conn.Write(ctx, websocket.MessageText, raw)
}

// Close implements proxy.Transport, carrying reason into the websocket
// close frame so the peer's close handshake reports why (spec.md §7).
func (t *WSTransport) Close(reason string) error {
	t.finish(nil)
	return t.conn.Close(websocket.StatusNormalClosure, reason)
}

// DialTimeout is the default budget for the outbound upstream dial
// (spec.md §4.E's CONNECTING_UPSTREAM state), matching the teacher's
// pairReadTimeout-style fixed handshake budget.
const DialTimeout = 10 * time.Second
