package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wiretap-proxy/wiretap/internal/hook"
	"github.com/wiretap-proxy/wiretap/pkg/packet"
)

// ErrAlreadyConnected is returned by Accept when a client is already
// attached (spec.md §4.E: "if already holding a proxyClient: reject with
// 'too many connections', remain in current state").
var ErrAlreadyConnected = errors.New("proxy: too many connections")

// LifecycleHooks are the four Local/* events the Core Module (and any
// other module) listens on to manage per-connection bookkeeping such as
// keepalive timers (spec.md §4.F).
const (
	HookClientConnected    = "clientConnected"
	HookClientDisconnected = "clientDisconnected"
	HookServerConnected    = "serverConnected"
	HookServerDisconnected = "serverDisconnected"
)

// Metrics receives packet-pump instrumentation. Implementations must be
// safe for concurrent use — Run spawns one pump goroutine per direction
// and both call into the same Metrics. The admin package's Prometheus
// *Metrics type implements this interface (SPEC_FULL.md §4.G).
type Metrics interface {
	RecordForwarded(dir hook.Direction)
	RecordCancelled(dir hook.Direction)
}

// Connection drives one proxied session: a single client transport paired
// with a single upstream server transport, moving through the state
// machine described in spec.md §4.E and pumping packets between them
// through the shared hook pipeline once PROXYING is reached.
type Connection struct {
	mu    sync.Mutex
	state State

	hooks   *hook.Pipeline
	logger  *slog.Logger
	metrics Metrics
	debug   DebugConfig

	client Transport
	server Transport
}

// NewConnection creates an idle connection bound to the proxy's shared
// hook pipeline.
func NewConnection(hooks *hook.Pipeline, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connection{state: StateIdle, hooks: hooks, logger: logger}
}

// SetMetrics attaches an optional instrumentation sink. A nil Metrics
// (the default) disables recording entirely.
func (c *Connection) SetMetrics(m Metrics) {
	c.mu.Lock()
	c.metrics = m
	c.mu.Unlock()
}

func (c *Connection) recordForwarded(dir hook.Direction) {
	c.mu.Lock()
	m := c.metrics
	c.mu.Unlock()
	if m != nil {
		m.RecordForwarded(dir)
	}
}

func (c *Connection) recordCancelled(dir hook.Direction) {
	c.mu.Lock()
	m := c.metrics
	c.mu.Unlock()
	if m != nil {
		m.RecordCancelled(dir)
	}
}

// SetDebug configures per-packet debug logging driven by
// PROXY_DEBUG/PROXY_DEBUG_TYPES (spec.md §6). The zero DebugConfig
// disables it, which is also Connection's default.
func (c *Connection) SetDebug(cfg DebugConfig) {
	c.mu.Lock()
	c.debug = cfg
	c.mu.Unlock()
}

func (c *Connection) debugLogs(typ string) bool {
	c.mu.Lock()
	d := c.debug
	c.mu.Unlock()
	return d.logs(typ)
}

// State returns the connection's current state machine position.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// AcceptClient attaches a newly-connected client transport, advancing
// IDLE -> CLIENT_CONNECTED -> (after firing Local/clientConnected)
// AUTHENTICATING. Returns ErrAlreadyConnected, unchanged, if a client is
// already attached.
func (c *Connection) AcceptClient(ctx context.Context, t Transport) error {
	c.mu.Lock()
	if c.client != nil {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.client = t
	c.state = StateClientConnected
	c.mu.Unlock()

	if _, err := c.hooks.Execute(ctx, hook.Local, HookClientConnected, packet.Null()); err != nil {
		c.logger.Warn("clientConnected hook failed", "error", err)
	}
	c.setState(StateAuthenticating)
	return nil
}

// BeginUpstreamConnect advances AUTHENTICATING -> CONNECTING_UPSTREAM
// after the Local/beforeServerConnect hooks have run.
func (c *Connection) BeginUpstreamConnect(ctx context.Context) error {
	if _, err := c.hooks.Execute(ctx, hook.Local, "beforeServerConnect", packet.Null()); err != nil {
		return fmt.Errorf("beforeServerConnect: %w", err)
	}
	c.setState(StateConnectingUpstream)
	return nil
}

// CompleteUpstreamConnect attaches the upstream server transport and
// advances CONNECTING_UPSTREAM -> CONNECTED, firing Local/serverConnected.
// On failure the connection falls back to IDLE, firing
// Local/serverDisconnected and clearing the client, per spec.md §4.E.
func (c *Connection) CompleteUpstreamConnect(ctx context.Context, t Transport, upstreamErr error) error {
	if upstreamErr != nil {
		c.mu.Lock()
		c.client = nil
		c.state = StateIdle
		c.mu.Unlock()
		if _, err := c.hooks.Execute(ctx, hook.Local, HookServerDisconnected, packet.Null()); err != nil {
			c.logger.Warn("serverDisconnected hook failed", "error", err)
		}
		return upstreamErr
	}

	c.mu.Lock()
	c.server = t
	c.state = StateConnected
	c.mu.Unlock()

	if _, err := c.hooks.Execute(ctx, hook.Local, HookServerConnected, packet.Null()); err != nil {
		c.logger.Warn("serverConnected hook failed", "error", err)
	}
	return nil
}

// EnterProxying advances CONNECTED -> PROXYING once the upstream
// transport reports it has entered the 'play' protocol state.
func (c *Connection) EnterProxying() {
	c.setState(StateProxying)
}

// side identifies which physical end of the connection a pump result
// should be attributed to, so teardown can assign the disconnect reason
// to the correct side per spec.md §7.
type side int

const (
	sideNone side = iota
	sideClient
	sideServer
)

// pumpResult is what a pump goroutine (or Run's own ctx.Done case) sends
// on errCh: which side triggered the exit, and why.
type pumpResult struct {
	side side
	err  error
}

// Run pumps packets between client and server transports while PROXYING,
// returning when either side closes or ctx is cancelled. It is the
// caller's responsibility to have reached StateProxying first.
func (c *Connection) Run(ctx context.Context) error {
	c.mu.Lock()
	client, server := c.client, c.server
	c.mu.Unlock()

	errCh := make(chan pumpResult, 2)
	go c.pump(ctx, client, server, hook.ClientToServer, sideClient, sideServer, errCh)
	go c.pump(ctx, server, client, hook.ServerToClient, sideServer, sideClient, errCh)

	var result pumpResult
	select {
	case <-ctx.Done():
		result = pumpResult{side: sideNone, err: ctx.Err()}
	case result = <-errCh:
	}

	return c.teardown(context.Background(), result)
}

// pump drains src's inbound packets, running each through the hook
// pipeline for direction dir, and forwards to dst when not cancelled.
// srcSide/dstSide identify which physical side src and dst are, so a
// failure on either end reports the right side to errCh.
func (c *Connection) pump(ctx context.Context, src, dst Transport, dir hook.Direction, srcSide, dstSide side, errCh chan<- pumpResult) {
	for {
		select {
		case <-ctx.Done():
			errCh <- pumpResult{side: sideNone, err: ctx.Err()}
			return
		case p, ok := <-src.Packets():
			if !ok {
				errCh <- pumpResult{side: srcSide}
				return
			}
			forward, err := c.hooks.Execute(ctx, dir, p.Meta.Name, p.Data)
			if err != nil {
				c.logger.Error("hook pipeline error, dropping packet", "direction", dir, "type", p.Meta.Name, "error", err)
				continue
			}
			if c.debugLogs(p.Meta.Name) {
				c.logger.Debug("proxy: packet", "direction", dir, "type", p.Meta.Name, "forwarded", forward, debugDataAttr(p.Data))
			}
			if !forward {
				c.recordCancelled(dir)
				continue
			}
			if err := dst.Write(ctx, p.Meta.Name, p.Data); err != nil {
				errCh <- pumpResult{side: dstSide, err: err}
				return
			}
			c.recordForwarded(dir)
		case err := <-src.Closed():
			if err != nil {
				err = fmt.Errorf("%w: %w", ErrConnectionLost, err)
			}
			errCh <- pumpResult{side: srcSide, err: err}
			return
		}
	}
}

// debugDataAttr renders a packet's payload as a slog.Attr for
// PROXY_DEBUG logging (spec.md §6), falling back to a placeholder if the
// payload somehow can't be marshaled.
func debugDataAttr(v packet.Value) slog.Attr {
	raw, err := json.Marshal(v)
	if err != nil {
		return slog.String("data", "<unencodable>")
	}
	return slog.String("data", string(raw))
}

// teardown moves PROXYING (or any active state) -> TEARDOWN -> IDLE,
// clearing both transports and firing each side's disconnect hook exactly
// once (spec.md §4.E). Per spec.md §7, upstream loss tears down the
// client side with the received reason, while client loss tears down the
// upstream with an empty reason — result.side names which physical end
// actually failed, so only the *other* side's Close/hook carries the
// failure's reason text.
func (c *Connection) teardown(ctx context.Context, result pumpResult) error {
	c.setState(StateTeardown)

	c.mu.Lock()
	client, server := c.client, c.server
	c.client, c.server = nil, nil
	c.mu.Unlock()

	reason := ""
	if result.err != nil {
		reason = result.err.Error()
	}

	var clientReason, serverReason string
	switch result.side {
	case sideServer:
		clientReason = reason
	case sideClient:
		serverReason = ""
	}

	if client != nil {
		_ = client.Close(clientReason)
		if _, err := c.hooks.Execute(ctx, hook.Local, HookClientDisconnected, packet.String(clientReason)); err != nil {
			c.logger.Warn("clientDisconnected hook failed", "error", err)
		}
	}
	if server != nil {
		_ = server.Close(serverReason)
		if _, err := c.hooks.Execute(ctx, hook.Local, HookServerDisconnected, packet.String(serverReason)); err != nil {
			c.logger.Warn("serverDisconnected hook failed", "error", err)
		}
	}

	c.setState(StateIdle)
	return result.err
}

// InjectClient writes a synthetic packet directly to the client,
// bypassing the hook pipeline — one of the two injection primitives
// (spec.md §4.E). Hooks that want to emit a synthetic packet must use
// this (or InjectServer) and cancel the original.
func (c *Connection) InjectClient(ctx context.Context, name string, data packet.Value) error {
	c.mu.Lock()
	t := c.client
	c.mu.Unlock()
	if t == nil {
		return fmt.Errorf("proxy: inject_client: no client attached")
	}
	return t.Write(ctx, name, data)
}

// InjectServer writes a synthetic packet directly to the upstream server,
// bypassing the hook pipeline.
func (c *Connection) InjectServer(ctx context.Context, name string, data packet.Value) error {
	c.mu.Lock()
	t := c.server
	c.mu.Unlock()
	if t == nil {
		return fmt.Errorf("proxy: inject_server: no server attached")
	}
	return t.Write(ctx, name, data)
}

// CloseServer force-closes the upstream transport, e.g. when the server
// keepalive timeout fires (spec.md §4.E: "Timeout fires -> tear down the
// upstream connection with an empty reason"). Closing it unblocks the
// server-facing pump goroutine's Closed() select case, which feeds
// Run's errCh and drives the ordinary teardown path. A no-op if no
// server is attached.
func (c *Connection) CloseServer() {
	c.mu.Lock()
	t := c.server
	c.mu.Unlock()
	if t != nil {
		_ = t.Close("")
	}
}
