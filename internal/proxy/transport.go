package proxy

import (
	"context"

	"github.com/wiretap-proxy/wiretap/pkg/packet"
)

// PacketMeta carries the packet's protocol type name and the protocol
// state it arrived under, matching the wire codec's (data, meta) contract
// (spec.md §6).
type PacketMeta struct {
	Name  string
	State string
}

// Packet is one inbound unit handed from a Transport to the packet pump.
type Packet struct {
	Meta PacketMeta
	Data packet.Value
}

// Transport is the packet-transport contract a wire codec is assumed to
// implement (spec.md §6, an explicit external collaborator). One Transport
// models one side (client-facing or server-facing) of a proxied
// connection.
//
// Packets arrives in receive order and must be drained by the caller;
// States reports protocol-state transitions (e.g. "handshake", "login",
// "play"); Closed fires exactly once, with a non-nil error unless the
// peer closed cleanly, and subsequent reads from Packets/States are not
// guaranteed to yield anything further.
type Transport interface {
	Packets() <-chan Packet
	States() <-chan string
	Closed() <-chan error

	// Write sends (name, data) directly to the peer, bypassing the hook
	// pipeline. Used both for ordinary forwarded packets and for the
	// inject_client/inject_server primitives (spec.md §4.E).
	Write(ctx context.Context, name string, data packet.Value) error

	// Close tears the transport down, carrying the reason (possibly empty)
	// the other side's loss is reported with, per spec.md §7: "Upstream
	// loss tears down the client side with the received reason; client
	// loss tears down the upstream with an empty reason."
	Close(reason string) error
}
