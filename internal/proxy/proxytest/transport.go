// Package proxytest provides an in-memory Transport double for exercising
// internal/proxy without a real wire codec.
package proxytest

import (
	"context"

	"github.com/wiretap-proxy/wiretap/internal/proxy"
	"github.com/wiretap-proxy/wiretap/pkg/packet"
)

// FakeTransport is a channel-backed proxy.Transport. Feed inbound packets
// with Deliver; inspect outbound writes via Written.
type FakeTransport struct {
	packets chan proxy.Packet
	states  chan string
	closed  chan error

	Written []WriteCall

	// CloseReason records the reason passed to the most recent Close call.
	CloseReason string
}

// WriteCall records one Write invocation.
type WriteCall struct {
	Name string
	Data packet.Value
}

// New creates a FakeTransport with a reasonably-buffered packet channel.
func New() *FakeTransport {
	return &FakeTransport{
		packets: make(chan proxy.Packet, 16),
		states:  make(chan string, 4),
		closed:  make(chan error, 1),
	}
}

func (f *FakeTransport) Packets() <-chan proxy.Packet { return f.packets }
func (f *FakeTransport) States() <-chan string        { return f.states }
func (f *FakeTransport) Closed() <-chan error          { return f.closed }

// Deliver injects an inbound packet as if received from the wire.
func (f *FakeTransport) Deliver(name string, data packet.Value) {
	f.packets <- proxy.Packet{Meta: proxy.PacketMeta{Name: name}, Data: data}
}

// Write records an outbound write.
func (f *FakeTransport) Write(_ context.Context, name string, data packet.Value) error {
	f.Written = append(f.Written, WriteCall{Name: name, Data: data})
	return nil
}

// Close marks the transport closed with a nil cause. reason is recorded
// for inspection but otherwise unused by the fake.
func (f *FakeTransport) Close(reason string) error {
	f.CloseReason = reason
	select {
	case f.closed <- nil:
	default:
	}
	return nil
}

// End signals the transport ended with err (nil for a clean close).
func (f *FakeTransport) End(err error) {
	f.closed <- err
}
