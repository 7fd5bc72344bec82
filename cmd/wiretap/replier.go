package main

import (
	"context"

	"github.com/wiretap-proxy/wiretap/internal/proxy"
	"github.com/wiretap-proxy/wiretap/pkg/packet"
)

// connReplier adapts *proxy.Connection to command.Replier by injecting a
// "chat" packet directly to whichever side a command reply targets,
// bypassing the hook pipeline the same way the core module's keepalive
// echoes do (spec.md §4.E).
type connReplier struct {
	conn *proxy.Connection
}

func (r *connReplier) ReplyChat(ctx context.Context, message string) error {
	return r.conn.InjectClient(ctx, "chat", packet.String(message))
}

func (r *connReplier) SendServerChat(ctx context.Context, message string) error {
	return r.conn.InjectServer(ctx, "chat", packet.String(message))
}
