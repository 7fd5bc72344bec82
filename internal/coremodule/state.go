package coremodule

import (
	"context"
	"time"

	"github.com/wiretap-proxy/wiretap/internal/command"
)

// StatePreserveKeys lists everything that must survive a reload of the
// core module so in-flight keepalive timing keeps working against the
// freshly-loaded instance (spec.md §4.F).
func (m *Module) StatePreserveKeys() []string {
	return []string{
		"clientKeepAliveTicker",
		"clientKeepAliveStop",
		"clientKeepAliveTimer",
		"serverKeepAliveTimer",
		"lastSentHigh",
		"lastSentLow",
		"hasSentKeepAlive",
		"commandGraph",
		"localCommandNodes",
		"moduleRegistry",
	}
}

// GetState reads one of StatePreserveKeys' values off the live instance.
func (m *Module) GetState(key string) (any, bool) {
	switch key {
	case "clientKeepAliveTicker":
		return m.clientKeepAliveTicker, true
	case "clientKeepAliveStop":
		return m.clientKeepAliveStop, true
	case "clientKeepAliveTimer":
		return m.clientKeepAliveTimer, true
	case "serverKeepAliveTimer":
		return m.serverKeepAliveTimer, true
	case "lastSentHigh":
		return m.lastSentHigh, true
	case "lastSentLow":
		return m.lastSentLow, true
	case "hasSentKeepAlive":
		return m.hasSentKeepAlive, true
	case "commandGraph":
		return m.commandGraph, true
	case "localCommandNodes":
		return m.localCommandNodes, true
	case "moduleRegistry":
		if m.moduleRegistry == nil {
			return nil, false
		}
		return m.moduleRegistry, true
	default:
		return nil, false
	}
}

// SetState writes one of StatePreserveKeys' values onto a freshly-loaded
// instance, migrating it from the superseded version.
func (m *Module) SetState(key string, value any) error {
	switch key {
	case "clientKeepAliveTicker":
		m.clientKeepAliveTicker, _ = value.(*time.Ticker)
	case "clientKeepAliveStop":
		m.clientKeepAliveStop, _ = value.(chan struct{})
	case "clientKeepAliveTimer":
		m.clientKeepAliveTimer, _ = value.(*time.Timer)
	case "serverKeepAliveTimer":
		m.serverKeepAliveTimer, _ = value.(*time.Timer)
	case "lastSentHigh":
		m.lastSentHigh, _ = value.(uint32)
	case "lastSentLow":
		m.lastSentLow, _ = value.(uint32)
	case "hasSentKeepAlive":
		m.hasSentKeepAlive, _ = value.(bool)
	case "commandGraph":
		m.commandGraph, _ = value.(*command.Graph)
	case "localCommandNodes":
		if v, ok := value.(map[*command.Node]struct{}); ok {
			m.localCommandNodes = v
		}
	case "moduleRegistry":
		m.moduleRegistry, _ = value.(ModuleRegistry)
	}
	return nil
}

// Callback implements module.CallbackProvider: the client keepalive
// check's fire body is exposed so a reload can redirect a running
// ticker's callback at the owning Handle via BindCallback, letting the
// old timer goroutine keep calling into the newly-loaded module version.
func (m *Module) Callback(key string) func(ctx context.Context) {
	switch key {
	case "clientKeepAliveCheck":
		return m.fireClientKeepAliveCheck
	default:
		return nil
	}
}
