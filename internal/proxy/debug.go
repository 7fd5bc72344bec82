package proxy

import (
	"os"
	"strings"
)

// DebugConfig controls the packet pump's per-packet debug logging,
// sourced from the PROXY_DEBUG/PROXY_DEBUG_TYPES environment variables
// (spec.md §6).
type DebugConfig struct {
	// Enabled turns packet debug logging on at all.
	Enabled bool
	// Types restricts logging to these packet type names. A nil or empty
	// set means every type is logged.
	Types map[string]struct{}
}

// DebugConfigFromEnv reads PROXY_DEBUG ("1" enables packet debug
// logging) and the optional comma-separated PROXY_DEBUG_TYPES filter
// (empty ⇒ all types), matching spec.md §6's External Interfaces table.
func DebugConfigFromEnv() DebugConfig {
	cfg := DebugConfig{Enabled: os.Getenv("PROXY_DEBUG") == "1"}

	raw := os.Getenv("PROXY_DEBUG_TYPES")
	if raw == "" {
		return cfg
	}
	types := make(map[string]struct{})
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types[t] = struct{}{}
		}
	}
	cfg.Types = types
	return cfg
}

// logs reports whether a packet of the given type should be debug-logged
// under cfg.
func (cfg DebugConfig) logs(typ string) bool {
	if !cfg.Enabled {
		return false
	}
	if len(cfg.Types) == 0 {
		return true
	}
	_, ok := cfg.Types[typ]
	return ok
}
