package config

import "gopkg.in/yaml.v3"

// Resolve returns the module names to load after import, in the order
// spec.md §6's `modules` list declares (load order is meaningful: a
// module earlier in the list is loaded, and can register hooks/commands,
// before a later one).
func Resolve(cfg *Config) []string {
	return cfg.Modules
}

// ModuleRawConfig returns the opaque per-module configuration bytes for
// name, re-marshaled to YAML, or nil if none was declared. This is what
// gets passed to module.Registry.Import's raw parameter, surfaced to the
// module as module.config (spec.md §4.D: "pull per-module configuration
// from proxy.config.module_config[name] (or null)").
func ModuleRawConfig(cfg *Config, name string) ([]byte, error) {
	node, ok := cfg.ModuleConfig[name]
	if !ok {
		return nil, nil
	}
	return yaml.Marshal(&node)
}
