// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for the proxy (spec.md §6).
package config

import "gopkg.in/yaml.v3"

// Config is the top-level configuration object, matching spec.md §6's
// recognized options table.
type Config struct {
	ProxyPort int `yaml:"proxy_port"`

	ServerAddress string `yaml:"server_address"`
	ServerPort    int    `yaml:"server_port"`

	Version string `yaml:"version"`
	MOTD    string `yaml:"motd"`

	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	AccessToken string `yaml:"access_token,omitempty"`
	ClientToken string `yaml:"client_token,omitempty"`
	Session     string `yaml:"session,omitempty"`

	ModulesDir string   `yaml:"modules_dir,omitempty"`
	Modules    []string `yaml:"modules,omitempty"`

	// ModuleConfig maps a module name to its opaque per-module
	// configuration, surfaced to the module as module.config.
	ModuleConfig map[string]yaml.Node `yaml:"module_config,omitempty"`

	CommandPrefix string `yaml:"command_prefix"`

	// Admin holds the optional HTTP admin surface settings (SPEC_FULL.md
	// §4.G) — not part of the distilled spec's configuration table, but
	// wired in as an ambient concern the same way the teacher's security
	// and server settings are.
	Admin AdminConfig `yaml:"admin,omitempty"`
}

// AdminConfig configures the optional chi-routed admin HTTP surface.
type AdminConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ListenAddr   string `yaml:"listen_addr,omitempty"`
	BearerToken  string `yaml:"bearer_token,omitempty"`
	BasicUser    string `yaml:"basic_user,omitempty"`
	BasicPass    string `yaml:"basic_pass,omitempty"`
	RateLimitRPS int    `yaml:"rate_limit_rps,omitempty"`
}

// Defaults for options spec.md §6 declares a default for.
const (
	DefaultProxyPort     = 25565
	DefaultServerPort    = 25565
	DefaultVersion       = "1.16.1"
	DefaultCommandPrefix = "/p:"
)

// ApplyDefaults fills in any option spec.md §6 declares a default for but
// the loaded document left zero-valued.
func (c *Config) ApplyDefaults() {
	if c.ProxyPort == 0 {
		c.ProxyPort = DefaultProxyPort
	}
	if c.ServerPort == 0 {
		c.ServerPort = DefaultServerPort
	}
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.CommandPrefix == "" {
		c.CommandPrefix = DefaultCommandPrefix
	}
}
