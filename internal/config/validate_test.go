package config

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func validConfig() *Config {
	cfg := &Config{
		ServerAddress: "mc.example.com",
		Modules:       []string{"logger"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_MissingServerAddress(t *testing.T) {
	cfg := validConfig()
	cfg.ServerAddress = ""
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "server_address") {
		t.Fatalf("error = %v, want mention of server_address", err)
	}
}

func TestValidate_PortOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.ProxyPort = 70000
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "proxy_port") {
		t.Fatalf("error = %v, want mention of proxy_port", err)
	}
}

func TestValidate_EmptyCommandPrefix(t *testing.T) {
	cfg := validConfig()
	cfg.CommandPrefix = ""
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "command_prefix") {
		t.Fatalf("error = %v, want mention of command_prefix", err)
	}
}

func TestValidate_ModuleConfigWithoutModuleEntry(t *testing.T) {
	cfg := validConfig()
	cfg.ModuleConfig = map[string]yaml.Node{"ghost": {}}
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "ghost") {
		t.Fatalf("error = %v, want mention of ghost", err)
	}
}

func TestValidate_AdminEnabledWithoutListenAddr(t *testing.T) {
	cfg := validConfig()
	cfg.Admin.Enabled = true
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "listen_addr") {
		t.Fatalf("error = %v, want mention of listen_addr", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	if cfg.ProxyPort != DefaultProxyPort {
		t.Errorf("ProxyPort = %d, want %d", cfg.ProxyPort, DefaultProxyPort)
	}
	if cfg.ServerPort != DefaultServerPort {
		t.Errorf("ServerPort = %d, want %d", cfg.ServerPort, DefaultServerPort)
	}
	if cfg.Version != DefaultVersion {
		t.Errorf("Version = %q, want %q", cfg.Version, DefaultVersion)
	}
	if cfg.CommandPrefix != DefaultCommandPrefix {
		t.Errorf("CommandPrefix = %q, want %q", cfg.CommandPrefix, DefaultCommandPrefix)
	}
}
