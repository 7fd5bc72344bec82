package config

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Validate checks the structural validity of a Config: required fields,
// port ranges, and module_config entries that reference names absent
// from Modules (a likely typo, not necessarily fatal elsewhere, but
// surfaced here so it's caught at startup rather than silently ignored).
func Validate(cfg *Config) error {
	var errs []error

	if cfg.ServerAddress == "" {
		errs = append(errs, errors.New("config: server_address is required"))
	}
	if cfg.ProxyPort <= 0 || cfg.ProxyPort > 65535 {
		errs = append(errs, fmt.Errorf("config: proxy_port %d out of range", cfg.ProxyPort))
	}
	if cfg.ServerPort <= 0 || cfg.ServerPort > 65535 {
		errs = append(errs, fmt.Errorf("config: server_port %d out of range", cfg.ServerPort))
	}
	if cfg.CommandPrefix == "" {
		errs = append(errs, errors.New("config: command_prefix must not be empty"))
	}

	declared := make(map[string]bool, len(cfg.Modules))
	for _, name := range cfg.Modules {
		declared[name] = true
	}
	for name := range cfg.ModuleConfig {
		if !declared[name] {
			errs = append(errs, fmt.Errorf("config: module_config entry %q has no corresponding entry in modules", name))
		}
	}

	if cfg.ModulesDir != "" && !filepath.IsAbs(cfg.ModulesDir) {
		abs, err := filepath.Abs(cfg.ModulesDir)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: resolving modules_dir %q: %w", cfg.ModulesDir, err))
		} else {
			cfg.ModulesDir = abs
		}
	}

	if cfg.Admin.Enabled && cfg.Admin.ListenAddr == "" {
		errs = append(errs, errors.New("config: admin.enabled is true but admin.listen_addr is empty"))
	}

	return errors.Join(errs...)
}
