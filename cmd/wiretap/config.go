package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wiretap-proxy/wiretap/internal/config"
)

func configCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "config",
		Short: "Inspect or scaffold a wiretap configuration file",
	}
	root.AddCommand(configCheckCmd(), configInitCmd())
	return root
}

func configCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <path>",
		Short: "Load and validate a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			cmd.Printf("%s: ok (proxy_port=%d, server=%s:%d, modules=%d)\n",
				args[0], cfg.ProxyPort, cfg.ServerAddress, cfg.ServerPort, len(cfg.Modules))
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively scaffold a new configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := &config.Config{}
			cfg.ApplyDefaults()

			var proxyPortStr, serverPortStr string
			proxyPortStr = strconv.Itoa(cfg.ProxyPort)
			serverPortStr = strconv.Itoa(cfg.ServerPort)
			var adminEnabled bool
			var adminAddr string

			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("Upstream server address").
						Description("Hostname or IP the proxy connects to on behalf of the client.").
						Value(&cfg.ServerAddress).
						Validate(requireNonEmpty),
					huh.NewInput().
						Title("Upstream server port").
						Value(&serverPortStr).
						Validate(requirePort),
					huh.NewInput().
						Title("Proxy listen port").
						Value(&proxyPortStr).
						Validate(requirePort),
					huh.NewInput().
						Title("Command prefix").
						Value(&cfg.CommandPrefix),
				),
				huh.NewGroup(
					huh.NewConfirm().
						Title("Enable the admin HTTP surface?").
						Value(&adminEnabled),
					huh.NewInput().
						Title("Admin listen address").
						Value(&adminAddr).
						Description("host:port, e.g. 127.0.0.1:8090"),
				),
			)
			if err := form.Run(); err != nil {
				return fmt.Errorf("wiretap: config wizard: %w", err)
			}

			port, err := strconv.Atoi(proxyPortStr)
			if err != nil {
				return fmt.Errorf("wiretap: invalid proxy port %q: %w", proxyPortStr, err)
			}
			cfg.ProxyPort = port

			serverPort, err := strconv.Atoi(serverPortStr)
			if err != nil {
				return fmt.Errorf("wiretap: invalid server port %q: %w", serverPortStr, err)
			}
			cfg.ServerPort = serverPort

			cfg.Admin.Enabled = adminEnabled
			cfg.Admin.ListenAddr = adminAddr

			if err := config.Validate(cfg); err != nil {
				return err
			}

			raw, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("wiretap: encoding config: %w", err)
			}
			if err := os.WriteFile(outPath, raw, 0o644); err != nil {
				return fmt.Errorf("wiretap: writing %s: %w", outPath, err)
			}

			cmd.Printf("wrote %s\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "wiretap.yaml", "path to write the new configuration file")
	return cmd
}

func requireNonEmpty(s string) error {
	if s == "" {
		return fmt.Errorf("must not be empty")
	}
	return nil
}

func requirePort(s string) error {
	p, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if p <= 0 || p > 65535 {
		return fmt.Errorf("must be between 1 and 65535")
	}
	return nil
}
