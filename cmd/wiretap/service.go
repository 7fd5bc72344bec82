package main

import (
	"fmt"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

// svcProgram adapts run's blocking Supervisor.Run loop to
// kardianos/service's Start/Stop lifecycle, so wiretap can be registered
// as a systemd/launchd/Windows service instead of run in a foreground
// terminal.
type svcProgram struct {
	cfgPath string
	errCh   chan error
}

func (p *svcProgram) Start(s service.Service) error {
	p.errCh = make(chan error, 1)
	go func() {
		p.errCh <- runService(p.cfgPath)
	}()
	return nil
}

func (p *svcProgram) Stop(s service.Service) error {
	return nil
}

func serviceCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:   "service",
		Short: "Install, uninstall, or run wiretap as an OS service",
	}

	install := &cobra.Command{
		Use:   "install",
		Short: "Register wiretap as an OS service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := newSvc(cfgPath)
			if err != nil {
				return err
			}
			if err := svc.Install(); err != nil {
				return fmt.Errorf("wiretap: installing service: %w", err)
			}
			cmd.Println("service installed")
			return nil
		},
	}

	uninstall := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the wiretap OS service registration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := newSvc(cfgPath)
			if err != nil {
				return err
			}
			if err := svc.Uninstall(); err != nil {
				return fmt.Errorf("wiretap: uninstalling service: %w", err)
			}
			cmd.Println("service uninstalled")
			return nil
		},
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Run wiretap under the OS service manager (invoked by the manager, not interactively)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := newSvc(cfgPath)
			if err != nil {
				return err
			}
			return svc.Run()
		},
	}

	for _, c := range []*cobra.Command{install, uninstall, run} {
		c.Flags().StringVarP(&cfgPath, "config", "c", "", "path to configuration file")
	}
	root.AddCommand(install, uninstall, run)
	return root
}

func newSvc(cfgPath string) (service.Service, error) {
	cfg := &service.Config{
		Name:        "wiretap",
		DisplayName: "Wiretap Proxy",
		Description: "Hot-reloadable man-in-the-middle proxy for a packet-oriented game protocol",
	}
	if cfgPath != "" {
		cfg.Arguments = []string{"service", "run", "--config", cfgPath}
	} else {
		cfg.Arguments = []string{"service", "run"}
	}
	prg := &svcProgram{cfgPath: cfgPath}
	svc, err := service.New(prg, cfg)
	if err != nil {
		return nil, fmt.Errorf("wiretap: building service: %w", err)
	}
	return svc, nil
}

// runService resolves the configuration the same way `wiretap start` does
// and blocks in run, the shared entry point between interactive and
// service-managed execution.
func runService(cfgPath string) error {
	if cfgPath == "" {
		resolved, err := resolveConfigPath()
		if err != nil {
			return err
		}
		cfgPath = resolved
	}
	return startWithConfig(cfgPath, false)
}
