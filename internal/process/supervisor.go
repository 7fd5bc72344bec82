// Package process provides the top-level Start/Stop/signal-handling
// supervisor cmd/wiretap uses to run the proxy listener, admin surface, and
// cron scheduler as one OS process. It generalizes the teacher's
// internal/core.App — the same ordered-start, reverse-order-stop,
// SIGINT/SIGTERM-driven Run loop — onto a flat set of named Starter/Stopper
// components instead of the teacher's Configure/Provision/Validate module
// pipeline, since that pipeline's job (instantiate-and-configure a named
// component) is already internal/module.Registry's job for this proxy's
// domain; keeping both would be two competing module systems.
package process

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const defaultShutdownTimeout = 30 * time.Second

// Starter is implemented by a component that needs to begin background
// work (a listener, a scheduler, a file watcher) before Supervisor.Run
// blocks on the shutdown signal.
type Starter interface {
	Start() error
}

// Stopper is implemented by a component that needs to release resources on
// shutdown.
type Stopper interface {
	Stop(ctx context.Context) error
}

type component struct {
	name    string
	value   any
	started bool
}

// Supervisor starts and stops a fixed set of named components in
// registration order (Start) and reverse order (Stop), and turns
// SIGINT/SIGTERM into an orderly Stop.
type Supervisor struct {
	components      []component
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// New creates an empty Supervisor. shutdownTimeout <= 0 uses a 30s default.
func New(logger *slog.Logger, shutdownTimeout time.Duration) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	return &Supervisor{logger: logger, shutdownTimeout: shutdownTimeout}
}

// Add registers a named component. value should implement Starter and/or
// Stopper; a value implementing neither is accepted but does nothing.
func (s *Supervisor) Add(name string, value any) {
	s.components = append(s.components, component{name: name, value: value})
}

// Start starts every registered Starter component in registration order.
// If one fails, every previously-started component is stopped in reverse
// order before the error is returned.
func (s *Supervisor) Start() error {
	for i := range s.components {
		c := &s.components[i]
		starter, ok := c.value.(Starter)
		if !ok {
			continue
		}
		s.logger.Info("starting component", "component", c.name)
		if err := starter.Start(); err != nil {
			s.logger.Error("component start failed", "component", c.name, "error", err)
			s.stopFrom(i - 1)
			return fmt.Errorf("starting %s: %w", c.name, err)
		}
		c.started = true
	}
	s.logger.Info("all components started")
	return nil
}

// Stop stops every started component in reverse registration order.
func (s *Supervisor) Stop() {
	s.stopFrom(len(s.components) - 1)
}

func (s *Supervisor) stopFrom(fromIndex int) {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	for i := fromIndex; i >= 0; i-- {
		c := &s.components[i]
		if !c.started {
			continue
		}
		if stopper, ok := c.value.(Stopper); ok {
			s.logger.Info("stopping component", "component", c.name)
			if err := stopper.Stop(ctx); err != nil {
				s.logger.Error("component stop error", "component", c.name, "error", err)
			}
		}
		c.started = false
	}
}

// Run starts every component and blocks until SIGINT/SIGTERM, then stops
// everything in reverse order.
func (s *Supervisor) Run() error {
	if err := s.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	s.logger.Info("shutdown signal received", "signal", sig.String())

	s.Stop()
	s.logger.Info("shutdown complete")
	return nil
}
