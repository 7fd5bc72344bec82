package cron

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wiretap-proxy/wiretap/internal/module"
	"github.com/wiretap-proxy/wiretap/internal/reload"
)

// ModulesRescanJob periodically re-scans modules_dir for *.plugin.yaml
// descriptors that were dropped in without a filesystem notification being
// observed (e.g. the fsnotify watch missed an event, or the process started
// with files already present). It wraps the same reload.Handler the
// fsnotify-driven watcher drives, so both paths converge on a single
// idempotent Rescan.
type ModulesRescanJob struct {
	Handler      *reload.Handler
	Dir          string
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/5 * * * *"
}

// Compile-time interface check.
var _ Job = (*ModulesRescanJob)(nil)

// Name implements Job.
func (j *ModulesRescanJob) Name() string { return "modules_rescan" }

// Schedule implements Job.
func (j *ModulesRescanJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/5 * * * *"
}

// Run re-scans Dir for unimported module descriptors.
func (j *ModulesRescanJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: modules rescan cancelled: %w", ctx.Err())
	}
	if err := j.Handler.Rescan(ctx, j.Dir); err != nil {
		return fmt.Errorf("cron: modules rescan: %w", err)
	}
	return nil
}

// ModuleChainGCJob is a defensive sanity sweep over the module registry's
// version chains. Registry.Reload's chain-collapse step (spec.md §4.D step
// 7) should always keep a handle's previous chain to a single link; this
// job exists purely to surface a logic error loudly (as a warning log, not
// a hard failure that would take the scheduler down) if that invariant is
// ever violated at runtime.
type ModuleChainGCJob struct {
	Registry     *module.Registry
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "0 * * * *"
}

// Compile-time interface check.
var _ Job = (*ModuleChainGCJob)(nil)

// Name implements Job.
func (j *ModuleChainGCJob) Name() string { return "module_chain_gc" }

// Schedule implements Job.
func (j *ModuleChainGCJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 * * * *"
}

// Run checks every handle's previous-version chain depth and logs a
// warning for any name whose chain exceeds one link.
func (j *ModuleChainGCJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: module chain GC cancelled: %w", ctx.Err())
	}
	violations := j.Registry.ChainViolations()
	if len(violations) > 0 {
		j.Logger.Warn("cron: module version chain exceeds one link", "modules", violations)
	}
	return nil
}
