package cron

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/wiretap-proxy/wiretap/internal/command"
	"github.com/wiretap-proxy/wiretap/internal/hook"
	"github.com/wiretap-proxy/wiretap/internal/module"
	"github.com/wiretap-proxy/wiretap/internal/reload"
)

type noopModule struct{ name string }

func (m *noopModule) Name() string { return m.name }
func (m *noopModule) OnLoad(context.Context, *module.Runtime, bool) error { return nil }
func (m *noopModule) OnUnload(context.Context, bool) error                { return nil }

func newTestRegistry() *module.Registry {
	hooks := hook.NewPipeline(nil)
	cmds := command.NewRegistry("/p:", nil)
	return module.NewRegistry(hooks, cmds, nil)
}

func TestModulesRescanJob_NameAndSchedule(t *testing.T) {
	t.Parallel()
	j := &ModulesRescanJob{Logger: slog.Default()}
	if j.Name() != "modules_rescan" {
		t.Errorf("name = %q, want %q", j.Name(), "modules_rescan")
	}
	if j.Schedule() != "*/5 * * * *" {
		t.Errorf("schedule = %q, want default", j.Schedule())
	}
	j.ScheduleExpr = "*/1 * * * *"
	if got := j.Schedule(); got != "*/1 * * * *" {
		t.Errorf("schedule override = %q, want %q", got, "*/1 * * * *")
	}
}

func TestModulesRescanJob_Run(t *testing.T) {
	t.Parallel()

	factoryName := "cron-test-rescan"
	module.Register(factoryName, func() module.Module { return &noopModule{name: "rescanned"} })

	dir := t.TempDir()
	descriptor := "name: rescanned\nfactory: " + factoryName + "\n"
	if err := os.WriteFile(filepath.Join(dir, "rescanned.plugin.yaml"), []byte(descriptor), 0o644); err != nil {
		t.Fatalf("writing descriptor: %v", err)
	}

	reg := newTestRegistry()
	imp := module.NewImporter(reg, nil)
	handler := reload.NewHandler(imp, reg, []string{"rescanned"}, nil)

	j := &ModulesRescanJob{Handler: handler, Dir: dir, Logger: slog.Default()}
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	handle, err := reg.Get("rescanned")
	if err != nil {
		t.Fatalf("Get(rescanned): %v", err)
	}
	if !handle.Loaded() {
		t.Error("auto-load name should be loaded after rescan job runs")
	}
}

func TestModulesRescanJob_Run_CancelledContext(t *testing.T) {
	t.Parallel()
	j := &ModulesRescanJob{Logger: slog.Default()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := j.Run(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestModuleChainGCJob_NameAndSchedule(t *testing.T) {
	t.Parallel()
	j := &ModuleChainGCJob{Logger: slog.Default()}
	if j.Name() != "module_chain_gc" {
		t.Errorf("name = %q, want %q", j.Name(), "module_chain_gc")
	}
	if j.Schedule() != "0 * * * *" {
		t.Errorf("schedule = %q, want default", j.Schedule())
	}
	j.ScheduleExpr = "0 */2 * * *"
	if got := j.Schedule(); got != "0 */2 * * *" {
		t.Errorf("schedule override = %q, want %q", got, "0 */2 * * *")
	}
}

func TestModuleChainGCJob_Run_NoViolations(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry()
	j := &ModuleChainGCJob{Registry: reg, Logger: slog.Default()}
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestModuleChainGCJob_Run_CancelledContext(t *testing.T) {
	t.Parallel()
	j := &ModuleChainGCJob{Registry: newTestRegistry(), Logger: slog.Default()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := j.Run(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
