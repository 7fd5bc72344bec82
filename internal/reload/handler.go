package reload

import (
	"context"
	"log/slog"

	"github.com/wiretap-proxy/wiretap/internal/module"
)

// Handler reacts to modules_dir change notifications by rescanning for
// new *.plugin.yaml descriptors and importing (and, when auto-load is
// configured for their name, loading) anything new. It replaces the
// teacher's config-file reload handler: this proxy's only hot-reloadable
// filesystem input is modules_dir, not a monolithic config file — config
// changes are picked up on process restart (spec.md §6 describes no
// config hot-reload contract).
type Handler struct {
	importer *module.Importer
	registry *module.Registry
	logger   *slog.Logger

	// autoLoad is the set of module names spec.md §6's `modules` config
	// option names for load-after-import; a descriptor imported under a
	// name in this set is also Load'ed immediately.
	autoLoad map[string]bool
}

// NewHandler builds a Handler tied to an Importer/Registry pair and the
// configured auto-load name set.
func NewHandler(importer *module.Importer, registry *module.Registry, autoLoadNames []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	set := make(map[string]bool, len(autoLoadNames))
	for _, n := range autoLoadNames {
		set[n] = true
	}
	return &Handler{importer: importer, registry: registry, autoLoad: set, logger: logger}
}

// Rescan re-scans dir for unimported descriptors, importing each and
// loading those whose name appears in the auto-load set. Called directly
// at startup and again every time the Watcher or the cron-driven periodic
// rescan job (SPEC_FULL.md §4.H) observes a modules_dir change.
func (h *Handler) Rescan(ctx context.Context, dir string) error {
	names, err := h.importer.ScanDir(dir)
	if err != nil {
		h.logger.Warn("reload: scan completed with errors", "error", err)
	}
	for _, name := range names {
		h.logger.Info("reload: imported module", "module", name)
		if !h.autoLoad[name] {
			continue
		}
		if loadErr := h.registry.Load(ctx, name); loadErr != nil {
			h.logger.Error("reload: auto-load failed", "module", name, "error", loadErr)
			continue
		}
		h.logger.Info("reload: auto-loaded module", "module", name)
	}
	return err
}

// Run drives Rescan from a Watcher's event stream until ctx is done. Each
// event re-scans the whole directory rather than importing only the
// changed file, since a single rescan is idempotent (module.Importer.
// ScanDir skips already-imported names) and simpler than tracking
// per-file state.
func (h *Handler) Run(ctx context.Context, dir string, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.logger.Debug("reload: modules_dir change observed", "type", ev.Type, "path", ev.Path)
			if err := h.Rescan(ctx, dir); err != nil {
				h.logger.Warn("reload: rescan after change failed", "error", err)
			}
		}
	}
}
