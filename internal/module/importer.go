package module

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// pluginDescriptor is the declarative sidecar a modules_dir entry carries.
// Go cannot dlopen arbitrary code from a running binary (spec.md §9), so
// "a filesystem path to compiled code" is realized instead as a small YAML
// file naming which statically-registered factory a directory entry maps
// to, plus the name it should be imported under and its raw per-module
// configuration. This is the on-disk form of spec.md §9's "for test
// purposes, the hot-reload logic can be driven by an in-process factory
// table" note extended to cover startup auto-import too.
type pluginDescriptor struct {
	Name    string    `yaml:"name"`
	Factory string    `yaml:"factory"`
	Config  yaml.Node `yaml:"config"`
}

const pluginDescriptorSuffix = ".plugin.yaml"

// Importer scans a modules_dir for *.plugin.yaml descriptors and imports
// each into a Registry (spec.md §6's modules_dir: "directory scanned for
// auto-import").
type Importer struct {
	registry *Registry
	verifier Verifier
}

// Verifier optionally authenticates a module's origin before Import is
// allowed to proceed. Modules are trusted in-process code per spec.md §1's
// Non-goals (no plugin trust-boundary isolation is implemented), so a nil
// Verifier — the default — imports unconditionally; Verify exists for
// deployments that still want provenance checking on the module_path
// string itself before it is ever invoked.
type Verifier interface {
	Verify(modulePath string, signature []byte) error
}

// NewImporter binds an Importer to the registry it populates. verifier may
// be nil.
func NewImporter(registry *Registry, verifier Verifier) *Importer {
	return &Importer{registry: registry, verifier: verifier}
}

// ScanDir reads every *.plugin.yaml file directly inside dir (no
// recursion — spec.md §6 describes a flat modules_dir) and imports each
// descriptor that isn't already present in the registry, in sorted
// filename order so imports are deterministic. It returns the names
// successfully imported; a descriptor that fails to parse or whose
// factory is unregistered is skipped with its error joined into the
// returned error rather than aborting the whole scan.
func (imp *Importer) ScanDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("module: scanning %s: %w", dir, err)
	}

	var names []string
	var errs []error

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) == "" {
			continue
		}
		if !hasPluginSuffix(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		desc, err := loadDescriptor(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}

		if _, err := imp.registry.Get(desc.Name); err == nil {
			continue // already imported
		}

		if imp.verifier != nil {
			if err := imp.verifier.Verify(desc.Factory, nil); err != nil {
				errs = append(errs, fmt.Errorf("%s: verify %s: %w", path, desc.Factory, err))
				continue
			}
		}

		var raw []byte
		if desc.Config.Kind != 0 {
			raw, err = yaml.Marshal(&desc.Config)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: marshal config: %w", path, err))
				continue
			}
		}

		if _, err := imp.registry.Import(desc.Name, desc.Factory, raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: import: %w", path, err))
			continue
		}
		names = append(names, desc.Name)
	}

	return names, errors.Join(errs...)
}

func hasPluginSuffix(name string) bool {
	if len(name) <= len(pluginDescriptorSuffix) {
		return false
	}
	return name[len(name)-len(pluginDescriptorSuffix):] == pluginDescriptorSuffix
}

func loadDescriptor(path string) (*pluginDescriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var desc pluginDescriptor
	if err := yaml.Unmarshal(raw, &desc); err != nil {
		return nil, err
	}
	if desc.Name == "" {
		return nil, fmt.Errorf("missing name")
	}
	if desc.Factory == "" {
		return nil, fmt.Errorf("missing factory")
	}
	return &desc, nil
}
