package module

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/wiretap-proxy/wiretap/internal/command"
	"github.com/wiretap-proxy/wiretap/internal/hook"
)

type noopReplier struct{}

func (noopReplier) ReplyChat(context.Context, string) error      { return nil }
func (noopReplier) SendServerChat(context.Context, string) error { return nil }

func newImportTestRegistry() *Registry {
	return NewRegistry(hook.NewPipeline(nil), command.NewRegistry("/p:", noopReplier{}), nil)
}

func writeDescriptor(t *testing.T, dir, filename, name, factory string) {
	t.Helper()
	content := "name: " + name + "\nfactory: " + factory + "\n"
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644); err != nil {
		t.Fatalf("writing descriptor: %v", err)
	}
}

func TestImporter_ScanDirImportsDescriptors(t *testing.T) {
	t.Cleanup(resetFactories)
	Register("stateful", newStatefulFactory("unused"))

	dir := t.TempDir()
	writeDescriptor(t, dir, "one.plugin.yaml", "one", "stateful")
	writeDescriptor(t, dir, "two.plugin.yaml", "two", "stateful")
	// Not a descriptor: ignored.
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatal(err)
	}

	reg := newImportTestRegistry()
	imp := NewImporter(reg, nil)

	names, err := imp.ScanDir(dir)
	if err != nil {
		t.Fatalf("ScanDir: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("want 2 imported names, got %v", names)
	}

	if _, err := reg.Get("one"); err != nil {
		t.Errorf("expected 'one' imported: %v", err)
	}
	if _, err := reg.Get("two"); err != nil {
		t.Errorf("expected 'two' imported: %v", err)
	}
}

func TestImporter_ScanDirSkipsAlreadyImported(t *testing.T) {
	t.Cleanup(resetFactories)
	Register("stateful", newStatefulFactory("unused"))

	dir := t.TempDir()
	writeDescriptor(t, dir, "one.plugin.yaml", "one", "stateful")

	reg := newImportTestRegistry()
	imp := NewImporter(reg, nil)

	if _, err := imp.ScanDir(dir); err != nil {
		t.Fatalf("first scan: %v", err)
	}
	names, err := imp.ScanDir(dir)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("expected no re-import on second scan, got %v", names)
	}
}

func TestImporter_ScanDirUnknownFactoryIsJoinedError(t *testing.T) {
	t.Cleanup(resetFactories)

	dir := t.TempDir()
	writeDescriptor(t, dir, "bad.plugin.yaml", "bad", "does-not-exist")

	reg := newImportTestRegistry()
	imp := NewImporter(reg, nil)

	names, err := imp.ScanDir(dir)
	if err == nil {
		t.Fatal("expected error for unregistered factory")
	}
	if len(names) != 0 {
		t.Fatalf("expected no names imported, got %v", names)
	}
}

type denyVerifier struct{}

func (denyVerifier) Verify(modulePath string, signature []byte) error {
	return os.ErrPermission
}

func TestImporter_VerifierRejectsImport(t *testing.T) {
	t.Cleanup(resetFactories)
	Register("stateful", newStatefulFactory("unused"))

	dir := t.TempDir()
	writeDescriptor(t, dir, "one.plugin.yaml", "one", "stateful")

	reg := newImportTestRegistry()
	imp := NewImporter(reg, denyVerifier{})

	names, err := imp.ScanDir(dir)
	if err == nil {
		t.Fatal("expected verifier rejection to surface as an error")
	}
	if len(names) != 0 {
		t.Fatalf("expected no names imported, got %v", names)
	}
	if _, err := reg.Get("one"); err == nil {
		t.Fatal("module should not have been imported")
	}
}
