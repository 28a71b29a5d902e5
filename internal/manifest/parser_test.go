package manifest

import (
	"path/filepath"
	"testing"

	"github.com/agentx-labs/unitcore/internal/dependency"
)

const testdataDir = "testdata"

func testPath(name string) string {
	return filepath.Join(testdataDir, name)
}

func TestParseFile_Editor(t *testing.T) {
	d, err := ParseFile(testPath("valid-editor.yaml"))
	if err != nil {
		t.Fatalf("ParseFile error: %v", err)
	}

	if d.ID != "org.acme.editor" {
		t.Errorf("ID = %q, want org.acme.editor", d.ID)
	}
	if d.MajorRelease() != 1 {
		t.Errorf("MajorRelease() = %d, want 1", d.MajorRelease())
	}
	if d.Spec != "1.4" || d.Impl != "20240311" {
		t.Errorf("versions = %q/%q", d.Spec, d.Impl)
	}
	if d.ExportAll {
		t.Error("ExportAll should be false when public_packages is declared")
	}
	if d.StartLevel == nil || *d.StartLevel != 2 {
		t.Errorf("StartLevel = %v, want 2", d.StartLevel)
	}

	deps, err := d.Deps()
	if err != nil {
		t.Fatalf("Deps() error: %v", err)
	}
	if len(deps) != 6 {
		t.Fatalf("Deps() returned %d deps, want 6: %v", len(deps), deps)
	}
	want := dependency.Unit("org.acme.core", 1, dependency.CompareSpec, "1.0")
	if deps[0] != want {
		t.Errorf("deps[0] = %v, want %v", deps[0], want)
	}
	if deps[1].Comparison != dependency.CompareImpl {
		t.Errorf("deps[1] should be impl pinned: %v", deps[1])
	}
	if got := dependency.Of(dependency.KindToken, deps); len(got) != 2 || got[1].Relation != dependency.Recommends {
		t.Errorf("token deps = %v", got)
	}

	exports, err := d.Exports()
	if err != nil {
		t.Fatalf("Exports() error: %v", err)
	}
	if len(exports) != 2 || exports[0].Prefix != "org/acme/editor/api/" || exports[0].Recursive || !exports[1].Recursive {
		t.Errorf("Exports() = %v", exports)
	}

	roots := d.Roots("/units/editor/unit.yaml")
	if len(roots) != 2 || roots[1] != "/units/editor/ext/lexer.jar" {
		t.Errorf("Roots() = %v", roots)
	}
}

func TestParseFile_Minimal(t *testing.T) {
	d, err := ParseFile(testPath("valid-minimal.yaml"))
	if err != nil {
		t.Fatalf("ParseFile error: %v", err)
	}
	if !d.ExportAll {
		t.Error("ExportAll should default to true")
	}
	if d.MajorRelease() != -1 {
		t.Errorf("MajorRelease() = %d, want -1", d.MajorRelease())
	}
	if d.Legacy() {
		t.Error("minimal descriptor should use the modern format")
	}
}

func TestParseFile_ExplicitEmptyExports(t *testing.T) {
	d, err := ParseFile(testPath("valid-no-exports.yaml"))
	if err != nil {
		t.Fatalf("ParseFile error: %v", err)
	}
	if d.ExportAll {
		t.Error("explicit empty public_packages must not export everything")
	}
	if !d.Legacy() {
		t.Error("expected legacy format")
	}
}

func TestParseFile_Invalid(t *testing.T) {
	for _, file := range []string{
		"invalid-dependency.yaml",
		"invalid-schema.yaml",
		"invalid-pattern.yaml",
		"invalid-not-yaml.yaml",
		"nonexistent.yaml",
	} {
		t.Run(file, func(t *testing.T) {
			if _, err := ParseFile(testPath(file)); err == nil {
				t.Fatalf("expected error for %s, got nil", file)
			}
		})
	}
}

func TestResourcePackage(t *testing.T) {
	tests := map[string]string{
		"org/foo/Bar.class":  "org/foo/",
		"/org/foo/bar/x.txt": "org/foo/bar/",
		"Top.class":          "",
	}
	for in, want := range tests {
		if got := ResourcePackage(in); got != want {
			t.Errorf("ResourcePackage(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPackageExportMatches(t *testing.T) {
	exact, _ := ParsePackagePattern("org.foo.*")
	deep, _ := ParsePackagePattern("org.foo.**")

	if !exact.Matches("org/foo/") || exact.Matches("org/foo/bar/") {
		t.Error("non-recursive export should only match its own package")
	}
	if !deep.Matches("org/foo/bar/") {
		t.Error("recursive export should match subpackages")
	}
	if deep.String() != "org.foo.**" || exact.String() != "org.foo.*" {
		t.Errorf("String() = %q / %q", deep.String(), exact.String())
	}
}
