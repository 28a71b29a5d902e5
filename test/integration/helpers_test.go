//go:build integration

package integration_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentx-labs/unitcore/internal/config"
	"github.com/agentx-labs/unitcore/internal/host"
	"github.com/agentx-labs/unitcore/internal/manifest"
)

// testEnv holds paths to isolated test directories.
type testEnv struct {
	HomeDir   string // UNITCORE_HOME
	UnitsDir  string // install root holding unit archives
	StatusDir string // status records
	RulesDir  string // transformation rules
}

// setupTestEnv creates isolated temp directories and sets environment
// variables so every operation is sandboxed.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	home := t.TempDir()
	env := &testEnv{
		HomeDir:   home,
		UnitsDir:  filepath.Join(home, "units"),
		StatusDir: filepath.Join(home, "status"),
		RulesDir:  filepath.Join(home, "rules"),
	}
	t.Setenv("UNITCORE_HOME", env.HomeDir)

	for _, dir := range []string{env.UnitsDir, env.StatusDir, env.RulesDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("creating %s: %v", dir, err)
		}
	}
	return env
}

// settings returns the configuration a host over env boots with, minus
// the cache folder.
func (e *testEnv) settings(debounce time.Duration) *config.Settings {
	return &config.Settings{
		Rules:        []string{e.RulesDir},
		StatusDir:    e.StatusDir,
		InstallRoots: []string{e.UnitsDir},
		Debounce:     debounce,
		HostUnit:     "org.unitcore.core",
		HostPrefix:   "org/unitcore/core/",
	}
}

func (e *testEnv) boot(t *testing.T, debounce time.Duration) *host.Host {
	t.Helper()
	s := e.settings(debounce)
	// Each host gets its own cache so two hosts can run side by side.
	s.CacheDir = t.TempDir()
	h, err := host.Boot(context.Background(), s, host.Options{})
	if err != nil {
		t.Fatalf("booting host: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

// packUnit writes a unit archive under the install root.
func packUnit(t *testing.T, env *testEnv, rel, descriptor string) {
	t.Helper()
	if err := manifest.Pack(filepath.Join(env.UnitsDir, rel), []byte(descriptor), nil); err != nil {
		t.Fatalf("packing %s: %v", rel, err)
	}
}

// writeFile creates a file with content, creating parent dirs as needed.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating dir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func assertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected file %s to exist: %v", path, err)
	}
}

func assertFileNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Errorf("expected file %s to not exist", path)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func unitState(h *host.Host, id string) (host.UnitStatus, bool) {
	for _, u := range h.Units() {
		if u.ID == id {
			return u, true
		}
	}
	return host.UnitStatus{}, false
}
