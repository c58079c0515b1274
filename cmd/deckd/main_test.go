package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("DECKD_CONFIG", "")
	os.Unsetenv("DECKD_CONFIG")

	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}
}

func TestGetConfigPath_EnvOverride(t *testing.T) {
	t.Setenv("DECKD_CONFIG", "/etc/deckd/config.yaml")

	if got := getConfigPath(); got != "/etc/deckd/config.yaml" {
		t.Errorf("getConfigPath() = %q, want env value", got)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("api:\n  port: -1\n"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("DECKD_CONFIG", path)

	err := run(testContext(t))
	if err == nil {
		t.Fatal("expected error for invalid config")
	}
	if !strings.Contains(err.Error(), "config") {
		t.Errorf("error = %v, want config error", err)
	}
}

func TestRun_UnwritableDatabasePath(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("running as root, permission checks do not apply")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := "database:\n  path: /proc/deckd-nope/deckd.db\n"
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("DECKD_CONFIG", path)

	if err := run(testContext(t)); err == nil {
		t.Fatal("expected error for unwritable database path")
	}
}

// testContext returns a context that is canceled when the test ends,
// matching the behavior of t.Context() from newer Go releases.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
