package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunBanner(t *testing.T) {
	if b := runBanner(true); strings.Contains(b, "paused") || !strings.Contains(b, "running") {
		t.Errorf("autostarted banner = %q", b)
	}
	if b := runBanner(false); !strings.Contains(b, "POST /api/v1/start") {
		t.Errorf("paused banner = %q", b)
	}
}

func TestEnsureDataDir(t *testing.T) {
	root := t.TempDir()
	if err := ensureDataDir(filepath.Join(root, "data", "town.db")); err != nil {
		t.Fatalf("ensureDataDir: %v", err)
	}
	if fi, err := os.Stat(filepath.Join(root, "data")); err != nil || !fi.IsDir() {
		t.Errorf("data dir not created: %v", err)
	}

	blocker := filepath.Join(root, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := ensureDataDir(filepath.Join(blocker, "town.db")); err == nil {
		t.Error("a file in the way must be reported")
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TOWNSIM_TEST_PORT", "9090")
	t.Setenv("TOWNSIM_TEST_BAD", "nine")
	if got := envIntOrDefault("TOWNSIM_TEST_PORT", 1); got != 9090 {
		t.Errorf("envIntOrDefault = %d", got)
	}
	if got := envIntOrDefault("TOWNSIM_TEST_BAD", 7); got != 7 {
		t.Errorf("unparseable value = %d, want default", got)
	}
	if got := envOrDefault("TOWNSIM_TEST_UNSET", "x"); got != "x" {
		t.Errorf("envOrDefault = %q", got)
	}
}
