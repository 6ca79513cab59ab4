package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, root, dir, content string) {
	t.Helper()
	modDir := filepath.Join(root, dir)
	if err := os.MkdirAll(modDir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", modDir, err)
	}
	if err := os.WriteFile(filepath.Join(modDir, "module.json"), []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func TestRunModulesListSucceedsWithMixedManifests(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "kalshi", `{"name":"kalshi","jobs":[{"queue":"ingest","name":"poll","schedule":"*/5 * * * *"}]}`)
	writeManifest(t, root, "broken", `not json`)

	if err := runModulesList(root); err != nil {
		t.Fatalf("runModulesList: %v", err)
	}
}

func TestRunModulesListFailsForMissingDir(t *testing.T) {
	err := runModulesList(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Fatal("expected error for a nonexistent modules dir")
	}
}
