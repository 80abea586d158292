package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/buildandburn/buildandburn/pkg/manifest"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestHomeRespectsOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BB_HOME", dir)

	home, err := Home()
	if err != nil {
		t.Fatalf("Home: %v", err)
	}
	if home != dir {
		t.Errorf("home = %q, want %q", home, dir)
	}
}

func TestHomeDefaultsUnderUserHome(t *testing.T) {
	t.Setenv("BB_HOME", "")

	home, err := Home()
	if err != nil {
		t.Fatalf("Home: %v", err)
	}
	if filepath.Base(home) != ".buildandburn" {
		t.Errorf("home = %q, want a .buildandburn directory", home)
	}
}

func TestPathsForLayout(t *testing.T) {
	paths := PathsFor("/tmp/bb", "abc12345")

	if paths.Root != filepath.Join("/tmp/bb", "abc12345") {
		t.Errorf("root = %q", paths.Root)
	}
	if paths.StateFile != filepath.Join(paths.StateDir, "terraform.tfstate") {
		t.Errorf("state file = %q, not under state dir", paths.StateFile)
	}
	if paths.PlanFile != filepath.Join(paths.TerraformDir, "tfplan") {
		t.Errorf("plan file = %q, not under terraform dir", paths.PlanFile)
	}
	if paths.LockFile != filepath.Join(paths.Root, ".lock") {
		t.Errorf("lock file = %q", paths.LockFile)
	}
}

func TestPrepareEnvDir(t *testing.T) {
	home := t.TempDir()
	src := t.TempDir()
	writeTestFile(t, filepath.Join(src, "main.tf"), `module "vpc" {}`)
	writeTestFile(t, filepath.Join(src, "modules", "vpc", "main.tf"), "resource {}")
	writeTestFile(t, filepath.Join(src, ".terraform", "providers", "cache"), "binary")
	writeTestFile(t, filepath.Join(src, "terraform.tfstate"), "{}")
	writeTestFile(t, filepath.Join(src, ".terraform.lock.hcl"), "lock")

	vars := manifest.Variables{"region": "us-west-2", "env_id": "abc12345"}
	paths, err := PrepareEnvDir(home, "abc12345", src, vars)
	if err != nil {
		t.Fatalf("PrepareEnvDir: %v", err)
	}

	if _, err := os.Stat(filepath.Join(paths.TerraformDir, "main.tf")); err != nil {
		t.Errorf("root config not copied: %v", err)
	}
	if _, err := os.Stat(filepath.Join(paths.TerraformDir, "modules", "vpc", "main.tf")); err != nil {
		t.Errorf("nested module not copied: %v", err)
	}
	for _, skipped := range []string{".terraform", "terraform.tfstate", ".terraform.lock.hcl"} {
		if _, err := os.Stat(filepath.Join(paths.TerraformDir, skipped)); !os.IsNotExist(err) {
			t.Errorf("%s should not be copied", skipped)
		}
	}

	override, err := os.ReadFile(filepath.Join(paths.TerraformDir, "backend_override.tf"))
	if err != nil {
		t.Fatalf("read backend override: %v", err)
	}
	if !strings.Contains(string(override), `backend "local"`) {
		t.Errorf("backend override missing local backend: %s", override)
	}
	if !strings.Contains(string(override), "../state/terraform.tfstate") {
		t.Errorf("backend override does not point at the state dir: %s", override)
	}

	varsData, err := os.ReadFile(paths.VarsFile)
	if err != nil {
		t.Fatalf("read vars file: %v", err)
	}
	if !strings.Contains(string(varsData), `"us-west-2"`) {
		t.Errorf("vars file missing region: %s", varsData)
	}

	for _, dir := range []string{paths.StateDir, paths.LogsDir} {
		info, statErr := os.Stat(dir)
		if statErr != nil || !info.IsDir() {
			t.Errorf("%s not created as a directory", dir)
		}
	}
}

func TestPrepareEnvDirPreservesState(t *testing.T) {
	home := t.TempDir()
	src := t.TempDir()
	writeTestFile(t, filepath.Join(src, "main.tf"), "")

	paths, err := PrepareEnvDir(home, "abc12345", src, manifest.Variables{})
	if err != nil {
		t.Fatalf("PrepareEnvDir: %v", err)
	}
	writeTestFile(t, paths.StateFile, `{"serial": 7}`)

	if _, err := PrepareEnvDir(home, "abc12345", src, manifest.Variables{}); err != nil {
		t.Fatalf("PrepareEnvDir rerun: %v", err)
	}
	data, err := os.ReadFile(paths.StateFile)
	if err != nil {
		t.Fatalf("read state after rerun: %v", err)
	}
	if string(data) != `{"serial": 7}` {
		t.Errorf("rerun clobbered state: %s", data)
	}
}

func TestRemoveEnvDir(t *testing.T) {
	home := t.TempDir()
	src := t.TempDir()
	writeTestFile(t, filepath.Join(src, "main.tf"), "")

	paths, err := PrepareEnvDir(home, "abc12345", src, manifest.Variables{})
	if err != nil {
		t.Fatalf("PrepareEnvDir: %v", err)
	}
	if err := RemoveEnvDir(home, "abc12345"); err != nil {
		t.Fatalf("RemoveEnvDir: %v", err)
	}
	if _, err := os.Stat(paths.Root); !os.IsNotExist(err) {
		t.Errorf("environment directory still present")
	}
}

func TestRemoveEnvDirRefusesEmptyID(t *testing.T) {
	if err := RemoveEnvDir(t.TempDir(), ""); err == nil {
		t.Fatal("expected error for empty environment ID")
	}
}
