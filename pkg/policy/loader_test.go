package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

const sampleRego = `# Blocks environments named scratch.
package buildandburn.admission.naming

import rego.v1

deny contains violation if {
	input.manifest.name == "scratch"
	violation := {"message": "pick a real name", "severity": "error"}
}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadFromPathsRegoFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "naming.rego", sampleRego)

	loader := NewLoader(zerolog.Nop())
	policies, err := loader.LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("LoadFromPaths: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("policies = %d, want 1", len(policies))
	}

	p := policies[0]
	if p.Name != "naming" {
		t.Errorf("Name = %q, want file-derived name", p.Name)
	}
	if p.Description != "Blocks environments named scratch." {
		t.Errorf("Description = %q", p.Description)
	}
	if p.Severity != SeverityWarning {
		t.Errorf("Severity = %q, want default warning", p.Severity)
	}
	if !p.Enabled {
		t.Error("loaded policy should be enabled")
	}
}

func TestLoadFromPathsJSONFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "ceiling.json", `{
  "name": "node-ceiling",
  "description": "Caps node counts",
  "severity": "error",
  "enabled": true,
  "rego": "package buildandburn.admission.nodes\n\nimport rego.v1\n\ndeny contains msg if {\n\tinput.manifest.infra.eks.node_count > 20\n\tmsg := \"too many nodes\"\n}\n"
}`)

	loader := NewLoader(zerolog.Nop())
	policies, err := loader.LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("LoadFromPaths: %v", err)
	}
	if len(policies) != 1 || policies[0].Name != "node-ceiling" {
		t.Fatalf("policies = %+v", policies)
	}
	if policies[0].Severity != SeverityError {
		t.Errorf("Severity = %q", policies[0].Severity)
	}
}

func TestLoadFromDirectorySkipsOtherFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "naming.rego", sampleRego)
	writeFile(t, dir, "README.md", "not a policy")
	writeFile(t, dir, "broken.json", "{not json")

	loader := NewLoader(zerolog.Nop())
	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths: %v", err)
	}
	if len(policies) != 1 {
		t.Errorf("policies = %+v, want only the rego file", policies)
	}
}

func TestLoadFromPathsMissingPath(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	if _, err := loader.LoadFromPaths(context.Background(), []string{"/does/not/exist"}); err == nil {
		t.Error("expected error for missing path")
	}
}

func TestLoaderCache(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "naming.rego", sampleRego)

	loader := NewLoader(zerolog.Nop())
	first, err := loader.loadFromFile(path)
	if err != nil {
		t.Fatalf("loadFromFile: %v", err)
	}

	// A rewrite is invisible until the cache entry is dropped.
	writeFile(t, dir, "naming.rego", "# Changed.\npackage buildandburn.admission.naming\n")
	cached, err := loader.loadFromFile(path)
	if err != nil {
		t.Fatalf("loadFromFile cached: %v", err)
	}
	if cached != first {
		t.Error("expected cached policy pointer")
	}

	loader.ClearCache()
	reloaded, err := loader.loadFromFile(path)
	if err != nil {
		t.Fatalf("loadFromFile after clear: %v", err)
	}
	if reloaded.Description != "Changed." {
		t.Errorf("Description = %q, want reloaded content", reloaded.Description)
	}
}

func TestLoadedPolicyRegistersInEngine(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "naming.rego", sampleRego)

	eng := testEngine(t)
	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadPolicies: %v", err)
	}
	if _, err := eng.GetPolicy("naming"); err != nil {
		t.Errorf("GetPolicy: %v", err)
	}
}
