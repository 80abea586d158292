package modules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/buildandburn/buildandburn/pkg/manifest"
	"github.com/rs/zerolog"
)

func TestApplyInsertsBeforeKubernetesProvider(t *testing.T) {
	dir := t.TempDir()
	root := "module \"vpc\" {\n}\n\nprovider \"kubernetes\" {\n  host = \"example\"\n}\n"
	if err := os.WriteFile(filepath.Join(dir, "main.tf"), []byte(root), 0644); err != nil {
		t.Fatalf("write main.tf: %v", err)
	}

	fixes := []Fix{{Type: FixAddPolicyModule, Module: "eks-to-rds-policy", Dependency: manifest.DependencyDatabase}}
	if err := NewFixer(dir, zerolog.Nop()).Apply(fixes); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "main.tf"))
	if err != nil {
		t.Fatalf("read main.tf: %v", err)
	}
	content := string(data)

	blockIdx := strings.Index(content, "module \"eks-to-rds-policy\"")
	providerIdx := strings.Index(content, "provider \"kubernetes\"")
	if blockIdx < 0 {
		t.Fatal("module block not inserted")
	}
	if providerIdx < blockIdx {
		t.Error("module block inserted after the kubernetes provider")
	}
	if !strings.Contains(content, `contains(var.dependencies, "database") ? 1 : 0`) {
		t.Error("block missing conditional count expression")
	}
	if !strings.Contains(content, "depends_on = [module.eks]") {
		t.Error("block missing depends_on")
	}
}

func TestApplyAppendsWithoutProviderBlock(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.tf"), []byte("module \"vpc\" {\n}\n"), 0644); err != nil {
		t.Fatalf("write main.tf: %v", err)
	}

	fixes := []Fix{{Type: FixAddModuleReference, Module: "mq", Dependency: manifest.DependencyQueue}}
	if err := NewFixer(dir, zerolog.Nop()).Apply(fixes); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(dir, "main.tf"))
	if !strings.Contains(string(data), "module \"mq\"") {
		t.Error("module block not appended")
	}
	if !strings.Contains(string(data), "eks_security_group_id = module.eks.cluster_security_group_id") {
		t.Error("dependency module block missing security group wiring")
	}
}

func TestApplyIdempotent(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.tf"), []byte("provider \"kubernetes\" {\n}\n"), 0644); err != nil {
		t.Fatalf("write main.tf: %v", err)
	}

	fixes := []Fix{{Type: FixAddPolicyModule, Module: "eks-to-mq-policy", Dependency: manifest.DependencyQueue}}
	fixer := NewFixer(dir, zerolog.Nop())
	if err := fixer.Apply(fixes); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	first, _ := os.ReadFile(filepath.Join(dir, "main.tf"))

	if err := fixer.Apply(fixes); err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	second, _ := os.ReadFile(filepath.Join(dir, "main.tf"))

	if string(first) != string(second) {
		t.Error("applying the same fixes twice changed the file")
	}
	if strings.Count(string(second), "module \"eks-to-mq-policy\"") != 1 {
		t.Error("module block duplicated")
	}
}

func TestApplyNoFixesNoFile(t *testing.T) {
	dir := t.TempDir()
	if err := NewFixer(dir, zerolog.Nop()).Apply(nil); err != nil {
		t.Fatalf("Apply with no fixes: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "main.tf")); !os.IsNotExist(err) {
		t.Error("Apply with no fixes created main.tf")
	}
}
