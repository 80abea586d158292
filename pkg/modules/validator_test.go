package modules

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/buildandburn/buildandburn/pkg/manifest"
	"github.com/rs/zerolog"
)

func writeModule(t *testing.T, dir, name string, files map[string]string) {
	t.Helper()
	moduleDir := filepath.Join(dir, "modules", name)
	if err := os.MkdirAll(moduleDir, 0755); err != nil {
		t.Fatalf("mkdir %s: %v", moduleDir, err)
	}
	for file, content := range files {
		if err := os.WriteFile(filepath.Join(moduleDir, file), []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", file, err)
		}
	}
}

func completeModule(mainContent string) map[string]string {
	return map[string]string{
		"main.tf":      mainContent,
		"variables.tf": "variable \"project_name\" {}\n",
		"outputs.tf":   "",
	}
}

func writeRootMain(t *testing.T, dir string, modules ...string) {
	t.Helper()
	content := ""
	for _, m := range modules {
		content += "module \"" + m + "\" {\n  source = \"./modules/" + m + "\"\n}\n\n"
	}
	content += "provider \"kubernetes\" {\n}\n"
	if err := os.WriteFile(filepath.Join(dir, "main.tf"), []byte(content), 0644); err != nil {
		t.Fatalf("write root main.tf: %v", err)
	}
}

func coreOnlyTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeModule(t, dir, "vpc", completeModule("resource \"aws_vpc\" \"main\" {}\n"))
	writeModule(t, dir, "eks", completeModule("resource \"aws_eks_cluster\" \"main\" {}\nAmazonRDSFullAccess\n"))
	writeRootMain(t, dir, "vpc", "eks")
	return dir
}

func TestValidateRequiredSet(t *testing.T) {
	dir := coreOnlyTree(t)
	m := &manifest.Manifest{
		Name: "demo",
		Dependencies: []manifest.Dependency{
			{Type: manifest.DependencyDatabase},
			{Type: manifest.DependencyQueue},
		},
	}

	res, err := NewValidator(dir, zerolog.Nop()).Validate(m)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	want := []string{"vpc", "eks", "rds", "mq", "eks-to-rds-policy", "eks-to-mq-policy"}
	if !reflect.DeepEqual(res.Required, want) {
		t.Errorf("Required = %v, want %v", res.Required, want)
	}
}

func TestValidateMissingCoreIsHardFailure(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "vpc", completeModule(""))
	writeRootMain(t, dir, "vpc")

	res, err := NewValidator(dir, zerolog.Nop()).Validate(&manifest.Manifest{Name: "demo"})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if res.Valid {
		t.Error("Valid = true with missing core module")
	}
	if res.AutoFixable {
		t.Error("AutoFixable = true with missing core module")
	}
	if len(res.MissingCore) != 1 || res.MissingCore[0] != "eks" {
		t.Errorf("MissingCore = %v, want [eks]", res.MissingCore)
	}
}

func TestValidateMissingPolicyIsAutoFixable(t *testing.T) {
	dir := coreOnlyTree(t)
	writeModule(t, dir, "rds", completeModule("eks_security_group_id\n"))
	writeRootMain(t, dir, "vpc", "eks", "rds")

	m := &manifest.Manifest{
		Name:         "demo",
		Dependencies: []manifest.Dependency{{Type: manifest.DependencyDatabase}},
	}

	res, err := NewValidator(dir, zerolog.Nop()).Validate(m)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if res.Valid {
		t.Error("Valid = true with missing policy module")
	}
	if !res.AutoFixable {
		t.Error("AutoFixable = false, want true")
	}
	if len(res.Fixes) != 1 || res.Fixes[0].Type != FixAddPolicyModule || res.Fixes[0].Module != "eks-to-rds-policy" {
		t.Errorf("Fixes = %+v", res.Fixes)
	}
}

func TestValidateConnectivityIssue(t *testing.T) {
	dir := coreOnlyTree(t)
	writeModule(t, dir, "rds", completeModule("resource \"aws_db_instance\" \"main\" {}\n"))
	writeModule(t, dir, "eks-to-rds-policy", completeModule(""))
	writeRootMain(t, dir, "vpc", "eks", "rds", "eks-to-rds-policy")

	m := &manifest.Manifest{
		Name:         "demo",
		Dependencies: []manifest.Dependency{{Type: manifest.DependencyDatabase}},
	}

	res, err := NewValidator(dir, zerolog.Nop()).Validate(m)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if len(res.ConnectivityIssues) != 1 || res.ConnectivityIssues[0].Module != "rds" {
		t.Errorf("ConnectivityIssues = %+v", res.ConnectivityIssues)
	}
	// Connectivity findings are warnings, they do not fail validation.
	if !res.Valid {
		t.Error("Valid = false, want true")
	}
}

func TestValidateIAMCoverage(t *testing.T) {
	dir := coreOnlyTree(t)
	writeModule(t, dir, "elasticache", completeModule("eks_security_group_id\n"))
	writeModule(t, dir, "eks-to-elasticache-policy", completeModule(""))
	writeRootMain(t, dir, "vpc", "eks", "elasticache", "eks-to-elasticache-policy")

	m := &manifest.Manifest{
		Name:         "demo",
		Dependencies: []manifest.Dependency{{Type: manifest.DependencyRedis}},
	}

	res, err := NewValidator(dir, zerolog.Nop()).Validate(m)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	// The eks fixture only mentions AmazonRDSFullAccess.
	if len(res.IAMIssues) != 1 {
		t.Fatalf("IAMIssues = %+v, want one entry", res.IAMIssues)
	}
	if res.IAMIssues[0].Module != "eks" {
		t.Errorf("IAMIssues[0].Module = %s, want eks", res.IAMIssues[0].Module)
	}
}

func TestValidateFileIssuesAreWarnings(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "vpc", map[string]string{"main.tf": ""})
	writeModule(t, dir, "eks", completeModule(""))
	writeRootMain(t, dir, "vpc", "eks")

	res, err := NewValidator(dir, zerolog.Nop()).Validate(&manifest.Manifest{Name: "demo"})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if len(res.FileIssues) != 2 {
		t.Errorf("FileIssues = %+v, want variables.tf and outputs.tf findings", res.FileIssues)
	}
	if !res.Valid {
		t.Error("Valid = false, file issues must not fail validation")
	}
}

func TestValidateIdempotent(t *testing.T) {
	dir := coreOnlyTree(t)
	m := &manifest.Manifest{
		Name:         "demo",
		Dependencies: []manifest.Dependency{{Type: manifest.DependencyQueue}},
	}

	v := NewValidator(dir, zerolog.Nop())
	first, err := v.Validate(m)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	second, err := v.Validate(m)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("validation is not idempotent")
	}
}

func TestValidateMissingDirectory(t *testing.T) {
	_, err := NewValidator(filepath.Join(t.TempDir(), "nope"), zerolog.Nop()).Validate(&manifest.Manifest{Name: "demo"})
	if err == nil {
		t.Fatal("expected error for missing module directory")
	}
}
