package provision

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/buildandburn/buildandburn/pkg/engine"
)

func testRemediator(t *testing.T) (*Remediator, string) {
	t.Helper()
	dir := t.TempDir()
	runner := NewRunner(dir, DefaultTimeouts(), zerolog.Nop())
	return NewRemediator(runner, zerolog.Nop()), dir
}

func TestInjectProviderConfig(t *testing.T) {
	r, dir := testRemediator(t)
	if err := os.WriteFile(filepath.Join(dir, "main.tf"), []byte("module \"vpc\" {\n}\n"), 0644); err != nil {
		t.Fatalf("write main.tf: %v", err)
	}

	if err := r.Apply(context.Background(), FixInjectProviderConfig, &CommandResult{}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "provider_override.tf"))
	if err != nil {
		t.Fatalf("provider block not written: %v", err)
	}
	if !strings.Contains(string(data), `provider "aws"`) {
		t.Errorf("unexpected provider file content: %s", data)
	}
}

func TestInjectProviderConfigSkipsWhenPresent(t *testing.T) {
	r, dir := testRemediator(t)
	existing := "provider \"aws\" {\n  region = \"us-west-2\"\n}\n"
	if err := os.WriteFile(filepath.Join(dir, "providers.tf"), []byte(existing), 0644); err != nil {
		t.Fatalf("write providers.tf: %v", err)
	}

	if err := r.Apply(context.Background(), FixInjectProviderConfig, &CommandResult{}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "provider_override.tf")); !os.IsNotExist(err) {
		t.Error("override written despite existing provider block")
	}
}

func TestInjectRequiredVars(t *testing.T) {
	r, dir := testRemediator(t)
	failure := &CommandResult{Stderr: `Error: No value for required variable

  on variables.tf line 1:
   1: variable "cluster_name" {

Error: No value for required variable

  on variables.tf line 5:
   5: variable "zone_id" {
`}

	if err := r.Apply(context.Background(), FixInjectRequiredVars, failure); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "generated.auto.tfvars.json"))
	if err != nil {
		t.Fatalf("vars file not written: %v", err)
	}
	var vars map[string]interface{}
	if err := json.Unmarshal(data, &vars); err != nil {
		t.Fatalf("decode vars: %v", err)
	}
	for _, name := range []string{"cluster_name", "zone_id"} {
		if _, ok := vars[name]; !ok {
			t.Errorf("missing placeholder for %s", name)
		}
	}

	// A second application with the same output changes nothing.
	if err := r.Apply(context.Background(), FixInjectRequiredVars, failure); err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	again, _ := os.ReadFile(filepath.Join(dir, "generated.auto.tfvars.json"))
	if string(again) != string(data) {
		t.Error("repeated fix rewrote the vars file differently")
	}
}

func TestDeduplicateProviders(t *testing.T) {
	r, dir := testRemediator(t)
	content := `provider "aws" {
  region = "us-west-2"
}

provider "aws" {
  region = "us-east-1"
}
`
	if err := os.WriteFile(filepath.Join(dir, "main.tf"), []byte(content), 0644); err != nil {
		t.Fatalf("write main.tf: %v", err)
	}

	if err := r.Apply(context.Background(), FixDeduplicateProviders, &CommandResult{}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(dir, "main.tf"))
	lines := strings.Split(string(data), "\n")
	active := 0
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), `provider "aws"`) {
			active++
		}
	}
	if active != 1 {
		t.Errorf("active provider blocks = %d, want 1", active)
	}
	if !strings.Contains(string(data), `# provider "aws"`) {
		t.Error("duplicate block not commented out")
	}
}

func TestRunWithRemediationRetriesOnce(t *testing.T) {
	r, dir := testRemediator(t)
	if err := os.WriteFile(filepath.Join(dir, "main.tf"), []byte("module \"vpc\" {\n}\n"), 0644); err != nil {
		t.Fatalf("write main.tf: %v", err)
	}

	calls := 0
	op := func(context.Context) *CommandResult {
		calls++
		return &CommandResult{
			Op:       OpApply,
			ExitCode: 1,
			Stderr:   "Error: provider configuration not present",
		}
	}

	res, err := r.RunWithRemediation(context.Background(), op)
	if err != nil {
		t.Fatalf("RunWithRemediation: %v", err)
	}
	if res.Success() {
		t.Error("Success() = true for persistent failure")
	}
	// Initial attempt plus exactly one retry after the single fix.
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRunWithRemediationSucceedsAfterFix(t *testing.T) {
	r, dir := testRemediator(t)
	if err := os.WriteFile(filepath.Join(dir, "main.tf"), []byte("module \"vpc\" {\n}\n"), 0644); err != nil {
		t.Fatalf("write main.tf: %v", err)
	}

	calls := 0
	op := func(context.Context) *CommandResult {
		calls++
		if calls == 1 {
			return &CommandResult{Op: OpApply, ExitCode: 1, Stderr: "provider configuration not present"}
		}
		return &CommandResult{Op: OpApply, ExitCode: 0}
	}

	res, err := r.RunWithRemediation(context.Background(), op)
	if err != nil {
		t.Fatalf("RunWithRemediation: %v", err)
	}
	if !res.Success() {
		t.Error("Success() = false after successful retry")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRunWithRemediationCredentialFailure(t *testing.T) {
	r, _ := testRemediator(t)
	op := func(context.Context) *CommandResult {
		return &CommandResult{Op: OpApply, ExitCode: 1, Stderr: "No valid credential sources found"}
	}

	_, err := r.RunWithRemediation(context.Background(), op)
	if err == nil {
		t.Fatal("expected credential error")
	}
	if !engine.IsFatal(err) {
		t.Errorf("credential failure should be fatal, got %v", err)
	}
}

func TestRunWithRemediationUnknownFailure(t *testing.T) {
	r, _ := testRemediator(t)
	calls := 0
	op := func(context.Context) *CommandResult {
		calls++
		return &CommandResult{Op: OpApply, ExitCode: 1, Stderr: "something novel"}
	}

	res, err := r.RunWithRemediation(context.Background(), op)
	if err != nil {
		t.Fatalf("RunWithRemediation: %v", err)
	}
	if res.Success() || calls != 1 {
		t.Errorf("calls = %d, want exactly one attempt for unclassified failure", calls)
	}
}
