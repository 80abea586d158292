package provision

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureValidStateMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "terraform.tfstate")
	repaired, err := EnsureValidState(path)
	if err != nil {
		t.Fatalf("EnsureValidState: %v", err)
	}
	if !repaired {
		t.Error("repaired = false for missing file")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("state not written: %v", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("state not valid JSON: %v", err)
	}
	if doc["version"] != float64(4) {
		t.Errorf("version = %v, want 4", doc["version"])
	}
	if doc["lineage"] == "" {
		t.Error("lineage empty")
	}
	if doc["serial"] != float64(0) {
		t.Errorf("serial = %v, want 0", doc["serial"])
	}
}

func TestEnsureValidStateCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terraform.tfstate")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	repaired, err := EnsureValidState(path)
	if err != nil {
		t.Fatalf("EnsureValidState: %v", err)
	}
	if !repaired {
		t.Error("repaired = false for corrupt file")
	}
}

func TestEnsureValidStateJSONWithoutVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terraform.tfstate")
	if err := os.WriteFile(path, []byte(`{"outputs": {}}`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	repaired, err := EnsureValidState(path)
	if err != nil {
		t.Fatalf("EnsureValidState: %v", err)
	}
	if !repaired {
		t.Error("repaired = false for JSON missing the version field")
	}
}

func TestEnsureValidStatePreservesValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terraform.tfstate")
	original := `{"version": 4, "serial": 7, "lineage": "abc", "resources": []}`
	if err := os.WriteFile(path, []byte(original), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	repaired, err := EnsureValidState(path)
	if err != nil {
		t.Fatalf("EnsureValidState: %v", err)
	}
	if repaired {
		t.Error("repaired = true for valid file")
	}
	data, _ := os.ReadFile(path)
	if string(data) != original {
		t.Error("valid state file was rewritten")
	}
}

func TestEnsureValidStateIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terraform.tfstate")
	if _, err := EnsureValidState(path); err != nil {
		t.Fatalf("first call: %v", err)
	}
	first, _ := os.ReadFile(path)

	repaired, err := EnsureValidState(path)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if repaired {
		t.Error("second call repaired an already valid file")
	}
	second, _ := os.ReadFile(path)
	if string(first) != string(second) {
		t.Error("second call rewrote the state")
	}
}
