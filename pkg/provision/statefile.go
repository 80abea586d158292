package provision

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/buildandburn/buildandburn/pkg/engine"
)

// emptyState is the minimal valid state document written when a state
// file is missing or corrupt. Serial zero and a fresh lineage make the
// provisioner treat the environment as empty.
type emptyState struct {
	Version          int                    `json:"version"`
	TerraformVersion string                 `json:"terraform_version"`
	Serial           int                    `json:"serial"`
	Lineage          string                 `json:"lineage"`
	Outputs          map[string]interface{} `json:"outputs"`
	Resources        []interface{}          `json:"resources"`
}

// EnsureValidState checks the state file at path and replaces it with a
// minimal empty state when it is missing, unreadable, or not a state
// document. It reports whether a repair was performed. Calling it on a
// valid state file changes nothing.
func EnsureValidState(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err == nil && stateValid(data) {
		return false, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return false, engine.NewStateError(fmt.Sprintf("failed to read state file %s", path), err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, engine.NewStateError("failed to create state directory", err)
	}

	state := emptyState{
		Version:          4,
		TerraformVersion: "1.5.7",
		Serial:           0,
		Lineage:          uuid.NewString(),
		Outputs:          map[string]interface{}{},
		Resources:        []interface{}{},
	}
	out, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return false, engine.NewStateError("failed to encode empty state", err)
	}
	if err := os.WriteFile(path, append(out, '\n'), 0644); err != nil {
		return false, engine.NewStateError(fmt.Sprintf("failed to write state file %s", path), err)
	}
	return true, nil
}

// stateValid reports whether data is a JSON document carrying a state
// version field.
func stateValid(data []byte) bool {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return false
	}
	_, ok := doc["version"]
	return ok
}
