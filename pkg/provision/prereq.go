package provision

import (
	"fmt"
	"os/exec"

	"github.com/buildandburn/buildandburn/pkg/engine"
)

// RequiredTools lists the external binaries a full environment
// lifecycle needs on PATH.
var RequiredTools = []string{"terraform", "kubectl", "helm"}

// CheckPrerequisites verifies every named tool resolves on PATH and
// returns a tool error naming all missing binaries at once.
func CheckPrerequisites(tools ...string) error {
	if len(tools) == 0 {
		tools = RequiredTools
	}
	var missing []string
	for _, tool := range tools {
		if _, err := exec.LookPath(tool); err != nil {
			missing = append(missing, tool)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return engine.NewToolError(
		fmt.Sprintf("required tools not found on PATH: %v", missing), nil,
	).WithSuggestion("install the missing tools and ensure they are on PATH")
}
