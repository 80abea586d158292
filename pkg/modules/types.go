package modules

import (
	"github.com/buildandburn/buildandburn/pkg/manifest"
)

// CoreModules are required regardless of declared dependencies.
var CoreModules = []string{"vpc", "eks"}

// moduleFiles is the minimal file set every module should carry.
var moduleFiles = []string{"main.tf", "variables.tf", "outputs.tf"}

// DependencyModule maps a dependency type to its infrastructure module.
func DependencyModule(t manifest.DependencyType) string {
	switch t {
	case manifest.DependencyDatabase:
		return "rds"
	case manifest.DependencyQueue:
		return "mq"
	case manifest.DependencyRedis:
		return "elasticache"
	case manifest.DependencyKafka:
		return "msk"
	}
	return ""
}

// PolicyModule maps a dependency type to its access-policy module.
func PolicyModule(t manifest.DependencyType) string {
	return "eks-to-" + DependencyModule(t) + "-policy"
}

// IAMPolicyName maps a dependency type to the managed IAM policy the
// cluster module must attach for it.
func IAMPolicyName(t manifest.DependencyType) string {
	switch t {
	case manifest.DependencyDatabase:
		return "AmazonRDSFullAccess"
	case manifest.DependencyQueue:
		return "AmazonMQFullAccess"
	case manifest.DependencyRedis:
		return "AmazonElastiCacheFullAccess"
	case manifest.DependencyKafka:
		return "AmazonMSKFullAccess"
	}
	return ""
}

// FixType identifies an automatic remediation for a validation finding.
type FixType string

const (
	// FixAddModuleReference inserts a module block referencing an
	// existing dependency module that the root configuration never calls.
	FixAddModuleReference FixType = "add_module_reference"

	// FixAddPolicyModule inserts a module block for a missing access
	// policy module.
	FixAddPolicyModule FixType = "add_policy_module"
)

// Fix is one typed remediation action.
type Fix struct {
	// Type is the remediation kind.
	Type FixType `json:"type"`

	// Module is the module the block should reference.
	Module string `json:"module"`

	// Dependency is the dependency type the module serves.
	Dependency manifest.DependencyType `json:"dependency"`
}

// Issue is one validation finding that does not fit a module list.
type Issue struct {
	// Module is the module the issue concerns.
	Module string `json:"module"`

	// Message describes the finding.
	Message string `json:"message"`
}

// Result is the outcome of validating the module directory against a
// manifest's declared dependencies.
type Result struct {
	// Required lists every module the manifest needs.
	Required []string `json:"required"`

	// Available lists required modules present on disk.
	Available []string `json:"available"`

	// MissingCore lists absent core modules. Any entry is a hard failure.
	MissingCore []string `json:"missing_core,omitempty"`

	// MissingDependency lists absent dependency modules.
	MissingDependency []string `json:"missing_dependency,omitempty"`

	// MissingPolicy lists absent access-policy modules.
	MissingPolicy []string `json:"missing_policy,omitempty"`

	// Unreferenced lists modules present on disk that the root
	// configuration never calls.
	Unreferenced []string `json:"unreferenced,omitempty"`

	// FileIssues are warning-level findings about incomplete module
	// file sets.
	FileIssues []Issue `json:"file_issues,omitempty"`

	// ConnectivityIssues flag dependency modules that never consume the
	// cluster security group.
	ConnectivityIssues []Issue `json:"connectivity_issues,omitempty"`

	// IAMIssues flag dependency types without IAM coverage in the
	// cluster module.
	IAMIssues []Issue `json:"iam_issues,omitempty"`

	// Valid is true when every required module is present and referenced.
	Valid bool `json:"valid"`

	// AutoFixable is true when every failure has a remediation in Fixes.
	AutoFixable bool `json:"auto_fixable"`

	// Fixes are the ordered remediation actions.
	Fixes []Fix `json:"fixes,omitempty"`
}

// Warnings returns the warning-level findings as flat strings.
func (r *Result) Warnings() []string {
	var out []string
	for _, i := range r.FileIssues {
		out = append(out, i.Module+": "+i.Message)
	}
	for _, i := range r.ConnectivityIssues {
		out = append(out, i.Module+": "+i.Message)
	}
	for _, i := range r.IAMIssues {
		out = append(out, i.Module+": "+i.Message)
	}
	return out
}
