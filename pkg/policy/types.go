package policy

import (
	"time"

	"github.com/buildandburn/buildandburn/pkg/manifest"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for errors that block provisioning.
	SeverityError Severity = "error"

	// SeverityCritical is for violations that must never ship.
	SeverityCritical Severity = "critical"
)

// Policy represents an admission rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Service is the manifest service the violation concerns, if any.
	Service string `json:"service,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// Result represents the outcome of evaluating a manifest against the
// loaded admission policies.
type Result struct {
	// Allowed is false when any error or critical violation matched.
	Allowed bool `json:"allowed"`

	// Violations lists blocking findings.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists advisory findings.
	Warnings []Violation `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the evaluation ran.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Input is the document handed to every policy evaluation.
type Input struct {
	// Manifest is the parsed manifest under admission.
	Manifest *manifest.Manifest `json:"manifest"`

	// Variables is the compiled provisioner variable set.
	Variables manifest.Variables `json:"variables,omitempty"`

	// Context carries evaluation metadata.
	Context *Context `json:"context"`
}

// Context provides metadata for policy evaluation.
type Context struct {
	// Operation is the lifecycle operation being admitted (e.g. "up").
	Operation string `json:"operation,omitempty"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`
}
