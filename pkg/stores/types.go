package stores

import (
	"context"
	"time"
)

// EnvironmentStatus tracks where an environment is in its lifecycle.
type EnvironmentStatus string

const (
	StatusProvisioning EnvironmentStatus = "provisioning"
	StatusProvisioned  EnvironmentStatus = "provisioned"
	StatusDeploying    EnvironmentStatus = "deploying"
	StatusDeployed     EnvironmentStatus = "deployed"
	StatusDestroying   EnvironmentStatus = "destroying"
	StatusDestroyed    EnvironmentStatus = "destroyed"
	StatusFailed       EnvironmentStatus = "failed"
)

// OperationKind identifies a lifecycle operation recorded in the audit
// trail.
type OperationKind string

const (
	OperationUp   OperationKind = "up"
	OperationDown OperationKind = "down"
)

// OperationOutcome is the terminal result of a recorded operation.
type OperationOutcome string

const (
	OutcomeSucceeded OperationOutcome = "succeeded"
	OutcomeFailed    OperationOutcome = "failed"
)

// Environment is the index record for one throwaway environment. The
// heavyweight artifacts (terraform state, kubeconfig) live in the
// environment directory; the record carries enough to list, inspect,
// and resume.
type Environment struct {
	ID      string            `json:"id"`
	Project string            `json:"project"`
	Region  string            `json:"region"`
	Status  EnvironmentStatus `json:"status"`

	// Manifest is the original manifest YAML.
	Manifest string `json:"manifest"`

	// Variables is the compiled provisioner variable set as JSON.
	Variables string `json:"variables"`

	// Outputs is the provisioner output map as JSON, sensitive values
	// included; display layers redact.
	Outputs string `json:"outputs,omitempty"`

	// Access is the gathered service/ingress access info as JSON.
	Access string `json:"access,omitempty"`

	// Cost is the pricing estimate as JSON.
	Cost string `json:"cost,omitempty"`

	StateFile string `json:"state_file"`
	EnvDir    string `json:"env_dir"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DestroyedAt *time.Time `json:"destroyed_at,omitempty"`
}

// Operation is one audit row for an up or down run against an
// environment.
type Operation struct {
	ID          int64            `json:"id"`
	EnvID       string           `json:"env_id"`
	Kind        OperationKind    `json:"kind"`
	Outcome     OperationOutcome `json:"outcome"`
	Error       *string          `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at"`
	Duration    time.Duration    `json:"duration"`
}

// Store defines the persistence interface for the environment index.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Environment operations
	CreateEnvironment(ctx context.Context, env *Environment) error
	GetEnvironment(ctx context.Context, id string) (*Environment, error)
	UpdateEnvironment(ctx context.Context, env *Environment) error
	UpdateEnvironmentStatus(ctx context.Context, id string, status EnvironmentStatus) error
	MarkDestroyed(ctx context.Context, id string) error
	ListEnvironments(ctx context.Context, includeDestroyed bool) ([]*Environment, error)
	DeleteEnvironment(ctx context.Context, id string) error

	// Operation audit
	RecordOperation(ctx context.Context, op *Operation) error
	ListOperations(ctx context.Context, envID string, limit, offset int) ([]*Operation, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
