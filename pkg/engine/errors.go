package engine

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a failure for recovery and exit-code logic.
type ErrorClass string

const (
	// ErrorClassValidation indicates the manifest or module set failed
	// validation before any cloud resource was touched.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassProvision indicates the provisioner returned non-zero
	// during init, plan, apply or destroy.
	ErrorClassProvision ErrorClass = "provision"

	// ErrorClassDeploy indicates the orchestration client failed to
	// apply the deployment resources.
	ErrorClassDeploy ErrorClass = "deploy"

	// ErrorClassTimeout indicates the adaptive timeout terminated a
	// provisioning run.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassState indicates persisted environment state is missing
	// or structurally invalid.
	ErrorClassState ErrorClass = "state"

	// ErrorClassTool indicates a required external tool is missing.
	ErrorClassTool ErrorClass = "tool"

	// ErrorClassCredential indicates the provisioner cannot authenticate.
	ErrorClassCredential ErrorClass = "credential"
)

// EngineError is a classified error with environment context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// EnvID is the environment the error concerns, if applicable.
	EnvID string `json:"env_id,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Suggestion tells the operator what to do about it.
	Suggestion string `json:"suggestion,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.EnvID != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (env=%s, operation=%s): %s",
			e.Class, e.Message, e.EnvID, e.Operation, e.unwrapMessage())
	}
	if e.EnvID != "" {
		return fmt.Sprintf("[%s] %s (env=%s): %s", e.Class, e.Message, e.EnvID, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

func (e *EngineError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewValidationError creates a validation-class error.
func NewValidationError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassValidation, Message: message, Err: err}
}

// NewProvisionError creates a provision-class error.
func NewProvisionError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassProvision, Message: message, Err: err}
}

// NewDeployError creates a deploy-class error.
func NewDeployError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassDeploy, Message: message, Err: err}
}

// NewTimeoutError creates a timeout-class error.
func NewTimeoutError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassTimeout, Message: message, Err: err}
}

// NewStateError creates a state-class error.
func NewStateError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassState, Message: message, Err: err}
}

// NewToolError creates a tool-class error.
func NewToolError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassTool, Message: message, Err: err}
}

// NewCredentialError creates a credential-class error.
func NewCredentialError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassCredential, Message: message, Err: err}
}

// WithEnvID adds environment context to an error.
func (e *EngineError) WithEnvID(envID string) *EngineError {
	e.EnvID = envID
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithSuggestion adds an operator-facing remediation hint.
func (e *EngineError) WithSuggestion(suggestion string) *EngineError {
	e.Suggestion = suggestion
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func classOf(err error) (ErrorClass, bool) {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class, true
	}
	return "", false
}

// IsValidation returns true for validation-class errors.
func IsValidation(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassValidation
}

// IsProvision returns true for provision-class errors.
func IsProvision(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassProvision
}

// IsTimeout returns true for timeout-class errors.
func IsTimeout(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassTimeout
}

// IsState returns true for state-class errors.
func IsState(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassState
}

// IsFatal returns true for errors that cannot be recovered by a retry
// or an automatic fix: missing tools, bad credentials, missing core
// modules.
func IsFatal(err error) bool {
	c, ok := classOf(err)
	if !ok {
		return false
	}
	return c == ErrorClassTool || c == ErrorClassCredential ||
		(c == ErrorClassValidation && hasCode(err, ErrCodeMissingCoreModule))
}

func hasCode(err error, code string) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Common error codes.
const (
	ErrCodeMissingCoreModule   = "MISSING_CORE_MODULE"
	ErrCodeMissingPolicyModule = "MISSING_POLICY_MODULE"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeAlreadyExists       = "ALREADY_EXISTS"
	ErrCodeTimeout             = "TIMEOUT"
	ErrCodeLocked              = "LOCKED"
	ErrCodeStateCorrupt        = "STATE_CORRUPT"
	ErrCodeToolMissing         = "TOOL_MISSING"
	ErrCodeCredentialInvalid   = "CREDENTIAL_INVALID"
	ErrCodeInternal            = "INTERNAL_ERROR"
)
