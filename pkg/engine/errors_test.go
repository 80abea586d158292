package engine

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestEngineErrorMessage(t *testing.T) {
	err := NewProvisionError("apply failed", errors.New("exit status 1")).
		WithEnvID("abc12345").
		WithOperation("apply")

	msg := err.Error()
	for _, want := range []string{"provision", "apply failed", "abc12345", "exit status 1"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message %q missing %q", msg, want)
		}
	}
}

func TestClassHelpers(t *testing.T) {
	tests := []struct {
		err   error
		check func(error) bool
		want  bool
	}{
		{NewValidationError("bad manifest", nil), IsValidation, true},
		{NewProvisionError("apply failed", nil), IsProvision, true},
		{NewTimeoutError("deadline", nil), IsTimeout, true},
		{NewStateError("missing", nil), IsState, true},
		{NewStateError("missing", nil), IsValidation, false},
		{errors.New("plain"), IsProvision, false},
	}
	for _, tt := range tests {
		if got := tt.check(tt.err); got != tt.want {
			t.Errorf("classification of %v = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestClassSurvivesWrapping(t *testing.T) {
	inner := NewTimeoutError("apply exceeded its deadline", nil)
	wrapped := fmt.Errorf("run failed: %w", inner)

	if !IsTimeout(wrapped) {
		t.Error("wrapped timeout not recognized")
	}
	var ee *EngineError
	if !errors.As(wrapped, &ee) || ee.Class != ErrorClassTimeout {
		t.Errorf("errors.As lost the class: %v", wrapped)
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"tool missing", NewToolError("terraform not found", nil), true},
		{"bad credentials", NewCredentialError("expired token", nil), true},
		{"missing core module", NewValidationError("no vpc", nil).WithCode(ErrCodeMissingCoreModule), true},
		{"ordinary validation", NewValidationError("bad name", nil), false},
		{"provision failure", NewProvisionError("exit 1", nil), false},
		{"plain error", errors.New("plain"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.want {
				t.Errorf("IsFatal = %v, want %v", got, tt.want)
			}
		})
	}
}
