package commands

import (
	"strings"
	"testing"

	"github.com/buildandburn/buildandburn/pkg/provision"
)

func TestOutputLinesMasksSensitiveValues(t *testing.T) {
	outputs := provision.Outputs{
		"kubeconfig": {
			Value:     "apiVersion: v1\nusers:\n- token: SUPERSECRET",
			Sensitive: true,
		},
		"database_password": {Value: "hunter2"},
		"database_endpoint": {Value: "db.internal:5432"},
	}

	lines := outputLines(outputs)
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}

	rendered := strings.Join(lines, "\n")
	if strings.Contains(rendered, "SUPERSECRET") {
		t.Errorf("sensitive-flagged output leaked:\n%s", rendered)
	}
	if strings.Contains(rendered, "hunter2") {
		t.Errorf("credential-named output leaked:\n%s", rendered)
	}
	if !strings.Contains(rendered, "db.internal:5432") {
		t.Errorf("plain output missing:\n%s", rendered)
	}

	// Name order keeps the rendering stable across runs.
	wantOrder := []string{"database_endpoint", "database_password", "kubeconfig"}
	for i, name := range wantOrder {
		if !strings.HasPrefix(lines[i], "  "+name+":") {
			t.Errorf("line %d = %q, want prefix %q", i, lines[i], name)
		}
	}
}

func TestOutputLinesHiddenMarker(t *testing.T) {
	outputs := provision.Outputs{
		"cluster_ca": {Value: "LS0tLS1CRUdJTg==", Sensitive: true},
	}
	lines := outputLines(outputs)
	if len(lines) != 1 || !strings.Contains(lines[0], "(hidden for security)") {
		t.Errorf("sensitive output not replaced with marker: %q", lines)
	}
}
