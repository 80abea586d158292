package provision

import (
	"strings"
	"time"
)

// Operation names a provisioner invocation.
type Operation string

const (
	OpInit    Operation = "init"
	OpPlan    Operation = "plan"
	OpApply   Operation = "apply"
	OpDestroy Operation = "destroy"
	OpOutput  Operation = "output"
	OpFmt     Operation = "fmt"
)

// CommandResult is the complete record of one supervised invocation.
// Callers branch on the explicit fields rather than re-parsing output:
// TimedOut distinguishes a killed run from a run that failed on its own,
// and InFlight names the resources that never completed.
type CommandResult struct {
	Op       Operation
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration

	// TimedOut is set when the supervisor terminated the process.
	TimedOut bool

	// Extended is set when the slow-resource extension was granted.
	Extended bool

	// InFlight lists resources that started but never completed.
	InFlight []string

	// Completed counts resources that reached completion.
	Completed int

	// Err carries a launch or wait failure distinct from a nonzero exit.
	Err error
}

// Success reports whether the process ran to completion with exit 0.
func (r *CommandResult) Success() bool {
	return r.Err == nil && !r.TimedOut && r.ExitCode == 0
}

// CombinedOutput returns stdout and stderr joined for diagnosis.
func (r *CommandResult) CombinedOutput() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Tail returns the last n lines of combined output for error reporting.
func (r *CommandResult) Tail(n int) string {
	lines := strings.Split(strings.TrimRight(r.CombinedOutput(), "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
