package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog"

	"github.com/buildandburn/buildandburn/pkg/engine"
)

// Runner invokes the provisioner binary inside a working directory and
// routes every run through the supervisor.
type Runner struct {
	dir    string
	binary string
	sup    *Supervisor
	logger zerolog.Logger
}

// NewRunner creates a runner rooted at dir.
func NewRunner(dir string, timeouts Timeouts, logger zerolog.Logger) *Runner {
	return &Runner{
		dir:    dir,
		binary: "terraform",
		sup:    NewSupervisor(timeouts, NewEventParser(), logger),
		logger: logger.With().Str("component", "runner").Str("dir", dir).Logger(),
	}
}

// Supervisor exposes the runner's supervisor for sink configuration.
func (r *Runner) Supervisor() *Supervisor {
	return r.sup
}

// Init runs terraform init. Reconfigure is needed after backend
// overrides change; upgrade refreshes provider plugins.
func (r *Runner) Init(ctx context.Context, upgrade, reconfigure bool) *CommandResult {
	args := []string{"init", "-input=false", "-no-color"}
	if upgrade {
		args = append(args, "-upgrade")
	}
	if reconfigure {
		args = append(args, "-reconfigure")
	}
	return r.run(ctx, OpInit, args)
}

// Plan runs terraform plan against a vars file, writing the plan to
// outFile. Destroy plans carry -destroy.
func (r *Runner) Plan(ctx context.Context, varsFile, outFile string, destroy bool) *CommandResult {
	args := []string{"plan", "-input=false", "-no-color", "-var-file=" + varsFile, "-out=" + outFile}
	if destroy {
		args = append(args, "-destroy")
	}
	return r.run(ctx, OpPlan, args)
}

// Apply applies a previously generated plan file.
func (r *Runner) Apply(ctx context.Context, planFile string) *CommandResult {
	return r.run(ctx, OpApply, []string{"apply", "-input=false", "-no-color", planFile})
}

// ApplyVars applies directly from a vars file without a plan step.
func (r *Runner) ApplyVars(ctx context.Context, varsFile string) *CommandResult {
	return r.run(ctx, OpApply, []string{"apply", "-input=false", "-no-color", "-auto-approve", "-var-file=" + varsFile})
}

// Destroy tears down directly with auto-approve. It is the fallback
// when destroy planning fails.
func (r *Runner) Destroy(ctx context.Context, varsFile string) *CommandResult {
	args := []string{"destroy", "-input=false", "-no-color", "-auto-approve"}
	if varsFile != "" {
		args = append(args, "-var-file="+varsFile)
	}
	return r.run(ctx, OpDestroy, args)
}

// Fmt rewrites configuration files into canonical formatting.
func (r *Runner) Fmt(ctx context.Context) *CommandResult {
	return r.run(ctx, OpFmt, []string{"fmt", "-no-color"})
}

// OutputValue is one entry of terraform output -json.
type OutputValue struct {
	Value     interface{} `json:"value"`
	Sensitive bool        `json:"sensitive"`
}

// Outputs maps output names to their values.
type Outputs map[string]OutputValue

// String returns the output as a string, or "" when absent or not a
// string.
func (o Outputs) String(name string) string {
	v, ok := o[name]
	if !ok {
		return ""
	}
	s, _ := v.Value.(string)
	return s
}

// Output reads and decodes the root module outputs.
func (r *Runner) Output(ctx context.Context) (Outputs, error) {
	res := r.run(ctx, OpOutput, []string{"output", "-json", "-no-color"})
	if !res.Success() {
		return nil, engine.NewProvisionError(
			fmt.Sprintf("failed to read outputs: %s", res.Tail(5)), res.Err,
		).WithOperation(string(OpOutput))
	}
	var out Outputs
	if err := json.Unmarshal([]byte(res.Stdout), &out); err != nil {
		return nil, engine.NewProvisionError("failed to decode outputs", err).WithOperation(string(OpOutput))
	}
	return out, nil
}

func (r *Runner) run(ctx context.Context, op Operation, args []string) *CommandResult {
	r.logger.Debug().Str("operation", string(op)).Strs("args", args).Msg("Running provisioner")
	cmd := exec.Command(r.binary, args...)
	cmd.Dir = r.dir
	return r.sup.Run(ctx, cmd, op)
}
